package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())
}

func TestValidationResult_UnknownWidgetIsWarning(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("widgets[1]", IssueUnknownWidget, `widget type "ui:panel:gone" is not registered`)

	assert.True(t, r.Valid(), "unknown widgets must not invalidate a layout")
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
	assert.Equal(t, "widgets[1]", r.Warnings[0].Path)
}

func TestValidationResult_ToError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("widgets[0]", IssueDuplicateID, "duplicate id")
	r.AddError("widgets[2]", IssueMissingID, "missing id")
	r.AddWarning("widgets[3]", IssueUnknownWidget, "unknown")

	err := r.ToError()
	require.Error(t, err)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ErrCodeValidation, se.Code)
	assert.Equal(t, "validation failed with 2 errors", se.Message)
	assert.Equal(t, 2, se.Details["error_count"])
	assert.Equal(t, 1, se.Details["warning_count"])
	assert.Equal(t, []string{"widgets[0]", "widgets[2]"}, se.Details["paths"])

	single := &ValidationResult{}
	single.AddError(FieldPath(NodePath(RootPath, 1), "overrides", "id"), IssueDuplicateID, "duplicate id")
	single.AddError(FieldPath(NodePath(RootPath, 1), "overrides", "id"), IssueDuplicateID, "duplicate id")
	assert.Equal(t, []string{"widgets[1].overrides.id"}, single.ErrorPaths())
	single.Errors = single.Errors[:1]
	require.True(t, errors.As(single.ToError(), &se))
	assert.Equal(t, "widgets[1].overrides.id: duplicate id", se.Message)
}

func TestValidationResult_Merge(t *testing.T) {
	r1 := &ValidationResult{}
	r1.AddError("/", ErrCodeValidation, "err1")
	r2 := &ValidationResult{}
	r2.AddWarning("/", IssueUnknownWidget, "warn")

	r1.Merge(r2)
	r1.Merge(nil)
	assert.Len(t, r1.Errors, 1)
	assert.Len(t, r1.Warnings, 1)
}

func TestError_Format(t *testing.T) {
	err := NewErrorf(ErrCodeNotFound, "widget type %q not registered", "ui:x").WithWidget("panel-1")
	assert.Equal(t, `[NOT_FOUND] widget panel-1: widget type "ui:x" not registered`, err.Error())

	plain := NewError(ErrCodeValidation, "bad")
	assert.Equal(t, "[VALIDATION_ERROR] bad", plain.Error())
}

func TestError_UnwrapAndIsCode(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrCodeStore, "save dashboard").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsCode(err, ErrCodeStore))
	assert.False(t, IsCode(err, ErrCodeNotFound))
	assert.False(t, IsCode(nil, ErrCodeStore))
	assert.False(t, IsCode(cause, ErrCodeStore))
}

func TestLayoutPaths(t *testing.T) {
	first := NodePath(RootPath, 0)
	assert.Equal(t, "widgets[0]", first)

	child := NodePath(ChildrenPath(first), 2)
	assert.Equal(t, "widgets[0].children[2]", child)
	assert.Equal(t, "widgets[0].children[2].overrides.id", FieldPath(child, "overrides", "id"))
	assert.Equal(t, "widgets[0].children[2].type", FieldPath(child, "", "type"))
	assert.Equal(t, "version", FieldPath("", "version"))
	assert.Equal(t, "widgets[10]", NodePath(RootPath, 10))
}
