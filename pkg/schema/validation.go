package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// Issue codes reported by layout validation in addition to the error codes.
const (
	IssueUnknownWidget = "UNKNOWN_WIDGET"
	IssueDuplicateID   = "DUPLICATE_ID"
	IssueMissingID     = "MISSING_ID"
)

// RootPath is the path of the top-level widget list. Node paths below it
// look like "widgets[0].children[2]".
const RootPath = "widgets"

// NodePath returns the path of the i-th node of the list at list.
func NodePath(list string, i int) string {
	return list + "[" + strconv.Itoa(i) + "]"
}

// ChildrenPath returns the path of the child list of the node at node.
func ChildrenPath(node string) string {
	return FieldPath(node, "children")
}

// FieldPath appends dotted field names to a path. An empty base yields a
// top-level path such as "version".
func FieldPath(base string, fields ...string) string {
	parts := make([]string, 0, len(fields)+1)
	if base != "" {
		parts = append(parts, base)
	}
	for _, f := range fields {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, ".")
}

// ValidationIssue is a single validation problem located by a document path
// such as "widgets[0].children[2]".
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult aggregates all issues from the validation pipeline.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends an error-severity issue.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddWarning appends a warning-severity issue.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ErrorPaths returns the distinct paths of the errors in report order.
func (r *ValidationResult) ErrorPaths() []string {
	seen := make(map[string]bool, len(r.Errors))
	paths := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if !seen[e.Path] {
			seen[e.Path] = true
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// ToError converts the result to an *Error if invalid, nil if valid.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	first := r.Errors[0]
	msg := first.Message
	if first.Path != "" {
		msg = first.Path + ": " + msg
	}
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"paths":         r.ErrorPaths(),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
