package validation

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// SupportedLayoutVersions is the semver constraint layout documents must meet.
const SupportedLayoutVersions = "^1"

var supportedVersions = mustConstraint(SupportedLayoutVersions)

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(fmt.Sprintf("invalid layout version constraint %q: %v", c, err))
	}
	return constraint
}

// CheckVersion reports whether a layout format version is supported. An
// empty version means the current one.
func CheckVersion(version string) error {
	if version == "" {
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "layout version %q is not a semantic version", version).
			WithCause(err)
	}
	if !supportedVersions.Check(v) {
		return schema.NewErrorf(schema.ErrCodeUnsupportedVersion,
			"layout version %s is not supported (want %s)", v.String(), SupportedLayoutVersions).
			WithDetails(map[string]any{"version": version, "constraint": SupportedLayoutVersions})
	}
	return nil
}

// validateSemantic checks what the structural schema cannot: the format
// version, that widget types are registered, that only layout widgets have
// children and that overrides satisfy each widget's options schema.
func validateSemantic(doc *schema.Document, lookup WidgetLookup, jsv *JSONSchemaValidator) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if err := CheckVersion(doc.Version); err != nil {
		code := schema.ErrCodeValidation
		if schema.IsCode(err, schema.ErrCodeUnsupportedVersion) {
			code = schema.ErrCodeUnsupportedVersion
		}
		result.AddError(schema.FieldPath("", "version"), code, errorMessage(err))
	}

	if lookup == nil {
		return result
	}

	var walk func(nodes []schema.NodeSpec, prefix string)
	walk = func(nodes []schema.NodeSpec, prefix string) {
		for i := range nodes {
			path := schema.NodePath(prefix, i)
			validateNodeSemantic(&nodes[i], path, lookup, jsv, result)
			walk(nodes[i].Children, schema.ChildrenPath(path))
		}
	}
	walk(doc.Widgets, schema.RootPath)

	return result
}

// validateNodeSemantic checks a single node against its plugin.
func validateNodeSemantic(n *schema.NodeSpec, path string, lookup WidgetLookup, jsv *JSONSchemaValidator, result *schema.ValidationResult) {
	p, ok := lookup.GetPlugin(n.Type)
	if !ok {
		result.AddWarning(schema.FieldPath(path, "type"), schema.IssueUnknownWidget,
			fmt.Sprintf("widget type %q is not registered; the node will not render", n.Type))
		return
	}

	if len(n.Children) > 0 && p.Defaults.Group != widget.GroupLayout {
		result.AddError(schema.ChildrenPath(path), schema.ErrCodeValidation,
			fmt.Sprintf("widget type %q is a %s widget and cannot have children", n.Type, p.Defaults.Group))
	}

	if len(p.Defaults.OptionsSchema) == 0 || jsv == nil {
		return
	}
	eff, err := widget.EffectiveConfig(p.Defaults, n.Overrides)
	if err != nil {
		result.AddError(schema.FieldPath(path, "overrides"), schema.ErrCodeValidation, err.Error())
		return
	}
	if err := jsv.ValidateOptions(eff, p.Defaults.OptionsSchema); err != nil {
		result.AddError(schema.FieldPath(path, "overrides"), schema.ErrCodeValidation, errorMessage(err))
	}
}

// errorMessage returns the message of a structured error without its code prefix.
func errorMessage(err error) string {
	var se *schema.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
