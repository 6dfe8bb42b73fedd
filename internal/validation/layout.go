package validation

import (
	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// WidgetLookup resolves widget types during semantic checks.
// *widget.Registry satisfies it.
type WidgetLookup interface {
	GetPlugin(widgetType string) (*widget.Plugin, bool)
}

// LayoutValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Identity (node ids unique across the whole tree)
// 3. Semantic (format version, widget types, nesting, widget options)
type LayoutValidator struct {
	jsonSchema *JSONSchemaValidator
	widgets    WidgetLookup
}

// NewLayoutValidator creates a LayoutValidator.
// lookup may be nil to skip widget checks.
func NewLayoutValidator(lookup WidgetLookup) (*LayoutValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &LayoutValidator{
		jsonSchema: jsv,
		widgets:    lookup,
	}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: the identity and semantic stages are skipped.
// Unknown widget types are warnings: such nodes load as non-renderable.
func (lv *LayoutValidator) Validate(doc *schema.Document) *schema.ValidationResult {
	if doc == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "layout document is nil")
		return r
	}

	result := lv.jsonSchema.Validate(doc)
	if !result.Valid() {
		return result
	}

	result.Merge(validateIdentity(doc))
	result.Merge(validateSemantic(doc, lv.widgets, lv.jsonSchema))
	return result
}

// ValidateDocument returns the pipeline result as an error, nil when valid.
func (lv *LayoutValidator) ValidateDocument(doc *schema.Document) error {
	return lv.Validate(doc).ToError()
}

// ValidateOptions delegates to the underlying JSONSchemaValidator.
func (lv *LayoutValidator) ValidateOptions(options map[string]any, optionsSchema []byte) error {
	return lv.jsonSchema.ValidateOptions(options, optionsSchema)
}

var _ Validator = (*LayoutValidator)(nil)
