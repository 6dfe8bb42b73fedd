package validation

import "github.com/anda-ren/starwhale/pkg/schema"

// Validator checks layout documents and widget options.
// Uses JSON Schema Draft 2020-12.
type Validator interface {
	Validate(doc *schema.Document) *schema.ValidationResult
	ValidateOptions(options map[string]any, optionsSchema []byte) error
}
