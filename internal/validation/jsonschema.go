package validation

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anda-ren/starwhale/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed layout.schema.json
var layoutSchemaJSON string

const layoutSchemaURL = "https://starwhale.ai/schemas/dashboard-layout.json"

// JSONSchemaValidator implements the Validator interface using JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	layoutSchema *jsonschema.Schema

	// mu guards the cache of compiled widget option schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
	seq   int
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator with the layout schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(layoutSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal layout schema: %w", err)
	}
	if err := c.AddResource(layoutSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add layout schema resource: %w", err)
	}

	layoutSchema, err := c.Compile(layoutSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile layout schema: %w", err)
	}

	return &JSONSchemaValidator{
		layoutSchema: layoutSchema,
		cache:        make(map[string]*jsonschema.Schema),
	}, nil
}

// Validate checks the structure of a layout document. Every schema
// violation becomes one error issue located by its JSON pointer.
func (v *JSONSchemaValidator) Validate(doc *schema.Document) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if doc == nil {
		result.AddError("/", schema.ErrCodeValidation, "layout document is nil")
		return result
	}

	value, err := toJSONValue(doc)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "failed to serialize layout document: "+err.Error())
		return result
	}

	if err := v.layoutSchema.Validate(value); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			result.AddError("/", schema.ErrCodeValidation, err.Error())
			return result
		}
		for _, vi := range collectViolations(verr) {
			result.AddError(vi.location, issueCode(vi), vi.message)
		}
	}
	return result
}

// ValidateOptions validates widget options against the widget's options
// schema. An empty schema accepts everything.
func (v *JSONSchemaValidator) ValidateOptions(options map[string]any, optionsSchema []byte) error {
	if len(optionsSchema) == 0 {
		return nil
	}

	compiled, err := v.getOrCompile(optionsSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid options schema").WithCause(err)
	}

	if options == nil {
		options = map[string]any{}
	}
	doc, err := toJSONValue(options)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize options").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toSchemaError(err)
	}
	return nil
}

// CheckSchema reports whether optionsSchema compiles.
func (v *JSONSchemaValidator) CheckSchema(optionsSchema []byte) error {
	if len(optionsSchema) == 0 {
		return nil
	}
	if _, err := v.getOrCompile(optionsSchema); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid options schema").WithCause(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each schema gets a unique URL and its own compiler.
	v.seq++
	url := fmt.Sprintf("swdash://options-schema/%d", v.seq)

	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toSchemaError converts a jsonschema.ValidationError into a VALIDATION_ERROR
// listing every violation.
func toSchemaError(err error) *schema.Error {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	msgs := make([]string, len(violations))
	for i, vi := range violations {
		msgs[i] = vi.String()
	}
	if len(msgs) == 1 {
		return schema.NewError(schema.ErrCodeValidation, msgs[0]).
			WithDetails(map[string]any{"violations": msgs})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(msgs)).
		WithDetails(map[string]any{"violations": msgs})
}

type violation struct {
	location string
	keyword  string
	message  string
}

func (v violation) String() string {
	return fmt.Sprintf("%s: %s", v.location, v.message)
}

// collectViolations walks a ValidationError tree and collects the leaf errors
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		keyword := ""
		if verr.ErrorKind != nil {
			if kp := verr.ErrorKind.KeywordPath(); len(kp) > 0 {
				keyword = kp[len(kp)-1]
			}
		}
		return []violation{{location: loc, keyword: keyword, message: verr.Error()}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

// issueCode maps a missing node id to MISSING_ID; everything else is a
// plain validation error.
func issueCode(v violation) string {
	if v.keyword == "required" && strings.HasSuffix(v.location, "/overrides") && strings.Contains(v.message, "id") {
		return schema.IssueMissingID
	}
	if v.keyword == "minLength" && strings.HasSuffix(v.location, "/overrides/id") {
		return schema.IssueMissingID
	}
	return schema.ErrCodeValidation
}

var _ Validator = (*JSONSchemaValidator)(nil)
