// Package widgets holds the built-in widget catalog and the renderers bound
// to it.
package widgets

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/anda-ren/starwhale/internal/validation"
	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/anda-ren/starwhale/pkg/schema"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// catalogFile is the root of a catalog document.
type catalogFile struct {
	Widgets []catalogEntry `yaml:"widgets"`
}

type catalogEntry struct {
	Type          string         `yaml:"type"`
	Group         widget.Group   `yaml:"group"`
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Options       map[string]any `yaml:"options"`
	OptionsSchema string         `yaml:"optionsSchema"`
}

// DefaultCatalog returns the defaults of the built-in widgets.
func DefaultCatalog() ([]widget.Config, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// ParseCatalog reads a YAML widget catalog. Types must be unique and every
// options schema must compile.
func ParseCatalog(data []byte) ([]widget.Config, error) {
	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid widget catalog").WithCause(err)
	}

	jsv, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(file.Widgets))
	out := make([]widget.Config, 0, len(file.Widgets))
	for i, e := range file.Widgets {
		if e.Type == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "catalog entry %d has no type", i)
		}
		if seen[e.Type] {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "catalog lists widget type %q twice", e.Type)
		}
		seen[e.Type] = true

		cfg := widget.Config{
			Type:        e.Type,
			Group:       e.Group,
			Name:        e.Name,
			Description: e.Description,
			Options:     e.Options,
		}
		if s := strings.TrimSpace(e.OptionsSchema); s != "" {
			if !json.Valid([]byte(s)) {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "options schema of %q is not valid JSON", e.Type)
			}
			if err := jsv.CheckSchema([]byte(s)); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "options schema of %q does not compile", e.Type).WithCause(err)
			}
			cfg.OptionsSchema = json.RawMessage(s)
		}
		out = append(out, cfg)
	}
	return out, nil
}
