// Package widget defines widget plugins, their instances and the registry
// that maps widget type strings to plugins.
package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dario.cat/mergo"
	"github.com/anda-ren/starwhale/internal/datastore"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// Group classifies widgets for catalog browsing.
type Group string

const (
	GroupPanel   Group = "PANEL"
	GroupLayout  Group = "LAYOUT"
	GroupControl Group = "CONTROL"
)

// Config is the default configuration a plugin carries.
type Config struct {
	Type          string          `json:"type" yaml:"type" validate:"required"`
	Group         Group           `json:"group" yaml:"group" validate:"required,oneof=PANEL LAYOUT CONTROL"`
	Name          string          `json:"name" yaml:"name" validate:"required"`
	Description   string          `json:"description,omitempty" yaml:"description,omitempty"`
	Options       map[string]any  `json:"options,omitempty" yaml:"options,omitempty"`
	OptionsSchema json.RawMessage `json:"optionsSchema,omitempty" yaml:"-"`
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.Options = deepCopyMap(c.Options)
	if c.OptionsSchema != nil {
		out.OptionsSchema = append(json.RawMessage(nil), c.OptionsSchema...)
	}
	return out
}

// Node identifies one placed widget.
type Node struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RenderRequest carries everything a renderer needs for one node.
type RenderRequest struct {
	Node     Node
	Config   map[string]any
	Records  []datastore.DecodedRecord
	Children []Node
}

// Rendered is chart-ready output for the external renderer.
type Rendered struct {
	Kind    string `json:"kind"`
	Data    any    `json:"data"`
	Skipped int    `json:"skipped"`
}

// Renderer produces the data for one widget node.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*Rendered, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, req RenderRequest) (*Rendered, error)

func (f RendererFunc) Render(ctx context.Context, req RenderRequest) (*Rendered, error) {
	return f(ctx, req)
}

// Plugin pairs a renderer with its default configuration.
type Plugin struct {
	Renderer Renderer
	Defaults Config
}

// NewPlugin creates a plugin. The defaults are copied.
func NewPlugin(r Renderer, defaults Config) *Plugin {
	return &Plugin{Renderer: r, Defaults: defaults.Clone()}
}

// Instance is a widget placed in a dashboard: a private copy of the plugin
// defaults plus an override layer that always carries the node id.
type Instance struct {
	Defaults  Config         `json:"defaults"`
	Overrides map[string]any `json:"overrides"`
	Node      Node           `json:"node"`
}

// ID returns the node id.
func (i *Instance) ID() string { return i.Node.ID }

// Set writes an override. The id key is fixed at instantiation.
func (i *Instance) Set(key string, value any) error {
	if key == schema.OverrideIDKey {
		return schema.NewError(schema.ErrCodeValidation, "the id override cannot be changed").WithWidget(i.Node.ID)
	}
	if i.Overrides == nil {
		i.Overrides = map[string]any{schema.OverrideIDKey: i.Node.ID}
	}
	i.Overrides[key] = deepCopyAny(value)
	return nil
}

// Get returns the effective value of one option: the override when set,
// otherwise the default.
func (i *Instance) Get(key string) (any, bool) {
	if v, ok := i.Overrides[key]; ok {
		return v, true
	}
	v, ok := i.Defaults.Options[key]
	return v, ok
}

// Effective merges the defaults (options plus name) with the overrides.
// Nested maps merge key by key; everything else is replaced.
func (i *Instance) Effective() (map[string]any, error) {
	return EffectiveConfig(i.Defaults, i.Overrides)
}

// EffectiveConfig computes the merged configuration without touching either input.
func EffectiveConfig(defaults Config, overrides map[string]any) (map[string]any, error) {
	out := deepCopyMap(defaults.Options)
	if out == nil {
		out = map[string]any{}
	}
	if _, ok := out["name"]; !ok && defaults.Name != "" {
		out["name"] = defaults.Name
	}
	if len(overrides) == 0 {
		return out, nil
	}
	if err := mergo.Merge(&out, deepCopyMap(overrides), mergo.WithOverride); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "merge overrides: %s", err.Error()).WithCause(err)
	}
	return out, nil
}

// GenerateID returns a node id of the form "<group>-<uuid>".
func GenerateID(group Group, newUUID func() string) string {
	return fmt.Sprintf("%s-%s", strings.ToLower(string(group)), newUUID())
}
