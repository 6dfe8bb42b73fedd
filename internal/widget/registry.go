package widget

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/anda-ren/starwhale/internal/metrics"
	"github.com/anda-ren/starwhale/pkg/schema"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Registry maps widget types to plugins. It is safe for concurrent use.
// Registering a type twice is a no-op: the first plugin wins.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
	order   []string

	newUUID  func() string
	logger   *slog.Logger
	validate *validator.Validate
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithIDGenerator replaces the random part of generated node ids.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newUUID = fn
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		plugins:  make(map[string]*Plugin),
		newUUID:  uuid.NewString,
		logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a plugin under widgetType if the type is not registered yet.
// A duplicate registration leaves the existing plugin in place and returns nil
// without looking at the new plugin, so an invalid duplicate is still a no-op.
// The plugin defaults are copied; an empty Defaults.Type takes widgetType.
func (r *Registry) Register(widgetType string, p *Plugin) error {
	if strings.TrimSpace(widgetType) == "" {
		metrics.WidgetRegistered(metrics.ResultRejected)
		return schema.NewError(schema.ErrCodeValidation, "widget type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[widgetType]; exists {
		metrics.WidgetRegistered(metrics.ResultDuplicate)
		r.logger.Warn("widget type already registered, keeping the first plugin",
			slog.String("widget_type", widgetType))
		return nil
	}

	if p == nil {
		metrics.WidgetRegistered(metrics.ResultRejected)
		return schema.NewError(schema.ErrCodeValidation, "widget plugin is nil")
	}
	defaults := p.Defaults.Clone()
	if defaults.Type == "" {
		defaults.Type = widgetType
	}
	if err := r.checkDefaults(widgetType, defaults); err != nil {
		metrics.WidgetRegistered(metrics.ResultRejected)
		return err
	}

	r.plugins[widgetType] = &Plugin{Renderer: p.Renderer, Defaults: defaults}
	r.order = append(r.order, widgetType)
	metrics.WidgetRegistered(metrics.ResultRegistered)
	r.logger.Debug("widget registered",
		slog.String("widget_type", widgetType),
		slog.String("group", string(defaults.Group)))
	return nil
}

func (r *Registry) checkDefaults(widgetType string, c Config) error {
	if c.Type != widgetType {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"plugin defaults declare type %q but are registered as %q", c.Type, widgetType)
	}
	if err := r.validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		fields := []string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
		}
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid defaults for widget %q", widgetType).
			WithCause(err).
			WithDetails(map[string]any{"fields": fields})
	}
	return nil
}

// ListTypes returns the registered types in registration order.
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns copies of every plugin's defaults in registration order.
func (r *Registry) List() []Config {
	return r.listWhere(func(Config) bool { return true })
}

// ListPanels returns copies of the defaults of PANEL widgets in registration order.
func (r *Registry) ListPanels() []Config {
	return r.listWhere(func(c Config) bool { return c.Group == GroupPanel })
}

func (r *Registry) listWhere(keep func(Config) bool) []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, 0, len(r.order))
	for _, t := range r.order {
		d := r.plugins[t].Defaults
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	return out
}

// GetPlugin returns a copy of the plugin registered for widgetType.
func (r *Registry) GetPlugin(widgetType string) (*Plugin, bool) {
	r.mu.RLock()
	p, ok := r.plugins[widgetType]
	r.mu.RUnlock()

	if !ok {
		metrics.WidgetLookupMiss()
		return nil, false
	}
	return &Plugin{Renderer: p.Renderer, Defaults: p.Defaults.Clone()}, true
}

// Has reports whether widgetType is registered.
func (r *Registry) Has(widgetType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[widgetType]
	return ok
}

// Count returns the number of registered types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Instantiate creates a new instance of widgetType with a fresh node id and
// a private copy of the plugin defaults. It reports false for unknown types.
func (r *Registry) Instantiate(widgetType string) (*Instance, bool) {
	p, ok := r.GetPlugin(widgetType)
	if !ok {
		r.logger.Debug("instantiate: widget type not registered", slog.String("widget_type", widgetType))
		return nil, false
	}
	return r.InstanceWithID(p, GenerateID(p.Defaults.Group, r.newUUID)), true
}

// InstanceWithID builds an instance for an existing node id, as when a saved
// layout is loaded.
func (r *Registry) InstanceWithID(p *Plugin, id string) *Instance {
	inst := &Instance{
		Defaults:  p.Defaults.Clone(),
		Overrides: map[string]any{schema.OverrideIDKey: id},
		Node:      Node{Type: p.Defaults.Type, ID: id},
	}
	metrics.WidgetInstantiated(inst.Node.Type)
	return inst
}

// Logger returns the registry logger.
func (r *Registry) Logger() *slog.Logger { return r.logger }
