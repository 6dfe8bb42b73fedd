// Package layout holds the composition tree of a dashboard: the ordered,
// nested widget nodes a layout document describes, bound to a widget registry.
package layout

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/anda-ren/starwhale/internal/metrics"
	"github.com/anda-ren/starwhale/internal/validation"
	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// Node is one widget placed in the tree. Overrides is the user-set layer and
// always carries the node id. Renderable is recomputed on every load and is
// never persisted.
type Node struct {
	Type       string
	Overrides  map[string]any
	Children   []*Node
	Renderable bool
	Group      widget.Group

	id     string
	parent *Node
	plugin *widget.Plugin
}

// ID returns the node id.
func (n *Node) ID() string { return n.id }

// Parent returns the enclosing node, nil at the root level.
func (n *Node) Parent() *Node { return n.parent }

// Widget returns the node as a widget.Node.
func (n *Node) Widget() widget.Node { return widget.Node{Type: n.Type, ID: n.id} }

// Loader binds layout documents to a widget registry.
type Loader struct {
	widgets   *widget.Registry
	validator *validation.LayoutValidator
	logger    *slog.Logger
}

// NewLoader creates a Loader for reg.
func NewLoader(reg *widget.Registry) (*Loader, error) {
	if reg == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "widget registry is nil")
	}
	lv, err := validation.NewLayoutValidator(reg)
	if err != nil {
		return nil, fmt.Errorf("create layout validator: %w", err)
	}
	return &Loader{widgets: reg, validator: lv, logger: reg.Logger()}, nil
}

// Registry returns the registry the loader resolves widget types against.
func (l *Loader) Registry() *widget.Registry { return l.widgets }

// Validate runs the full validation pipeline on doc.
func (l *Loader) Validate(doc *schema.Document) *schema.ValidationResult {
	return l.validator.Validate(doc)
}

// CheckInstance validates the effective configuration of a standalone
// instance against its widget's options schema.
func (l *Loader) CheckInstance(inst *widget.Instance) error {
	if inst == nil || len(inst.Defaults.OptionsSchema) == 0 {
		return nil
	}
	eff, err := inst.Effective()
	if err != nil {
		return err
	}
	if err := l.validator.ValidateOptions(eff, inst.Defaults.OptionsSchema); err != nil {
		var se *schema.Error
		if errors.As(err, &se) {
			return se.WithWidget(inst.ID())
		}
		return err
	}
	return nil
}

// Load builds a tree from doc. Nodes whose type is not registered are kept
// with Renderable=false so that saving the tree reproduces the document.
// Load fails only for documents it cannot represent: missing or duplicate
// node ids, empty types or an unsupported format version.
func (l *Loader) Load(doc *schema.Document) (*Tree, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "layout document is nil")
	}
	if err := validation.CheckVersion(doc.Version); err != nil {
		return nil, err
	}

	t := &Tree{
		Version: doc.Version,
		Name:    doc.Name,
		loader:  l,
		byID:    make(map[string]*Node),
	}

	roots, err := t.build(doc.Widgets, nil, schema.RootPath)
	if err != nil {
		return nil, err
	}
	t.Roots = roots

	skipped := t.NonRenderable()
	for _, n := range skipped {
		l.logger.Warn("widget type not registered, node will not render",
			slog.String("widget_id", n.id),
			slog.String("widget_type", n.Type))
	}
	metrics.NonRenderable(len(skipped))

	l.logger.Debug("layout loaded",
		slog.Int("nodes", len(t.byID)),
		slog.Int("non_renderable", len(skipped)))
	return t, nil
}

// Load is shorthand for NewLoader(reg) followed by Load(doc).
func Load(doc *schema.Document, reg *widget.Registry) (*Tree, error) {
	l, err := NewLoader(reg)
	if err != nil {
		return nil, err
	}
	return l.Load(doc)
}

// Tree is a loaded dashboard layout. A Tree has a single owner and is not
// safe for concurrent use.
type Tree struct {
	Version string
	Name    string
	Roots   []*Node

	loader *Loader
	byID   map[string]*Node
}

func (t *Tree) build(specs []schema.NodeSpec, parent *Node, prefix string) ([]*Node, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	nodes := make([]*Node, 0, len(specs))
	for i, spec := range specs {
		path := schema.NodePath(prefix, i)
		if spec.Type == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node at %s has an empty type", path)
		}
		id := spec.ID()
		if id == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node at %s has no id", path).
				WithDetails(map[string]any{"path": path, "code": schema.IssueMissingID})
		}
		if _, dup := t.byID[id]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node id %q at %s", id, path).
				WithDetails(map[string]any{"path": path, "code": schema.IssueDuplicateID})
		}

		n := &Node{
			Type:      spec.Type,
			Overrides: widget.DeepCopy(spec.Overrides),
			id:        id,
			parent:    parent,
		}
		t.bind(n)
		t.byID[id] = n

		children, err := t.build(spec.Children, n, schema.ChildrenPath(path))
		if err != nil {
			return nil, err
		}
		n.Children = children
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// bind resolves the node's plugin and renderable flag.
func (t *Tree) bind(n *Node) {
	p, ok := t.loader.widgets.GetPlugin(n.Type)
	n.plugin = p
	n.Renderable = ok
	if ok {
		n.Group = p.Defaults.Group
	}
}

// Save returns the persisted form of the tree. Loading a document and saving
// it without edits yields an identical document.
func (t *Tree) Save() schema.Document {
	widgets := saveNodes(t.Roots)
	if widgets == nil {
		widgets = []schema.NodeSpec{}
	}
	return schema.Document{Version: t.Version, Name: t.Name, Widgets: widgets}
}

func saveNodes(nodes []*Node) []schema.NodeSpec {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]schema.NodeSpec, len(nodes))
	for i, n := range nodes {
		out[i] = schema.NodeSpec{
			Type:      n.Type,
			Overrides: widget.DeepCopy(n.Overrides),
			Children:  saveNodes(n.Children),
		}
	}
	return out
}

// Validate runs the full validation pipeline on the saved form of the tree.
func (t *Tree) Validate() *schema.ValidationResult {
	doc := t.Save()
	return t.loader.Validate(&doc)
}

// Find returns the node with the given id.
func (t *Tree) Find(id string) (*Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.byID) }

// Walk visits every node depth-first in document order. Walking stops at
// the first error fn returns.
func (t *Tree) Walk(fn func(n *Node, depth int) error) error {
	return walk(t.Roots, 0, fn)
}

func walk(nodes []*Node, depth int, fn func(*Node, int) error) error {
	for _, n := range nodes {
		if err := fn(n, depth); err != nil {
			return err
		}
		if err := walk(n.Children, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// NonRenderable returns the nodes whose widget type is not registered, in
// document order.
func (t *Tree) NonRenderable() []*Node {
	var out []*Node
	_ = t.Walk(func(n *Node, _ int) error {
		if !n.Renderable {
			out = append(out, n)
		}
		return nil
	})
	return out
}

// Refresh re-resolves every node against the registry, so that widgets
// registered after loading become renderable.
func (t *Tree) Refresh() int {
	count := 0
	_ = t.Walk(func(n *Node, _ int) error {
		t.bind(n)
		if !n.Renderable {
			count++
		}
		return nil
	})
	return count
}
