package layout

import (
	"errors"
	"log/slog"

	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// Add instantiates widgetType and appends it to the children of parentID, or
// to the root level when parentID is empty. Only layout widgets take children.
func (t *Tree) Add(parentID, widgetType string) (*Node, error) {
	var parent *Node
	if parentID != "" {
		p, ok := t.byID[parentID]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "parent node %q not found", parentID)
		}
		if !p.Renderable || p.Group != widget.GroupLayout {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"node %q (%s) is not a layout widget and cannot have children", parentID, p.Type).WithWidget(parentID)
		}
		parent = p
	}

	inst, ok := t.loader.widgets.Instantiate(widgetType)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "widget type %q is not registered", widgetType)
	}
	if _, dup := t.byID[inst.ID()]; dup {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "node id %q already exists", inst.ID())
	}

	n := &Node{
		Type:      widgetType,
		Overrides: inst.Overrides,
		id:        inst.ID(),
		parent:    parent,
	}
	t.bind(n)
	t.byID[n.id] = n

	if parent == nil {
		t.Roots = append(t.Roots, n)
	} else {
		parent.Children = append(parent.Children, n)
	}

	t.loader.logger.Debug("widget added",
		slog.String("widget_id", n.id),
		slog.String("widget_type", widgetType),
		slog.String("parent_id", parentID))
	return n, nil
}

// Remove deletes the node and its whole subtree.
func (t *Tree) Remove(id string) error {
	n, ok := t.byID[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id)
	}

	if n.parent == nil {
		t.Roots = without(t.Roots, n)
	} else {
		n.parent.Children = without(n.parent.Children, n)
	}

	_ = walk([]*Node{n}, 0, func(m *Node, _ int) error {
		delete(t.byID, m.id)
		return nil
	})
	n.parent = nil
	return nil
}

func without(nodes []*Node, target *Node) []*Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n != target {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Configure writes fields into the node's override layer. A nil value clears
// the override so the default applies again. The id cannot change. When the
// widget declares an options schema the merged configuration must satisfy it,
// otherwise the node is left untouched.
func (t *Tree) Configure(id string, fields map[string]any) error {
	n, ok := t.byID[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id)
	}
	if v, set := fields[schema.OverrideIDKey]; set {
		if s, isString := v.(string); !isString || s != id {
			return schema.NewError(schema.ErrCodeValidation, "the id override cannot be changed").WithWidget(id)
		}
	}

	candidate := widget.DeepCopy(n.Overrides)
	if candidate == nil {
		candidate = map[string]any{schema.OverrideIDKey: id}
	}
	for k, v := range widget.DeepCopy(fields) {
		if k == schema.OverrideIDKey {
			continue
		}
		if v == nil {
			delete(candidate, k)
			continue
		}
		candidate[k] = v
	}

	if n.plugin != nil && len(n.plugin.Defaults.OptionsSchema) > 0 {
		eff, err := widget.EffectiveConfig(n.plugin.Defaults, candidate)
		if err != nil {
			return err
		}
		if err := t.loader.validator.ValidateOptions(eff, n.plugin.Defaults.OptionsSchema); err != nil {
			var se *schema.Error
			if errors.As(err, &se) {
				return se.WithWidget(id)
			}
			return err
		}
	}

	n.Overrides = candidate
	return nil
}

// Effective returns the node's merged configuration: plugin defaults
// overridden by the node's overrides. Non-renderable nodes only have their
// overrides.
func (t *Tree) Effective(id string) (map[string]any, error) {
	n, ok := t.byID[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id)
	}
	if n.plugin == nil {
		return widget.DeepCopy(n.Overrides), nil
	}
	return widget.EffectiveConfig(n.plugin.Defaults, n.Overrides)
}

// Instance returns a widget instance for a renderable node. The instance
// holds copies; editing it does not change the tree.
func (t *Tree) Instance(id string) (*widget.Instance, bool) {
	n, ok := t.byID[id]
	if !ok || n.plugin == nil {
		return nil, false
	}
	return &widget.Instance{
		Defaults:  n.plugin.Defaults.Clone(),
		Overrides: widget.DeepCopy(n.Overrides),
		Node:      n.Widget(),
	}, true
}
