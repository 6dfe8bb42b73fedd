package diagram

import (
	"fmt"

	"github.com/anda-ren/starwhale/internal/layout"
	"github.com/anda-ren/starwhale/internal/widget"
)

// RootID is the id of the virtual node standing for the dashboard itself.
const RootID = "__dashboard__"

// Build constructs a DiagramModel from a composition tree. overlays, keyed by
// node id, may carry render outcomes; non-renderable nodes are always marked
// missing.
func Build(tree *layout.Tree, overlays map[string]*StatusOverlay) (*DiagramModel, error) {
	if tree == nil {
		return nil, fmt.Errorf("diagram: tree is nil")
	}

	title := tree.Name
	if title == "" {
		title = "Dashboard"
	}

	root := &Node{ID: RootID, Label: title, Kind: NodeKindDashboard}
	model := &DiagramModel{
		Title:  title,
		Nodes:  []*Node{root},
		Levels: [][]string{{RootID}},
	}

	err := tree.Walk(func(n *layout.Node, depth int) error {
		node := &Node{
			ID:    n.ID(),
			Label: nodeLabel(tree, n),
			Type:  n.Type,
			Kind:  nodeKind(n),
			Depth: depth + 1,
		}
		if ov, ok := overlays[node.ID]; ok && ov != nil {
			cp := *ov
			node.Status = &cp
		}
		if !n.Renderable {
			node.Status = &StatusOverlay{Status: StatusMissing}
		}
		model.Nodes = append(model.Nodes, node)

		parent := RootID
		if p := n.Parent(); p != nil {
			parent = p.ID()
		}
		model.Edges = append(model.Edges, Edge{From: parent, To: node.ID})

		for len(model.Levels) <= node.Depth {
			model.Levels = append(model.Levels, nil)
		}
		model.Levels[node.Depth] = append(model.Levels[node.Depth], node.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return model, nil
}

// nodeKind maps a widget group to a NodeKind.
func nodeKind(n *layout.Node) NodeKind {
	if !n.Renderable {
		return NodeKindMissing
	}
	switch n.Group {
	case widget.GroupLayout:
		return NodeKindLayout
	case widget.GroupControl:
		return NodeKindControl
	default:
		return NodeKindPanel
	}
}

// nodeLabel uses the node's title when it has one, followed by its type.
func nodeLabel(tree *layout.Tree, n *layout.Node) string {
	title := n.ID()
	if cfg, err := tree.Effective(n.ID()); err == nil {
		for _, key := range []string{"chartTitle", "title", "name"} {
			if s, ok := cfg[key].(string); ok && s != "" {
				title = s
				break
			}
		}
	}
	return fmt.Sprintf("%s\n(%s)", title, n.Type)
}
