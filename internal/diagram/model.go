package diagram

// NodeKind classifies a diagram node by its widget group.
type NodeKind string

const (
	NodeKindDashboard NodeKind = "dashboard"
	NodeKindLayout    NodeKind = "layout"
	NodeKindPanel     NodeKind = "panel"
	NodeKindControl   NodeKind = "control"
	NodeKindMissing   NodeKind = "missing"
)

// Status values carried by a StatusOverlay.
const (
	StatusRendered = "rendered"
	StatusFailed   = "failed"
	StatusMissing  = "missing"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single widget node in the diagram.
type Node struct {
	ID     string
	Label  string
	Type   string
	Kind   NodeKind
	Depth  int
	Status *StatusOverlay
}

// StatusOverlay carries the outcome of rendering a node.
type StatusOverlay struct {
	Status  string
	Skipped int
	Error   string
}

// Edge links a layout widget to one of its children.
type Edge struct {
	From  string
	To    string
	Label string
}
