package schema

import (
	"bytes"
	"encoding/json"
)

// CurrentLayoutVersion is the layout document format written by Save.
const CurrentLayoutVersion = "1.0.0"

// OverrideIDKey is the overrides field holding a node's identity.
const OverrideIDKey = "id"

// Document is the persisted, shareable form of a dashboard layout.
//
// A bare JSON array of NodeSpec is also accepted on input and is treated as a
// document with the current version and no name.
type Document struct {
	Version string     `json:"version,omitempty" yaml:"version,omitempty"`
	Name    string     `json:"name,omitempty" yaml:"name,omitempty"`
	Widgets []NodeSpec `json:"widgets" yaml:"widgets"`
}

// NodeSpec is one widget node of a layout: its type, the user-set override
// layer (which always carries "id") and, for layout widgets, its children.
type NodeSpec struct {
	Type      string         `json:"type" yaml:"type"`
	Overrides map[string]any `json:"overrides" yaml:"overrides"`
	Children  []NodeSpec     `json:"children,omitempty" yaml:"children,omitempty"`
}

// ID returns the node identity stored in the overrides, or "".
func (n NodeSpec) ID() string {
	id, _ := n.Overrides[OverrideIDKey].(string)
	return id
}

// UnmarshalJSON accepts both the object form and the bare list form.
func (d *Document) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var widgets []NodeSpec
		if err := json.Unmarshal(trimmed, &widgets); err != nil {
			return err
		}
		*d = Document{Version: CurrentLayoutVersion, Widgets: widgets}
		return nil
	}
	type plain Document
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*d = Document(p)
	return nil
}
