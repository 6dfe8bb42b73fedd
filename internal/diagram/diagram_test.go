package diagram

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/anda-ren/starwhale/internal/layout"
	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLayout = `
version: "1.0.0"
name: eval
widgets:
  - type: ui:dndList
    overrides: {id: layout-1}
    children:
      - type: ui:panel:table
        overrides: {id: panel-1, chartTitle: Results}
      - type: ui:panel:gone
        overrides: {id: panel-2}
  - type: ui:panel:table
    overrides: {id: panel-3}
`

func sampleTree(t *testing.T) *layout.Tree {
	t.Helper()
	reg := widget.NewRegistry(widget.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	table := widget.RendererFunc(func(ctx context.Context, req widget.RenderRequest) (*widget.Rendered, error) {
		return &widget.Rendered{Kind: "table"}, nil
	})
	require.NoError(t, reg.Register("ui:dndList", widget.NewPlugin(nil, widget.Config{Group: widget.GroupLayout, Name: "List"})))
	require.NoError(t, reg.Register("ui:panel:table", widget.NewPlugin(table, widget.Config{
		Group:   widget.GroupPanel,
		Name:    "Table",
		Options: map[string]any{"chartTitle": "Table"},
	})))

	doc, err := layout.Parse([]byte(sampleLayout))
	require.NoError(t, err)
	tree, err := layout.Load(doc, reg)
	require.NoError(t, err)
	return tree
}

func sampleModel(t *testing.T) *DiagramModel {
	t.Helper()
	model, err := Build(sampleTree(t), map[string]*StatusOverlay{
		"panel-1": {Status: StatusRendered, Skipped: 2},
		"panel-3": {Status: StatusFailed, Error: "column \"label\" not found"},
	})
	require.NoError(t, err)
	return model
}

func findModelNode(t *testing.T, model *DiagramModel, id string) *Node {
	t.Helper()
	for _, n := range model.Nodes {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("node %s not in model", id)
	return nil
}

func TestBuild(t *testing.T) {
	model := sampleModel(t)

	assert.Equal(t, "eval", model.Title)
	assert.Equal(t, [][]string{
		{RootID},
		{"layout-1", "panel-3"},
		{"panel-1", "panel-2"},
	}, model.Levels)
	assert.Equal(t, []Edge{
		{From: RootID, To: "layout-1"},
		{From: "layout-1", To: "panel-1"},
		{From: "layout-1", To: "panel-2"},
		{From: RootID, To: "panel-3"},
	}, model.Edges)

	root := findModelNode(t, model, RootID)
	assert.Equal(t, NodeKindDashboard, root.Kind)

	l := findModelNode(t, model, "layout-1")
	assert.Equal(t, NodeKindLayout, l.Kind)
	assert.Equal(t, "List\n(ui:dndList)", l.Label)
	assert.Nil(t, l.Status)

	p1 := findModelNode(t, model, "panel-1")
	assert.Equal(t, NodeKindPanel, p1.Kind)
	assert.Equal(t, "Results\n(ui:panel:table)", p1.Label)
	assert.Equal(t, 2, p1.Depth)
	require.NotNil(t, p1.Status)
	assert.Equal(t, 2, p1.Status.Skipped)

	p2 := findModelNode(t, model, "panel-2")
	assert.Equal(t, NodeKindMissing, p2.Kind)
	assert.Equal(t, "panel-2\n(ui:panel:gone)", p2.Label)
	require.NotNil(t, p2.Status)
	assert.Equal(t, StatusMissing, p2.Status.Status)

	p3 := findModelNode(t, model, "panel-3")
	assert.Equal(t, "Table\n(ui:panel:table)", p3.Label)
}

func TestBuild_OverlaysAreCopied(t *testing.T) {
	ov := &StatusOverlay{Status: StatusRendered}
	model, err := Build(sampleTree(t), map[string]*StatusOverlay{"panel-1": ov})
	require.NoError(t, err)

	ov.Status = StatusFailed
	assert.Equal(t, StatusRendered, findModelNode(t, model, "panel-1").Status.Status)
}

func TestBuild_NilTree(t *testing.T) {
	_, err := Build(nil, nil)
	assert.Error(t, err)
}

func TestBuild_UntitledDashboard(t *testing.T) {
	tree := sampleTree(t)
	tree.Name = ""

	model, err := Build(tree, nil)
	require.NoError(t, err)
	assert.Equal(t, "Dashboard", model.Title)
}

func TestRenderMermaid(t *testing.T) {
	out := RenderMermaid(sampleModel(t))

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `__dashboard__(("eval"))`)
	assert.Contains(t, out, `layout_1[["List<br/>ui:dndList"]]`)
	assert.Contains(t, out, `panel_1["Results<br/>ui:panel:table"]`)
	assert.Contains(t, out, `panel_2{{"panel-2<br/>ui:panel:gone"}}`)
	assert.Contains(t, out, "__dashboard__ --> layout_1")
	assert.Contains(t, out, "layout_1 --> panel_2")
	assert.Contains(t, out, "class panel_1 rendered")
	assert.Contains(t, out, "class panel_2 missing")
	assert.Contains(t, out, "class panel_3 failed")
	assert.NotContains(t, out, "class layout_1")
}

func TestMermaidEscapesLabels(t *testing.T) {
	model := &DiagramModel{Nodes: []*Node{{ID: "a.b", Label: `say "hi"`, Kind: NodeKindPanel}}}
	out := RenderMermaid(model)
	assert.Contains(t, out, `a_b["say #quot;hi#quot;"]`)
}

func TestRenderASCII(t *testing.T) {
	out := RenderASCII(sampleModel(t))

	assert.True(t, strings.HasPrefix(out, "=== eval ===\n"))
	for _, want := range []string{
		"List", "Results", "ui:panel:gone",
		"[OK, skipped 2]", "[FAIL]", "[MISSING]",
		"column \"label\" not found",
		"layout-1 ─→ panel-2",
		"▼",
	} {
		assert.Contains(t, out, want)
	}
}

func TestStatusTag(t *testing.T) {
	assert.Equal(t, "", statusTag(nil))
	assert.Equal(t, "[OK]", statusTag(&StatusOverlay{Status: StatusRendered}))
	assert.Equal(t, "", statusTag(&StatusOverlay{Status: "queued"}))
}

func TestRenderImage(t *testing.T) {
	png, err := RenderImage(context.Background(), sampleModel(t))
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, png[:8])
}
