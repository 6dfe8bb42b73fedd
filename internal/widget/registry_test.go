package widget

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/anda-ren/starwhale/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func panelPlugin(name string) *Plugin {
	return NewPlugin(RendererFunc(func(ctx context.Context, req RenderRequest) (*Rendered, error) {
		return &Rendered{Kind: name}, nil
	}), Config{
		Group:   GroupPanel,
		Name:    name,
		Options: map[string]any{"chartTitle": name, "layout": map[string]any{"width": 400, "height": 300}},
	})
}

func layoutPlugin(name string) *Plugin {
	return NewPlugin(nil, Config{Group: GroupLayout, Name: name})
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%04d", n)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ui:panel:table", panelPlugin("Table")))

	assert.True(t, r.Has("ui:panel:table"))
	assert.Equal(t, 1, r.Count())

	p, ok := r.GetPlugin("ui:panel:table")
	require.True(t, ok)
	assert.Equal(t, "ui:panel:table", p.Defaults.Type, "type filled from the registration key")
	assert.Equal(t, "Table", p.Defaults.Name)
}

func TestRegistry_DuplicateKeepsFirst(t *testing.T) {
	var logs bytes.Buffer
	r := NewRegistry(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	require.NoError(t, r.Register("ui:panel:table", panelPlugin("first")))
	require.NoError(t, r.Register("ui:panel:table", panelPlugin("second")))

	p, ok := r.GetPlugin("ui:panel:table")
	require.True(t, ok)
	assert.Equal(t, "first", p.Defaults.Name)
	assert.Equal(t, []string{"ui:panel:table"}, r.ListTypes())

	out, err := p.Renderer.Render(context.Background(), RenderRequest{})
	require.NoError(t, err)
	assert.Equal(t, "first", out.Kind)

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "widget_type=ui:panel:table")

	// A duplicate is a no-op even when the second plugin would not validate.
	invalid := []*Plugin{
		NewPlugin(nil, Config{Group: "CHART"}),
		NewPlugin(nil, Config{Type: "ui:panel:other", Group: GroupPanel, Name: "mismatch"}),
		nil,
	}
	for _, second := range invalid {
		require.NoError(t, r.Register("ui:panel:table", second))
	}
	assert.Equal(t, 1, r.Count())
	p, ok = r.GetPlugin("ui:panel:table")
	require.True(t, ok)
	assert.Equal(t, "first", p.Defaults.Name)
	assert.Equal(t, 4, strings.Count(logs.String(), "widget type already registered"))
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name       string
		widgetType string
		plugin     *Plugin
	}{
		{"nil plugin", "ui:panel:x", nil},
		{"empty type", "  ", panelPlugin("x")},
		{"missing name", "ui:panel:x", NewPlugin(nil, Config{Group: GroupPanel})},
		{"bad group", "ui:panel:x", NewPlugin(nil, Config{Group: "CHART", Name: "x"})},
		{"type mismatch", "ui:panel:x", NewPlugin(nil, Config{Type: "ui:panel:y", Group: GroupPanel, Name: "x"})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Register(tc.widgetType, tc.plugin)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
		})
	}
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ListOrderAndPanels(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ui:panel:table", panelPlugin("Table")))
	require.NoError(t, r.Register("ui:dndList", layoutPlugin("List")))
	require.NoError(t, r.Register("ui:panel:confusion_matrix", panelPlugin("Confusion Matrix")))

	assert.Equal(t, []string{"ui:panel:table", "ui:dndList", "ui:panel:confusion_matrix"}, r.ListTypes())
	assert.Len(t, r.List(), 3)

	panels := r.ListPanels()
	require.Len(t, panels, 2)
	assert.Equal(t, "ui:panel:table", panels[0].Type)
	assert.Equal(t, "ui:panel:confusion_matrix", panels[1].Type)
	for _, p := range panels {
		assert.Equal(t, GroupPanel, p.Group)
	}

	// Listed configs are copies.
	panels[0].Options["chartTitle"] = "changed"
	again := r.ListPanels()
	assert.Equal(t, "Table", again[0].Options["chartTitle"])
}

func TestRegistry_UnknownTypeIsAbsent(t *testing.T) {
	r := NewRegistry()

	p, ok := r.GetPlugin("ui:panel:does_not_exist")
	assert.False(t, ok)
	assert.Nil(t, p)

	inst, ok := r.Instantiate("ui:panel:does_not_exist")
	assert.False(t, ok)
	assert.Nil(t, inst)
}

func TestRegistry_Instantiate(t *testing.T) {
	r := NewRegistry(WithIDGenerator(sequentialIDs()))
	require.NoError(t, r.Register("ui:panel:table", panelPlugin("Table")))
	require.NoError(t, r.Register("ui:dndList", layoutPlugin("List")))

	a, ok := r.Instantiate("ui:panel:table")
	require.True(t, ok)
	assert.Equal(t, Node{Type: "ui:panel:table", ID: "panel-0001"}, a.Node)
	assert.Equal(t, map[string]any{"id": "panel-0001"}, a.Overrides)
	assert.Equal(t, "Table", a.Defaults.Name)

	l, ok := r.Instantiate("ui:dndList")
	require.True(t, ok)
	assert.Equal(t, "layout-0002", l.ID())
}

func TestRegistry_DefaultIDsAreUUIDs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ui:panel:table", panelPlugin("Table")))

	a, _ := r.Instantiate("ui:panel:table")
	b, _ := r.Instantiate("ui:panel:table")
	assert.NotEqual(t, a.ID(), b.ID())
	assert.True(t, strings.HasPrefix(a.ID(), "panel-"))
	assert.Len(t, a.ID(), len("panel-")+36)
}

func TestRegistry_InstancesDoNotAlias(t *testing.T) {
	r := NewRegistry()
	plugin := panelPlugin("Table")
	require.NoError(t, r.Register("ui:panel:table", plugin))

	a, _ := r.Instantiate("ui:panel:table")
	b, _ := r.Instantiate("ui:panel:table")

	require.NoError(t, a.Set("chartTitle", "mine"))
	a.Defaults.Options["layout"].(map[string]any)["width"] = 1

	v, _ := b.Get("chartTitle")
	assert.Equal(t, "Table", v)
	assert.Equal(t, 400, b.Defaults.Options["layout"].(map[string]any)["width"])

	p, _ := r.GetPlugin("ui:panel:table")
	assert.Equal(t, 400, p.Defaults.Options["layout"].(map[string]any)["width"])
	assert.NotContains(t, p.Defaults.Options, "id")

	// The caller's plugin value is not shared with the registry either.
	plugin.Defaults.Options["chartTitle"] = "mutated after register"
	p, _ = r.GetPlugin("ui:panel:table")
	assert.Equal(t, "Table", p.Defaults.Options["chartTitle"])
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			widgetType := fmt.Sprintf("ui:panel:p%d", i%8)
			assert.NoError(t, r.Register(widgetType, panelPlugin(widgetType)))
			_, ok := r.Instantiate(widgetType)
			assert.True(t, ok)
			_ = r.ListPanels()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, r.Count())
}
