package widgets

import (
	"context"

	"github.com/anda-ren/starwhale/internal/adapters"
	"github.com/anda-ren/starwhale/internal/expressions"
	"github.com/anda-ren/starwhale/internal/metrics"
	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// Built-in widget types.
const (
	TypeDndList         = "ui:dndList"
	TypeSection         = "ui:section"
	TypeTable           = "ui:panel:table"
	TypeConfusionMatrix = "ui:panel:confusion_matrix"
	TypeHeatmap         = "ui:panel:heatmap"
)

// Kinds of rendered output.
const (
	RenderKindLayout  = "layout"
	RenderKindTable   = "table"
	RenderKindHeatmap = "heatmap"
)

// Renderers returns the renderer of every built-in widget type.
func Renderers(engines *expressions.Engines) map[string]widget.Renderer {
	layout := widget.RendererFunc(renderLayout)
	return map[string]widget.Renderer{
		TypeDndList:         layout,
		TypeSection:         layout,
		TypeTable:           &adapterRenderer{adapter: adapters.NewTableAdapter(engines), kind: RenderKindTable},
		TypeConfusionMatrix: &confusionMatrixRenderer{adapter: adapters.NewConfusionMatrixAdapter(engines)},
		TypeHeatmap:         &adapterRenderer{adapter: adapters.NewHeatmapAdapter(engines), kind: RenderKindHeatmap},
	}
}

// RegisterBuiltins registers the embedded catalog on reg. Types already
// registered keep their existing plugin.
func RegisterBuiltins(reg *widget.Registry, engines *expressions.Engines) error {
	configs, err := DefaultCatalog()
	if err != nil {
		return err
	}
	renderers := Renderers(engines)
	for _, cfg := range configs {
		r, ok := renderers[cfg.Type]
		if !ok {
			return schema.NewErrorf(schema.ErrCodeValidation, "no renderer for built-in widget %q", cfg.Type)
		}
		if err := reg.Register(cfg.Type, widget.NewPlugin(r, cfg)); err != nil {
			return err
		}
	}
	return nil
}

// LayoutData summarizes a layout widget: its title and the nodes it holds.
type LayoutData struct {
	Title    string        `json:"title,omitempty"`
	Children []widget.Node `json:"children"`
}

func renderLayout(_ context.Context, req widget.RenderRequest) (*widget.Rendered, error) {
	title, _ := req.Config["title"].(string)
	children := append([]widget.Node{}, req.Children...)
	return &widget.Rendered{
		Kind: RenderKindLayout,
		Data: LayoutData{Title: title, Children: children},
	}, nil
}

// adapterRenderer renders the panel data an adapter extracts as is.
type adapterRenderer struct {
	adapter adapters.Adapter
	kind    string
}

func (r *adapterRenderer) Render(ctx context.Context, req widget.RenderRequest) (*widget.Rendered, error) {
	data, err := r.adapter.Extract(ctx, req.Records, adapters.Options(req.Config))
	if err != nil {
		return nil, err
	}
	metrics.AdapterSkipped(r.adapter.Kind(), data.SkippedRows())
	return &widget.Rendered{Kind: r.kind, Data: data, Skipped: data.SkippedRows()}, nil
}

// ConfusionMatrixData is the rendered confusion matrix: the heatmap trace
// plus the raw counts behind it.
type ConfusionMatrixData struct {
	Heatmap adapters.Heatmap          `json:"heatmap"`
	Matrix  *adapters.ConfusionMatrix `json:"matrix"`
}

type confusionMatrixRenderer struct {
	adapter *adapters.ConfusionMatrixAdapter
}

func (r *confusionMatrixRenderer) Render(ctx context.Context, req widget.RenderRequest) (*widget.Rendered, error) {
	data, err := r.adapter.Extract(ctx, req.Records, adapters.Options(req.Config))
	if err != nil {
		return nil, err
	}
	cm := data.(*adapters.ConfusionMatrix)
	metrics.AdapterSkipped(adapters.KindConfusionMatrix, cm.Skipped)

	title, _ := req.Config["chartTitle"].(string)
	if title == "" {
		title, _ = req.Config["name"].(string)
	}
	return &widget.Rendered{
		Kind:    RenderKindHeatmap,
		Data:    ConfusionMatrixData{Heatmap: cm.Heatmap(title), Matrix: cm},
		Skipped: cm.Skipped,
	}, nil
}
