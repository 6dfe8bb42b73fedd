package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/anda-ren/starwhale/internal/datastore"
	"github.com/anda-ren/starwhale/internal/diagram"
	"github.com/anda-ren/starwhale/internal/layout"
	"github.com/anda-ren/starwhale/internal/logging"
	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// handleWidgets lists the catalog or describes a single widget type.
func (s *DashboardServer) handleWidgets(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if widgetType := req.GetString("type", ""); widgetType != "" {
		p, ok := s.widgets.GetPlugin(widgetType)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("widget type %q is not registered", widgetType)), nil
		}
		return marshalResult(p.Defaults)
	}

	group := widget.Group(req.GetString("group", ""))
	out := make([]widget.Config, 0, s.widgets.Count())
	for _, cfg := range s.widgets.List() {
		if group == "" || cfg.Group == group {
			out = append(out, cfg)
		}
	}
	return marshalResult(out)
}

// handleInstantiate creates a widget instance and applies the overrides.
func (s *DashboardServer) handleInstantiate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	widgetType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("type is required"), nil
	}
	overrides := mcp.ParseStringMap(req, "overrides", nil)

	inst, ok := s.widgets.Instantiate(widgetType)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("widget type %q is not registered", widgetType)), nil
	}
	for k, v := range overrides {
		if setErr := inst.Set(k, v); setErr != nil {
			return mcp.NewToolResultError(setErr.Error()), nil
		}
	}
	if checkErr := s.loader.CheckInstance(inst); checkErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid overrides: %v", checkErr)), nil
	}
	return marshalResult(inst)
}

type layoutReport struct {
	Valid         bool                     `json:"valid"`
	Errors        []schema.ValidationIssue `json:"errors,omitempty"`
	Warnings      []schema.ValidationIssue `json:"warnings,omitempty"`
	NonRenderable []string                 `json:"non_renderable,omitempty"`
}

// handleValidateLayout runs the validation pipeline on a layout document.
func (s *DashboardServer) handleValidateLayout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.resolveDocument(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.loader.Validate(doc)
	report := layoutReport{
		Valid:    result.Valid(),
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
	if report.Valid {
		tree, loadErr := s.loader.Load(doc)
		if loadErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("layout load failed: %v", loadErr)), nil
		}
		for _, n := range tree.NonRenderable() {
			report.NonRenderable = append(report.NonRenderable, n.ID())
		}
	}
	return marshalResult(report)
}

// handleRender renders one node over the given records.
func (s *DashboardServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	widgetID, err := req.RequireString("widget_id")
	if err != nil {
		return mcp.NewToolResultError("widget_id is required"), nil
	}

	tree, err := s.resolveTree(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	records, err := parseRecordsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if id := req.GetString("dashboard_id", ""); id != "" {
		ctx = logging.WithDashboardID(ctx, id)
	}
	out, err := tree.Render(ctx, widgetID, records)
	if err != nil {
		logging.LogWith(ctx, s.logger).Debug("render tool failed", slog.String("error", err.Error()))
		return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
	}
	return marshalResult(out)
}

// handleDiagram draws the widget tree in the requested format.
func (s *DashboardServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	tree, err := s.resolveTree(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	model, err := diagram.Build(tree, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// --- Helpers ---

// resolveDocument reads the layout argument, or the stored dashboard named
// by dashboard_id.
func (s *DashboardServer) resolveDocument(ctx context.Context, req mcp.CallToolRequest) (*schema.Document, error) {
	if raw := req.GetString("layout", ""); raw != "" {
		return layout.Parse([]byte(raw))
	}
	id := req.GetString("dashboard_id", "")
	if id == "" {
		return nil, fmt.Errorf("one of layout or dashboard_id is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("no dashboard store is configured")
	}
	d, err := s.store.GetDashboard(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("dashboard lookup failed: %w", err)
	}
	if d.Document.Name == "" {
		d.Document.Name = d.Name
	}
	return &d.Document, nil
}

func (s *DashboardServer) resolveTree(ctx context.Context, req mcp.CallToolRequest) (*layout.Tree, error) {
	doc, err := s.resolveDocument(ctx, req)
	if err != nil {
		return nil, err
	}
	tree, err := s.loader.Load(doc)
	if err != nil {
		return nil, fmt.Errorf("layout load failed: %w", err)
	}
	return tree, nil
}

// parseRecordsArg decodes the records argument from its wire form.
func parseRecordsArg(req mcp.CallToolRequest) ([]datastore.DecodedRecord, error) {
	raw, ok := req.GetArguments()["records"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	recs, err := datastore.ParseRecords(data)
	if err != nil {
		return nil, err
	}
	return datastore.DecodeAll(recs), nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
