package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/anda-ren/starwhale/internal/layout"
	"github.com/anda-ren/starwhale/internal/store"
	"github.com/anda-ren/starwhale/internal/widget"
)

// DashboardServerDeps holds the dependencies for creating a DashboardServer.
// Store is optional; without it tools only accept inline layouts.
type DashboardServerDeps struct {
	Widgets *widget.Registry
	Store   store.Store
	Logger  *slog.Logger
}

// DashboardServer wraps an MCP server with dashboard tool handlers.
type DashboardServer struct {
	widgets   *widget.Registry
	loader    *layout.Loader
	store     store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewDashboardServer creates a new DashboardServer with all tools registered.
func NewDashboardServer(deps DashboardServerDeps) (*DashboardServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	widgets := deps.Widgets
	if widgets == nil {
		widgets = widget.NewRegistry(widget.WithLogger(logger))
	}
	loader, err := layout.NewLoader(widgets)
	if err != nil {
		return nil, fmt.Errorf("mcp: %w", err)
	}

	s := &DashboardServer{
		widgets: widgets,
		loader:  loader,
		store:   deps.Store,
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		"swdash",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("swdash composes evaluation dashboards from registered widgets. Use dashboard.widgets to browse the catalog, dashboard.instantiate to create a widget node, dashboard.validate_layout to check a layout document, dashboard.render to produce chart data for one node, and dashboard.diagram to draw a layout tree."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *DashboardServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *DashboardServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *DashboardServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: widgetsTool(), Handler: s.handleWidgets},
		{Tool: instantiateTool(), Handler: s.handleInstantiate},
		{Tool: validateLayoutTool(), Handler: s.handleValidateLayout},
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func widgetsTool() mcp.Tool {
	return mcp.NewTool("dashboard.widgets",
		mcp.WithDescription("List registered widget types, or describe one"),
		mcp.WithString("type", mcp.Description("Widget type to describe, e.g. ui:panel:confusion_matrix")),
		mcp.WithString("group",
			mcp.Enum("PANEL", "LAYOUT", "CONTROL"),
			mcp.Description("Only list widgets of this group"),
		),
	)
}

func instantiateTool() mcp.Tool {
	return mcp.NewTool("dashboard.instantiate",
		mcp.WithDescription("Create a widget instance with a fresh node id"),
		mcp.WithString("type", mcp.Required(), mcp.Description("Widget type to instantiate")),
		mcp.WithObject("overrides", mcp.Description("Option overrides for the new node")),
	)
}

func validateLayoutTool() mcp.Tool {
	return mcp.NewTool("dashboard.validate_layout",
		mcp.WithDescription("Validate a layout document against the widget catalog"),
		mcp.WithString("layout", mcp.Description("Layout document as JSON or YAML")),
		mcp.WithString("dashboard_id", mcp.Description("ID of a stored dashboard to validate instead")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("dashboard.render",
		mcp.WithDescription("Render one widget node of a layout over datastore records"),
		mcp.WithString("widget_id", mcp.Required(), mcp.Description("Node id of the widget to render")),
		mcp.WithString("layout", mcp.Description("Layout document as JSON or YAML")),
		mcp.WithString("dashboard_id", mcp.Description("ID of a stored dashboard")),
		mcp.WithArray("records",
			mcp.Items(map[string]any{"type": "object"}),
			mcp.Description("Datastore records: objects of column name to {type, value} cells"),
		),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("dashboard.diagram",
		mcp.WithDescription("Draw the widget tree of a layout. Returns ASCII art, Mermaid flowchart syntax, or base64-encoded PNG image"),
		mcp.WithString("layout", mcp.Description("Layout document as JSON or YAML")),
		mcp.WithString("dashboard_id", mcp.Description("ID of a stored dashboard")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (base64 PNG)"),
		),
	)
}
