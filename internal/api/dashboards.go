package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/anda-ren/starwhale/internal/datastore"
	"github.com/anda-ren/starwhale/internal/diagram"
	"github.com/anda-ren/starwhale/internal/layout"
	"github.com/anda-ren/starwhale/internal/logging"
	"github.com/anda-ren/starwhale/internal/store"
	"github.com/anda-ren/starwhale/internal/streaming"
	"github.com/anda-ren/starwhale/pkg/schema"
)

type dashboardResponse struct {
	Dashboard *store.Dashboard         `json:"dashboard"`
	Warnings  []schema.ValidationIssue `json:"warnings,omitempty"`
}

// queryInt extracts an integer query param with a default value.
func queryInt(c echo.Context, key string, def int) int {
	v := c.QueryParam(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// readDocument parses a JSON or YAML layout document from the request body
// and rejects it when validation reports errors.
func (s *Server) readDocument(c echo.Context) (*schema.Document, *schema.ValidationResult, error) {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "failed to read request body").WithCause(err)
	}
	doc, err := layout.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	result := s.loader.Validate(doc)
	if err := result.ToError(); err != nil {
		return nil, nil, err
	}
	if _, err := s.loader.Load(doc); err != nil {
		return nil, nil, err
	}
	return doc, result, nil
}

func (s *Server) handleListDashboards(c echo.Context) error {
	list, err := s.deps.Store.ListDashboards(c.Request().Context(), store.DashboardFilter{
		NamePrefix: c.QueryParam("prefix"),
		Limit:      queryInt(c, "limit", 50),
		Offset:     queryInt(c, "offset", 0),
	})
	if err != nil {
		return err
	}
	if list == nil {
		list = []*store.Dashboard{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleCreateDashboard(c echo.Context) error {
	doc, result, err := s.readDocument(c)
	if err != nil {
		return err
	}
	d := &store.Dashboard{Name: c.QueryParam("name"), Document: *doc}
	if err := s.deps.Store.SaveDashboard(c.Request().Context(), d); err != nil {
		return err
	}
	s.deps.Logger.Info("dashboard created",
		slog.String("dashboard_id", d.ID),
		slog.Int64("revision", d.Revision))
	s.publishSaved(c.Request().Context(), d)
	return c.JSON(http.StatusCreated, dashboardResponse{Dashboard: d, Warnings: result.Warnings})
}

func (s *Server) handlePutDashboard(c echo.Context) error {
	doc, result, err := s.readDocument(c)
	if err != nil {
		return err
	}
	d := &store.Dashboard{ID: c.Param("id"), Name: c.QueryParam("name"), Document: *doc}
	if err := s.deps.Store.SaveDashboard(c.Request().Context(), d); err != nil {
		return err
	}
	s.publishSaved(c.Request().Context(), d)
	return c.JSON(http.StatusOK, dashboardResponse{Dashboard: d, Warnings: result.Warnings})
}

func (s *Server) handleGetDashboard(c echo.Context) error {
	d, err := s.deps.Store.GetDashboard(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	// Widget types may have been unregistered since the dashboard was saved.
	result := s.loader.Validate(&d.Document)
	return c.JSON(http.StatusOK, dashboardResponse{Dashboard: d, Warnings: result.Warnings})
}

func (s *Server) handleDeleteDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := s.deps.Store.DeleteDashboard(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, streaming.Event{DashboardID: id, Type: streaming.EventDashboardDeleted})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListRevisions(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := s.deps.Store.GetDashboard(ctx, id); err != nil {
		return err
	}
	revs, err := s.deps.Store.ListRevisions(ctx, id, int64(queryInt(c, "since", 0)))
	if err != nil {
		return err
	}
	if revs == nil {
		revs = []*store.Revision{}
	}
	return c.JSON(http.StatusOK, revs)
}

// loadTree reads a stored dashboard and binds it to the registry.
func (s *Server) loadTree(c echo.Context) (*layout.Tree, error) {
	d, err := s.deps.Store.GetDashboard(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	tree, err := s.loader.Load(&d.Document)
	if err != nil {
		return nil, err
	}
	if tree.Name == "" {
		tree.Name = d.Name
	}
	return tree, nil
}

func (s *Server) handleDiagram(c echo.Context) error {
	tree, err := s.loadTree(c)
	if err != nil {
		return err
	}
	model, err := diagram.Build(tree, nil)
	if err != nil {
		return err
	}

	switch format := c.QueryParam("format"); format {
	case "", "mermaid":
		return c.String(http.StatusOK, diagram.RenderMermaid(model))
	case "ascii":
		return c.String(http.StatusOK, diagram.RenderASCII(model))
	case "json":
		return c.JSON(http.StatusOK, model)
	case "png":
		png, err := diagram.RenderImage(c.Request().Context(), model)
		if err != nil {
			return schema.NewError(schema.ErrCodeExecution, "diagram rendering failed").WithCause(err)
		}
		return c.Blob(http.StatusOK, "image/png", png)
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", format)
	}
}

// handleRender renders one node of a stored dashboard over the records in
// the request body: a JSON array of records or {"records": [...]}.
func (s *Server) handleRender(c echo.Context) error {
	tree, err := s.loadTree(c)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to read request body").WithCause(err)
	}
	records, err := datastore.ParseRecords(data)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "malformed records").WithCause(err)
	}

	ctx := logging.WithDashboardID(c.Request().Context(), c.Param("id"))
	out, err := tree.Render(ctx, c.Param("widgetId"), datastore.DecodeAll(records))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}
