// Package api serves the widget catalog and stored dashboards over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/anda-ren/starwhale/internal/layout"
	"github.com/anda-ren/starwhale/internal/metrics"
	"github.com/anda-ren/starwhale/internal/scheduler"
	"github.com/anda-ren/starwhale/internal/store"
	"github.com/anda-ren/starwhale/internal/streaming"
	"github.com/anda-ren/starwhale/internal/widget"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Widgets *widget.Registry
	Store   store.Store
	Logger  *slog.Logger

	// Events receives dashboard changes. A private in-memory hub is used
	// when nil.
	Events streaming.EventHub

	// Maintenance, when set, is reported by GET /api/maintenance.
	Maintenance MaintenanceStatus

	// Metrics mounts GET /metrics when true.
	Metrics bool
}

// MaintenanceStatus reports scheduled store maintenance.
type MaintenanceStatus interface {
	Status() []scheduler.JobStatus
}

// Server serves the JSON API.
type Server struct {
	deps   Deps
	loader *layout.Loader
	events streaming.EventHub
	echo   *echo.Echo
}

// NewServer creates a Server and registers its routes.
func NewServer(deps Deps) (*Server, error) {
	if deps.Widgets == nil {
		return nil, errors.New("api: widget registry is required")
	}
	if deps.Store == nil {
		return nil, errors.New("api: store is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	loader, err := layout.NewLoader(deps.Widgets)
	if err != nil {
		return nil, err
	}

	events := deps.Events
	if events == nil {
		events = streaming.NewMemoryHub()
	}

	s := &Server{deps: deps, loader: loader, events: events, echo: echo.New()}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit("8M"))
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			deps.Logger.Debug("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency))
			return nil
		},
	}))
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.deps.Metrics {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	api := e.Group("/api")

	api.GET("/widgets", s.handleListWidgets)
	api.GET("/widgets/panels", s.handleListPanels)
	api.GET("/widgets/:type", s.handleGetWidget)
	api.POST("/widgets/:type/instances", s.handleInstantiate)

	api.GET("/dashboards", s.handleListDashboards)
	api.POST("/dashboards", s.handleCreateDashboard)
	api.GET("/dashboards/:id", s.handleGetDashboard)
	api.PUT("/dashboards/:id", s.handlePutDashboard)
	api.DELETE("/dashboards/:id", s.handleDeleteDashboard)
	api.GET("/dashboards/:id/revisions", s.handleListRevisions)
	api.GET("/dashboards/:id/diagram", s.handleDiagram)
	api.POST("/dashboards/:id/widgets/:widgetId/render", s.handleRender)
	api.GET("/dashboards/:id/events", s.handleDashboardEvents)

	api.GET("/events", s.handleEvents)

	if s.deps.Maintenance != nil {
		api.GET("/maintenance", func(c echo.Context) error {
			return c.JSON(http.StatusOK, s.deps.Maintenance.Status())
		})
	}
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.deps.Logger.Info("api listening", slog.String("addr", addr))
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
