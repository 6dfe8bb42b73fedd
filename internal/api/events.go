package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/anda-ren/starwhale/internal/store"
	"github.com/anda-ren/starwhale/internal/streaming"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// handleEvents streams dashboard events as Server-Sent Events. The optional
// ?dashboard= and comma separated ?type= parameters narrow the stream.
func (s *Server) handleEvents(c echo.Context) error {
	filter := streaming.EventFilter{DashboardID: c.QueryParam("dashboard")}
	if types := c.QueryParam("type"); types != "" {
		filter.EventTypes = strings.Split(types, ",")
	}
	return s.serveSSE(c, filter)
}

func (s *Server) handleDashboardEvents(c echo.Context) error {
	return s.serveSSE(c, streaming.EventFilter{DashboardID: c.Param("id")})
}

func (s *Server) serveSSE(c echo.Context, filter streaming.EventFilter) error {
	ctx := c.Request().Context()
	ch, cancel, err := s.events.Subscribe(ctx, filter)
	if err != nil {
		return schema.NewError(schema.ErrCodeExecution, "subscribe failed").WithCause(err)
	}
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			w.Flush()
		}
	}
}

func (s *Server) publishSaved(ctx context.Context, d *store.Dashboard) {
	s.publish(ctx, streaming.Event{
		DashboardID: d.ID,
		Type:        streaming.EventDashboardSaved,
		Revision:    d.Revision,
		Fingerprint: d.Fingerprint,
		Name:        d.Name,
	})
}

func (s *Server) publish(ctx context.Context, event streaming.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.deps.Logger.Debug("event not published",
			slog.String("dashboard_id", event.DashboardID),
			slog.String("type", event.Type),
			slog.String("error", err.Error()))
	}
}
