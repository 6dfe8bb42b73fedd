package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	dashboardIDKey ctxKey = iota
	widgetIDKey
	widgetTypeKey
)

// WithDashboardID returns a context with the dashboard ID set.
func WithDashboardID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, dashboardIDKey, id)
}

// WithWidgetID returns a context with the widget node ID set.
func WithWidgetID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, widgetIDKey, id)
}

// WithWidgetType returns a context with the widget type set.
func WithWidgetType(ctx context.Context, widgetType string) context.Context {
	return context.WithValue(ctx, widgetTypeKey, widgetType)
}

// DashboardID extracts the dashboard ID from the context, or "" if absent.
func DashboardID(ctx context.Context) string {
	v, _ := ctx.Value(dashboardIDKey).(string)
	return v
}

// WidgetID extracts the widget node ID from the context, or "" if absent.
func WidgetID(ctx context.Context) string {
	v, _ := ctx.Value(widgetIDKey).(string)
	return v
}

// WidgetType extracts the widget type from the context, or "" if absent.
func WidgetType(ctx context.Context) string {
	v, _ := ctx.Value(widgetTypeKey).(string)
	return v
}

// WithIDs sets the dashboard, widget node and widget type on the context at once.
func WithIDs(ctx context.Context, dashboardID, widgetID, widgetType string) context.Context {
	ctx = WithDashboardID(ctx, dashboardID)
	ctx = WithWidgetID(ctx, widgetID)
	ctx = WithWidgetType(ctx, widgetType)
	return ctx
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if dID := DashboardID(ctx); dID != "" {
		logger = logger.With(slog.String("dashboard_id", dID))
	}
	if wID := WidgetID(ctx); wID != "" {
		logger = logger.With(slog.String("widget_id", wID))
	}
	if wType := WidgetType(ctx); wType != "" {
		logger = logger.With(slog.String("widget_type", wType))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := DashboardID(ctx); v != "" {
		r.AddAttrs(slog.String("dashboard_id", v))
	}
	if v := WidgetID(ctx); v != "" {
		r.AddAttrs(slog.String("widget_id", v))
	}
	if v := WidgetType(ctx); v != "" {
		r.AddAttrs(slog.String("widget_type", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps debug, info, warn and error (any case) to slog levels.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger: a text handler at the given level
// wrapped in a CorrelationHandler.
func NewLogger(w io.Writer, level string) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(NewCorrelationHandler(inner))
}
