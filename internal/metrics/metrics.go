// Package metrics holds the Prometheus collectors of the dashboard engine.
// Collectors register with the default registry on package init.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registration results.
const (
	ResultRegistered = "registered"
	ResultDuplicate  = "duplicate"
	ResultRejected   = "rejected"
)

var (
	// widgetRegistrations counts Register calls by result.
	widgetRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swdash_widget_registrations_total",
		Help: "Widget plugin registrations by result",
	}, []string{"result"})

	// widgetInstantiations counts successful instantiations by widget type.
	widgetInstantiations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swdash_widget_instantiations_total",
		Help: "Widget instances created by widget type",
	}, []string{"type"})

	// widgetLookupMisses counts lookups of unregistered widget types.
	widgetLookupMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swdash_widget_lookup_misses_total",
		Help: "Lookups and instantiations of unregistered widget types",
	})

	// adapterSkippedRows counts records an adapter could not use.
	adapterSkippedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swdash_adapter_skipped_rows_total",
		Help: "Records skipped by panel data adapters",
	}, []string{"adapter"})

	// nonRenderableNodes counts layout nodes loaded with an unknown widget type.
	nonRenderableNodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swdash_layout_non_renderable_nodes_total",
		Help: "Layout nodes whose widget type is not registered",
	})

	// renderDuration tracks widget render latency by widget type.
	renderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swdash_widget_render_duration_seconds",
		Help:    "Widget render duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
	}, []string{"type"})

	// maintenanceRuns counts scheduled maintenance jobs by job and status.
	maintenanceRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swdash_maintenance_runs_total",
		Help: "Scheduled maintenance job runs by job and status",
	}, []string{"job", "status"})
)

func WidgetRegistered(result string) { widgetRegistrations.WithLabelValues(result).Inc() }

func WidgetInstantiated(widgetType string) { widgetInstantiations.WithLabelValues(widgetType).Inc() }

func WidgetLookupMiss() { widgetLookupMisses.Inc() }

// AdapterSkipped adds n skipped rows for an adapter. Zero is a no-op.
func AdapterSkipped(adapter string, n int) {
	if n > 0 {
		adapterSkippedRows.WithLabelValues(adapter).Add(float64(n))
	}
}

// NonRenderable adds n non-renderable nodes. Zero is a no-op.
func NonRenderable(n int) {
	if n > 0 {
		nonRenderableNodes.Add(float64(n))
	}
}

// ObserveRender records how long a widget took to render.
func ObserveRender(widgetType string, start time.Time) {
	renderDuration.WithLabelValues(widgetType).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// MaintenanceRun counts one run of a scheduled maintenance job.
func MaintenanceRun(job, status string) { maintenanceRuns.WithLabelValues(job, status).Inc() }
