package layout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anda-ren/starwhale/internal/datastore"
	"github.com/anda-ren/starwhale/internal/logging"
	"github.com/anda-ren/starwhale/internal/metrics"
	"github.com/anda-ren/starwhale/internal/widget"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// Render runs the renderer of node id over records with the node's effective
// configuration. A non-renderable node is reported as NOT_FOUND.
func (t *Tree) Render(ctx context.Context, id string, records []datastore.DecodedRecord) (*widget.Rendered, error) {
	n, ok := t.byID[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id)
	}
	if !n.Renderable {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "widget type %q is not registered", n.Type).WithWidget(id)
	}
	if n.plugin.Renderer == nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "widget type %q has no renderer", n.Type).WithWidget(id)
	}

	cfg, err := t.Effective(id)
	if err != nil {
		return nil, err
	}

	children := make([]widget.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = c.Widget()
	}

	ctx = logging.WithWidgetType(logging.WithWidgetID(ctx, id), n.Type)
	log := logging.LogWith(ctx, t.loader.logger)

	start := time.Now()
	out, err := n.plugin.Renderer.Render(ctx, widget.RenderRequest{
		Node:     n.Widget(),
		Config:   cfg,
		Records:  records,
		Children: children,
	})
	metrics.ObserveRender(n.Type, start)
	if err != nil {
		log.Warn("widget render failed", slog.String("error", err.Error()))
		var se *schema.Error
		if errors.As(err, &se) {
			return nil, se.WithWidget(id)
		}
		return nil, schema.NewError(schema.ErrCodeExecution, "widget render failed").WithCause(err).WithWidget(id)
	}

	if out == nil {
		out = &widget.Rendered{}
	}
	log.Debug("widget rendered",
		slog.String("kind", out.Kind),
		slog.Int("skipped", out.Skipped),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}
