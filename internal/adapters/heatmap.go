package adapters

import (
	"context"

	"github.com/anda-ren/starwhale/internal/datastore"
	"github.com/anda-ren/starwhale/internal/expressions"
)

// KindHeatmap identifies the cross-tabulation heatmap adapter.
const KindHeatmap = "heatmap"

// Heatmap is a plotly-style heatmap trace with its title.
type Heatmap struct {
	Title string   `json:"title"`
	X     []string `json:"x"`
	Y     []string `json:"y"`
	Z     [][]int  `json:"z"`
	Type  string   `json:"type"`
}

// HeatmapConfig lays a label-indexed count matrix out as a heatmap: x holds
// the column labels, y the row labels. Inputs are copied.
func HeatmapConfig(title string, labels []string, matrix [][]int) Heatmap {
	return crossTabConfig(title, labels, labels, matrix)
}

func crossTabConfig(title string, xLabels, yLabels []string, matrix [][]int) Heatmap {
	x := append([]string{}, xLabels...)
	y := append([]string{}, yLabels...)
	z := make([][]int, len(matrix))
	for i, row := range matrix {
		z[i] = append([]int{}, row...)
	}
	return Heatmap{Title: title, X: x, Y: y, Z: z, Type: "heatmap"}
}

// Heatmap renders the confusion matrix: predictions across, ground truth down.
func (m *ConfusionMatrix) Heatmap(title string) Heatmap {
	return HeatmapConfig(title, m.Labels, m.Matrix)
}

// HeatmapOptions name the two category columns to cross-tabulate.
type HeatmapOptions struct {
	XColumn      string `json:"x_column" validate:"required"`
	YColumn      string `json:"y_column" validate:"required"`
	Title        string `json:"chartTitle,omitempty"`
	Filter       string `json:"filter,omitempty"`
	FilterEngine string `json:"filter_engine,omitempty" validate:"omitempty,oneof=expr cel jq"`
}

// ParseHeatmapOptions reads and validates the adapter options.
func ParseHeatmapOptions(o Options) (HeatmapOptions, error) {
	opts := HeatmapOptions{
		XColumn:      o.String("x_column"),
		YColumn:      o.String("y_column"),
		Title:        o.String("chartTitle"),
		Filter:       o.String("filter"),
		FilterEngine: o.String("filter_engine"),
	}
	return opts, validateOptions(KindHeatmap, opts)
}

// HeatmapData is a cross-tabulation of two label columns.
type HeatmapData struct {
	Heatmap
	Skipped  int `json:"skipped"`
	Filtered int `json:"filtered"`
}

func (*HeatmapData) Kind() string { return KindHeatmap }

func (h *HeatmapData) SkippedRows() int { return h.Skipped }

// HeatmapAdapter counts how often each (x, y) label pair occurs. Unlike the
// confusion matrix the two axes keep separate label sets.
type HeatmapAdapter struct {
	engines *expressions.Engines
}

// NewHeatmapAdapter creates the adapter. engines may be nil.
func NewHeatmapAdapter(engines *expressions.Engines) *HeatmapAdapter {
	return &HeatmapAdapter{engines: engines}
}

func (a *HeatmapAdapter) Kind() string { return KindHeatmap }

// Extract implements Adapter.
func (a *HeatmapAdapter) Extract(ctx context.Context, records []datastore.DecodedRecord, o Options) (PanelData, error) {
	opts, err := ParseHeatmapOptions(o)
	if err != nil {
		return nil, err
	}
	filter, err := newRowFilter(a.engines, opts.FilterEngine, opts.Filter)
	if err != nil {
		return nil, err
	}
	kept, filtered, skipped, err := filter.apply(ctx, records)
	if err != nil {
		return nil, err
	}

	xs, ys := newLabelSet(), newLabelSet()
	type cell struct{ x, y int }
	cells := make([]cell, 0, len(kept))
	for _, rec := range kept {
		x, okX := LabelText(rec.Get(opts.XColumn))
		y, okY := LabelText(rec.Get(opts.YColumn))
		if !okX || !okY {
			skipped++
			continue
		}
		cells = append(cells, cell{x: xs.index(x), y: ys.index(y)})
	}

	z := make([][]int, len(ys.labels))
	for i := range z {
		z[i] = make([]int, len(xs.labels))
	}
	for _, c := range cells {
		z[c.y][c.x]++
	}

	return &HeatmapData{
		Heatmap:  Heatmap{Title: opts.Title, X: xs.labels, Y: ys.labels, Z: z, Type: "heatmap"},
		Skipped:  skipped,
		Filtered: filtered,
	}, nil
}

// labelSet assigns indexes to labels in first-seen order.
type labelSet struct {
	labels []string
	pos    map[string]int
}

func newLabelSet() *labelSet {
	return &labelSet{labels: []string{}, pos: make(map[string]int)}
}

func (s *labelSet) index(l string) int {
	if i, ok := s.pos[l]; ok {
		return i
	}
	s.pos[l] = len(s.labels)
	s.labels = append(s.labels, l)
	return s.pos[l]
}

var _ Adapter = (*HeatmapAdapter)(nil)
