package adapters

import (
	"context"

	"github.com/anda-ren/starwhale/internal/datastore"
	"github.com/anda-ren/starwhale/internal/expressions"
)

// KindConfusionMatrix identifies the confusion-matrix adapter.
const KindConfusionMatrix = "confusion_matrix"

// ConfusionMatrixOptions name the label columns. There are no default column
// names: both must come from the widget configuration.
type ConfusionMatrixOptions struct {
	PredictedColumn   string `json:"predicted_column" validate:"required"`
	GroundTruthColumn string `json:"ground_truth_column" validate:"required"`
	Filter            string `json:"filter,omitempty"`
	FilterEngine      string `json:"filter_engine,omitempty" validate:"omitempty,oneof=expr cel jq"`
}

// ParseConfusionMatrixOptions reads and validates the adapter options.
func ParseConfusionMatrixOptions(o Options) (ConfusionMatrixOptions, error) {
	opts := ConfusionMatrixOptions{
		PredictedColumn:   o.String("predicted_column"),
		GroundTruthColumn: o.String("ground_truth_column"),
		Filter:            o.String("filter"),
		FilterEngine:      o.String("filter_engine"),
	}
	return opts, validateOptions(KindConfusionMatrix, opts)
}

// ConfusionMatrix counts (ground truth, prediction) pairs. Rows of Matrix are
// ground truth labels and columns are predicted labels, both indexed by Labels.
type ConfusionMatrix struct {
	Labels   []string `json:"labels"`
	Matrix   [][]int  `json:"matrix"`
	Skipped  int      `json:"skipped"`
	Filtered int      `json:"filtered"`
}

func (*ConfusionMatrix) Kind() string { return KindConfusionMatrix }

func (m *ConfusionMatrix) SkippedRows() int { return m.Skipped }

// Total returns the number of counted pairs.
func (m *ConfusionMatrix) Total() int {
	n := 0
	for _, row := range m.Matrix {
		for _, c := range row {
			n += c
		}
	}
	return n
}

// ConfusionMatrixAdapter builds confusion matrices from prediction records.
type ConfusionMatrixAdapter struct {
	engines *expressions.Engines
}

// NewConfusionMatrixAdapter creates the adapter. engines may be nil, in which
// case the filter option is rejected.
func NewConfusionMatrixAdapter(engines *expressions.Engines) *ConfusionMatrixAdapter {
	return &ConfusionMatrixAdapter{engines: engines}
}

func (a *ConfusionMatrixAdapter) Kind() string { return KindConfusionMatrix }

// Extract implements Adapter.
func (a *ConfusionMatrixAdapter) Extract(ctx context.Context, records []datastore.DecodedRecord, o Options) (PanelData, error) {
	opts, err := ParseConfusionMatrixOptions(o)
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

	m := BuildConfusionMatrix(kept, opts.GroundTruthColumn, opts.PredictedColumn)
	m.Skipped += skipped
	m.Filtered = filtered
	return m, nil
}

// BuildConfusionMatrix counts label pairs over records. Labels appear in
// first-seen order, taking each row's ground truth before its prediction.
// Rows where either label is absent, null, unknown or not a scalar are
// skipped.
func BuildConfusionMatrix(records []datastore.DecodedRecord, groundTruthColumn, predictedColumn string) *ConfusionMatrix {
	type pair struct{ truth, pred int }

	labels := newLabelSet()

	pairs := make([]pair, 0, len(records))
	skipped := 0
	for _, rec := range records {
		truth, okT := LabelText(rec.Get(groundTruthColumn))
		pred, okP := LabelText(rec.Get(predictedColumn))
		if !okT || !okP {
			skipped++
			continue
		}
		t := labels.index(truth)
		p := labels.index(pred)
		pairs = append(pairs, pair{truth: t, pred: p})
	}

	matrix := make([][]int, len(labels.labels))
	for i := range matrix {
		matrix[i] = make([]int, len(labels.labels))
	}
	for _, p := range pairs {
		matrix[p.truth][p.pred]++
	}

	return &ConfusionMatrix{Labels: labels.labels, Matrix: matrix, Skipped: skipped}
}

var _ Adapter = (*ConfusionMatrixAdapter)(nil)
