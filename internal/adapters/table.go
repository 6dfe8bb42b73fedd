package adapters

import (
	"context"
	"sort"

	"github.com/anda-ren/starwhale/internal/datastore"
	"github.com/anda-ren/starwhale/internal/expressions"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// KindTable identifies the table adapter.
const KindTable = "table"

// TableOptions select and reshape table columns.
type TableOptions struct {
	Columns      []string `json:"columns,omitempty" validate:"omitempty,dive,required"`
	Projection   string   `json:"projection,omitempty"`
	Filter       string   `json:"filter,omitempty"`
	FilterEngine string   `json:"filter_engine,omitempty" validate:"omitempty,oneof=expr cel jq"`
}

// ParseTableOptions reads and validates the adapter options.
func ParseTableOptions(o Options) (TableOptions, error) {
	opts := TableOptions{
		Columns:      o.Strings("columns"),
		Projection:   o.String("projection"),
		Filter:       o.String("filter"),
		FilterEngine: o.String("filter_engine"),
	}
	return opts, validateOptions(KindTable, opts)
}

// Table is a row-major grid of JSON-safe values.
type Table struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	MissingCells int      `json:"missing_cells"`
	Skipped      int      `json:"skipped"`
	Filtered     int      `json:"filtered"`
}

func (*Table) Kind() string { return KindTable }

func (t *Table) SkippedRows() int { return t.Skipped }

// TableAdapter lays records out as a table. With a jq projection each record
// is reshaped first; projections that do not yield an object skip the row.
type TableAdapter struct {
	engines *expressions.Engines
}

// NewTableAdapter creates the adapter. engines may be nil, in which case the
// projection and filter options are rejected.
func NewTableAdapter(engines *expressions.Engines) *TableAdapter {
	return &TableAdapter{engines: engines}
}

func (a *TableAdapter) Kind() string { return KindTable }

// Extract implements Adapter.
func (a *TableAdapter) Extract(ctx context.Context, records []datastore.DecodedRecord, o Options) (PanelData, error) {
	opts, err := ParseTableOptions(o)
	if err != nil {
		return nil, err
	}
	filter, err := newRowFilter(a.engines, opts.FilterEngine, opts.Filter)
	if err != nil {
		return nil, err
	}

	var projector expressions.Engine
	if opts.Projection != "" {
		if a.engines == nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "projections are not available: no expression engines configured")
		}
		if projector, err = a.engines.Lookup("jq"); err != nil {
			return nil, err
		}
	}

	table := &Table{Rows: [][]any{}}
	type row struct {
		values  map[string]any
		present map[string]bool
	}
	rows := make([]row, 0, len(records))
	seen := make(map[string]bool)
	var discovered []string
	addColumn := func(name string) {
		if !seen[name] {
			seen[name] = true
			discovered = append(discovered, name)
		}
	}

	for _, rec := range records {
		ok, rowErr, err := filter.keep(ctx, rec)
		switch {
		case err != nil:
			return nil, err
		case rowErr != nil:
			table.Skipped++
			continue
		case !ok:
			table.Filtered++
			continue
		}

		if projector == nil {
			r := row{values: make(map[string]any, rec.Len()), present: make(map[string]bool, rec.Len())}
			for _, col := range rec.Columns() {
				addColumn(col)
				r.values[col] = datastore.PlainValue(rec.Get(col))
				r.present[col] = true
			}
			rows = append(rows, r)
			continue
		}

		out, err := projector.Evaluate(ctx, opts.Projection, rec.Plain())
		if err != nil {
			if schema.IsCode(err, schema.ErrCodeValidation) {
				return nil, err
			}
			table.Skipped++
			continue
		}
		obj, isObj := out.(map[string]any)
		if !isObj {
			table.Skipped++
			continue
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		r := row{values: obj, present: make(map[string]bool, len(obj))}
		for _, k := range keys {
			addColumn(k)
			r.present[k] = true
		}
		rows = append(rows, r)
	}

	table.Columns = discovered
	if len(opts.Columns) > 0 {
		table.Columns = opts.Columns
	}
	if table.Columns == nil {
		table.Columns = []string{}
	}

	for _, r := range rows {
		cells := make([]any, len(table.Columns))
		for i, col := range table.Columns {
			if !r.present[col] {
				table.MissingCells++
				continue
			}
			cells[i] = r.values[col]
		}
		table.Rows = append(table.Rows, cells)
	}
	return table, nil
}

var _ Adapter = (*TableAdapter)(nil)
