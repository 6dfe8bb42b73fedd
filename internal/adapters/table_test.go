package adapters

import (
	"context"
	"testing"

	"github.com/anda-ren/starwhale/internal/datastore"
	"github.com/anda-ren/starwhale/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableRecords() []datastore.DecodedRecord {
	return datastore.DecodeAll([]datastore.Record{
		datastore.NewRecord(
			[]string{"id", "label"},
			[]datastore.Cell{datastore.IntCell(1), datastore.StringCell("cat")},
		),
		datastore.NewRecord(
			[]string{"id", "score", "image"},
			[]datastore.Cell{datastore.IntCell(2), datastore.FloatCell(0.25), datastore.BytesCell([]byte("abcd"))},
		),
	})
}

func TestTable_UnionOfColumns(t *testing.T) {
	data, err := NewTableAdapter(nil).Extract(context.Background(), tableRecords(), Options{})
	require.NoError(t, err)

	table := data.(*Table)
	assert.Equal(t, []string{"id", "label", "score", "image"}, table.Columns)
	assert.Equal(t, [][]any{
		{1, "cat", nil, nil},
		{2, nil, 0.25, map[string]any{"size": 4}},
	}, table.Rows)
	assert.Equal(t, 3, table.MissingCells)
	assert.Equal(t, 0, table.SkippedRows())
}

func TestTable_SelectedColumns(t *testing.T) {
	data, err := NewTableAdapter(nil).Extract(context.Background(), tableRecords(), Options{
		"columns": []any{"label", "id"},
	})
	require.NoError(t, err)

	table := data.(*Table)
	assert.Equal(t, []string{"label", "id"}, table.Columns)
	assert.Equal(t, [][]any{{"cat", 1}, {nil, 2}}, table.Rows)
	assert.Equal(t, 1, table.MissingCells)
}

func TestTable_Projection(t *testing.T) {
	a := NewTableAdapter(newEngines(t))
	data, err := a.Extract(context.Background(), tableRecords(), Options{
		"projection": `select(.id > 1) | {id, bytes: .image.size}`,
	})
	require.NoError(t, err)

	table := data.(*Table)
	assert.Equal(t, []string{"bytes", "id"}, table.Columns)
	assert.Equal(t, [][]any{{4, 2}}, table.Rows)
	assert.Equal(t, 1, table.Skipped, "a projection with no output skips the row")
}

func TestTable_FilterAndErrors(t *testing.T) {
	ctx := context.Background()
	a := NewTableAdapter(newEngines(t))

	data, err := a.Extract(ctx, tableRecords(), Options{"filter": `id == 1`})
	require.NoError(t, err)
	table := data.(*Table)
	assert.Len(t, table.Rows, 1)
	assert.Equal(t, 1, table.Filtered)

	_, err = a.Extract(ctx, tableRecords(), Options{"projection": `{id`})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = NewTableAdapter(nil).Extract(ctx, tableRecords(), Options{"projection": `.`})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = a.Extract(ctx, tableRecords(), Options{"columns": []any{""}})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestTable_Empty(t *testing.T) {
	data, err := NewTableAdapter(nil).Extract(context.Background(), nil, nil)
	require.NoError(t, err)
	table := data.(*Table)
	assert.Equal(t, []string{}, table.Columns)
	assert.Equal(t, [][]any{}, table.Rows)
}
