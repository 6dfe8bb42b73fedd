package store

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anda-ren/starwhale/pkg/schema"
)

func TestEmbeddedMigrations(t *testing.T) {
	require.NotEmpty(t, migrations)
	first := migrations[0]
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, "initial_schema", first.Name)
	assert.Len(t, first.Checksum, 64)
	assert.Equal(t, []string{"dashboards", "dashboard_revisions"}, first.Tables)
}

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations(fstest.MapFS{
		"002_tags.sql":    {Data: []byte("CREATE TABLE dashboard_tags (tag TEXT);")},
		"001_base.sql":    {Data: []byte("-- base\nCREATE TABLE IF NOT EXISTS base (id TEXT);\nCREATE INDEX idx_base ON base(id);")},
		"README.md":       {Data: []byte("ignored")},
		"notes/003_x.sql": {Data: []byte("ignored, nested")},
	})
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, []string{"base"}, ms[0].Tables)
	assert.Equal(t, 2, ms[1].Version)
	assert.Equal(t, "tags", ms[1].Name)
	assert.NotEqual(t, ms[0].Checksum, ms[1].Checksum)

	_, err = loadMigrations(fstest.MapFS{"initial.sql": {Data: []byte("SELECT 1;")}})
	assert.ErrorContains(t, err, "001_description.sql")

	_, err = loadMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"01_b.sql":  {Data: []byte("SELECT 2;")},
	})
	assert.ErrorContains(t, err, "version 1 used by")
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header; with a semicolon\nCREATE TABLE a (x INT);\n\n  -- trailing\n;CREATE TABLE b (y INT)")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE TABLE b (y INT)"}, stmts)
}

func TestMigrate_RecordsChecksum(t *testing.T) {
	s := newTestStore(t)

	var name, checksum string
	require.NoError(t, s.DB().QueryRow(
		`SELECT name, checksum FROM schema_version WHERE version = 1`).Scan(&name, &checksum))
	assert.Equal(t, "initial_schema", name)
	assert.Equal(t, migrations[0].Checksum, checksum)
}

func TestMigrate_BackfillsEmptyChecksum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.DB().Exec(`UPDATE schema_version SET checksum = '' WHERE version = 1`)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))

	var checksum string
	require.NoError(t, s.DB().QueryRow(`SELECT checksum FROM schema_version WHERE version = 1`).Scan(&checksum))
	assert.Equal(t, migrations[0].Checksum, checksum)
}

func TestMigrate_AppliesPendingStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ms, err := loadMigrations(fstest.MapFS{
		"001_initial_schema.sql": {Data: []byte(migrations[0].SQL)},
		"002_dashboard_tags.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS dashboard_tags (dashboard_id TEXT, tag TEXT);")},
	})
	require.NoError(t, err)

	before, err := schemaStatus(ctx, s.DB(), ms)
	require.NoError(t, err)
	require.Len(t, before.Pending, 1)
	assert.Equal(t, []string{"dashboard_tags"}, before.Pending[0].Tables)

	require.NoError(t, runMigrations(ctx, s.DB(), ms))

	after, err := schemaStatus(ctx, s.DB(), ms)
	require.NoError(t, err)
	assert.Len(t, after.Applied, 2)
	assert.Empty(t, after.Pending)
	assert.Empty(t, after.Drift)
}

func TestVerifySchema_Clean(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.VerifySchema(ctx))

	st, err := s.SchemaStatus(ctx)
	require.NoError(t, err)
	require.Len(t, st.Applied, 1)
	assert.Equal(t, []string{"dashboards", "dashboard_revisions"}, st.Applied[0].Tables)
	assert.Empty(t, st.Pending)
	assert.Empty(t, st.Drift)
}

func TestVerifySchema_Drift(t *testing.T) {
	tests := []struct {
		name  string
		setup string
		want  string
	}{
		{"edited migration", `UPDATE schema_version SET checksum = 'edited' WHERE version = 1`, "checksum changed"},
		{"renamed migration", `UPDATE schema_version SET name = 'renamed' WHERE version = 1`, `recorded as "renamed"`},
		{"newer database", `INSERT INTO schema_version (version, name, checksum) VALUES (99, 'future', 'abc')`, "unknown to this build"},
		{"dropped table", `DROP TABLE dashboard_revisions`, "table dashboard_revisions"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)
			ctx := context.Background()
			_, err := s.DB().Exec(tc.setup)
			require.NoError(t, err)

			st, err := s.SchemaStatus(ctx)
			require.NoError(t, err)
			require.Len(t, st.Drift, 1)
			assert.Contains(t, st.Drift[0], tc.want)

			err = s.VerifySchema(ctx)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
		})
	}
}

func TestVerifySchema_IgnoresWriteLockRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDashboard(ctx, &Dashboard{ID: "d1", Document: testDocument("eval", "panel-1")}))
	require.NoError(t, s.VerifySchema(ctx))
}
