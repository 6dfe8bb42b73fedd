package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/anda-ren/starwhale/pkg/schema"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var (
	migrationFileRe = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.sql$`)
	createTableRe   = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
)

// migration is one embedded schema step. Checksum is the sha256 of SQL and is
// recorded with the version so later edits to an applied file show up as drift.
type migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
	Tables   []string
}

var migrations = mustLoadMigrations(migrationFiles)

func mustLoadMigrations(fsys fs.FS) []migration {
	ms, err := loadMigrations(fsys)
	if err != nil {
		panic(err)
	}
	return ms
}

// loadMigrations reads NNN_name.sql files from the root of fsys (or its
// migrations directory) ordered by version.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	if sub, err := fs.Sub(fsys, "migrations"); err == nil {
		if _, err := fs.Stat(sub, "."); err == nil {
			fsys = sub
		}
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var ms []migration
	seen := map[int]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		match := migrationFileRe.FindStringSubmatch(e.Name())
		if match == nil {
			return nil, fmt.Errorf("migration %q: name must look like 001_description.sql", e.Name())
		}
		version, _ := strconv.Atoi(match[1])
		if version < 1 {
			return nil, fmt.Errorf("migration %q: version must be positive", e.Name())
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %q and %q", version, prev, e.Name())
		}
		seen[version] = e.Name()

		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", e.Name(), err)
		}
		sum := sha256.Sum256(body)
		ms = append(ms, migration{
			Version:  version,
			Name:     match[2],
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
			Tables:   createdTables(string(body)),
		})
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Version < ms[j].Version })
	return ms, nil
}

func createdTables(script string) []string {
	var tables []string
	for _, stmt := range splitStatements(script) {
		if m := createTableRe.FindStringSubmatch(stmt); m != nil {
			tables = append(tables, m[1])
		}
	}
	return tables
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL DEFAULT '',
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	// Databases created before checksums were recorded lack the column.
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('schema_version') WHERE name = 'checksum'`).Scan(&n); err != nil {
		return fmt.Errorf("inspect schema_version: %w", err)
	}
	if n == 0 {
		if _, err := db.ExecContext(ctx,
			`ALTER TABLE schema_version ADD COLUMN checksum TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add schema_version.checksum: %w", err)
		}
	}
	return nil
}

// runMigrations applies the steps newer than the recorded version, each in
// its own transaction, and fills in checksums missing from older rows.
func runMigrations(ctx context.Context, db *sql.DB, ms []migration) error {
	if err := ensureVersionTable(ctx, db); err != nil {
		return err
	}

	var current int
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, m := range ms {
		if m.Version <= current {
			if _, err := db.ExecContext(ctx,
				`UPDATE schema_version SET checksum = ? WHERE version = ? AND name = ? AND checksum = ''`,
				m.Checksum, m.Version, m.Name); err != nil {
				return fmt.Errorf("backfill checksum %d: %w", m.Version, err)
			}
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, name, checksum) VALUES (?, ?, ?)`,
		m.Version, m.Name, m.Checksum); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

// MigrationInfo describes one schema step as known to the binary, the
// database, or both.
type MigrationInfo struct {
	Version  int      `json:"version"`
	Name     string   `json:"name"`
	Checksum string   `json:"checksum"`
	Tables   []string `json:"tables,omitempty"`
}

// SchemaStatus compares the recorded schema_version rows with the embedded
// migrations. Drift lists every disagreement in human-readable form.
type SchemaStatus struct {
	Applied []MigrationInfo `json:"applied"`
	Pending []MigrationInfo `json:"pending"`
	Drift   []string        `json:"drift,omitempty"`
}

func schemaStatus(ctx context.Context, db *sql.DB, ms []migration) (*SchemaStatus, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT version, name, checksum FROM schema_version WHERE version > 0 ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("read schema_version: %w", err)
	}
	defer rows.Close()

	recorded := map[int]MigrationInfo{}
	var versions []int
	for rows.Next() {
		var mi MigrationInfo
		if err := rows.Scan(&mi.Version, &mi.Name, &mi.Checksum); err != nil {
			return nil, fmt.Errorf("scan schema_version: %w", err)
		}
		recorded[mi.Version] = mi
		versions = append(versions, mi.Version)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	known := map[int]migration{}
	st := &SchemaStatus{Applied: []MigrationInfo{}, Pending: []MigrationInfo{}}
	for _, m := range ms {
		known[m.Version] = m
		info := MigrationInfo{Version: m.Version, Name: m.Name, Checksum: m.Checksum, Tables: m.Tables}
		rec, ok := recorded[m.Version]
		if !ok {
			st.Pending = append(st.Pending, info)
			continue
		}
		st.Applied = append(st.Applied, info)
		if rec.Name != m.Name {
			st.Drift = append(st.Drift, fmt.Sprintf("migration %d recorded as %q but embedded as %q", m.Version, rec.Name, m.Name))
		}
		if rec.Checksum != "" && rec.Checksum != m.Checksum {
			st.Drift = append(st.Drift, fmt.Sprintf("migration %d (%s) checksum changed since it was applied", m.Version, m.Name))
		}
		for _, table := range m.Tables {
			var n int
			if err := db.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n); err != nil {
				return nil, fmt.Errorf("inspect table %s: %w", table, err)
			}
			if n == 0 {
				st.Drift = append(st.Drift, fmt.Sprintf("table %s from migration %d (%s) is missing", table, m.Version, m.Name))
			}
		}
	}
	for _, v := range versions {
		if _, ok := known[v]; !ok {
			st.Drift = append(st.Drift, fmt.Sprintf("migration %d (%s) is recorded but unknown to this build", v, recorded[v].Name))
		}
	}
	return st, nil
}

// SchemaStatus reports applied and pending migrations and any drift between
// the database and the migrations built into the binary.
func (s *LibSQLStore) SchemaStatus(ctx context.Context) (*SchemaStatus, error) {
	st, err := schemaStatus(ctx, s.db, migrations)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "read schema status").WithCause(err)
	}
	return st, nil
}

// VerifySchema fails with STORE_ERROR when the schema has pending migrations
// or has drifted from the embedded ones.
func (s *LibSQLStore) VerifySchema(ctx context.Context) error {
	st, err := s.SchemaStatus(ctx)
	if err != nil {
		return err
	}
	if len(st.Drift) == 0 && len(st.Pending) == 0 {
		return nil
	}
	for _, d := range st.Drift {
		s.logger.Warn("schema drift", slog.String("detail", d))
	}
	return schema.NewError(schema.ErrCodeStore, "schema does not match the embedded migrations").
		WithDetails(map[string]any{
			"pending": len(st.Pending),
			"drift":   st.Drift,
		})
}

// splitStatements drops "--" comment lines and splits the rest on semicolons.
func splitStatements(script string) []string {
	var code strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		code.WriteString(line)
		code.WriteByte('\n')
	}
	var stmts []string
	for _, raw := range strings.Split(code.String(), ";") {
		if s := strings.TrimSpace(raw); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
