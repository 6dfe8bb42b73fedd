package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/anda-ren/starwhale/internal/layout"
	"github.com/anda-ren/starwhale/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a LibSQLStore.
type Option func(*LibSQLStore)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *LibSQLStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string, opts ...Option) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	s := &LibSQLStore{
		db:     db,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db, migrations)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Dashboards ---

// SaveDashboard inserts or replaces a dashboard. An empty ID gets a fresh
// uuid; an empty Name or Version is taken from the document. A revision is
// appended whenever the document fingerprint differs from the latest one.
// On return d carries the stored fingerprint, revision and timestamps.
func (s *LibSQLStore) SaveDashboard(ctx context.Context, d *Dashboard) error {
	if d == nil {
		return schema.NewError(schema.ErrCodeValidation, "dashboard is nil")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Name == "" {
		d.Name = d.Document.Name
	}
	if d.Document.Version == "" {
		d.Document.Version = schema.CurrentLayoutVersion
	}
	if d.Document.Widgets == nil {
		d.Document.Widgets = []schema.NodeSpec{}
	}
	d.Version = d.Document.Version

	fingerprint, err := layout.Fingerprint(&d.Document)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(d.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin save", err)
	}
	defer tx.Rollback()

	// Take the write lock before reading the latest revision so concurrent
	// saves cannot both claim the same sequence.
	if err := acquireWriteLock(ctx, tx); err != nil {
		return err
	}

	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM dashboards WHERE id = ?`, d.ID).Scan(&createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		createdAt = timeOrNow(d.CreatedAt)
	case err != nil:
		return storeError("read dashboard", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dashboards (id, name, version, document, fingerprint, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, version=excluded.version,
		   document=excluded.document, fingerprint=excluded.fingerprint, updated_at=excluded.updated_at`,
		d.ID, d.Name, d.Version, string(doc), fingerprint, createdAt, now,
	); err != nil {
		return storeError("upsert dashboard", err)
	}

	var (
		seq        int64
		lastFinger sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		`SELECT sequence, fingerprint FROM dashboard_revisions WHERE dashboard_id = ? ORDER BY sequence DESC LIMIT 1`, d.ID,
	).Scan(&seq, &lastFinger)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storeError("read latest revision", err)
	}
	if !lastFinger.Valid || lastFinger.String != fingerprint {
		seq++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dashboard_revisions (dashboard_id, sequence, fingerprint, document, created_at) VALUES (?, ?, ?, ?, ?)`,
			d.ID, seq, fingerprint, string(doc), now,
		); err != nil {
			return storeError("append revision", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit save", err)
	}

	d.Fingerprint = fingerprint
	d.Revision = seq
	d.CreatedAt = createdAt
	d.UpdatedAt = now
	s.logger.Debug("dashboard saved",
		slog.String("dashboard_id", d.ID),
		slog.Int64("revision", seq),
		slog.String("fingerprint", fingerprint))
	return nil
}

// GetDashboard returns a dashboard by id.
func (s *LibSQLStore) GetDashboard(ctx context.Context, id string) (*Dashboard, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT d.id, d.name, d.version, d.document, d.fingerprint, d.created_at, d.updated_at,
		   COALESCE((SELECT MAX(sequence) FROM dashboard_revisions r WHERE r.dashboard_id = d.id), 0)
		 FROM dashboards d WHERE d.id = ?`, id)
	d, err := scanDashboard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("dashboard", id)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDashboards returns dashboards ordered by name, then id.
func (s *LibSQLStore) ListDashboards(ctx context.Context, filter DashboardFilter) ([]*Dashboard, error) {
	var where []string
	var args []any

	if filter.NamePrefix != "" {
		where = append(where, "d.name LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(filter.NamePrefix)+"%")
	}

	query := `SELECT d.id, d.name, d.version, d.document, d.fingerprint, d.created_at, d.updated_at,
	   COALESCE((SELECT MAX(sequence) FROM dashboard_revisions r WHERE r.dashboard_id = d.id), 0)
	 FROM dashboards d`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY d.name, d.id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list dashboards", err)
	}
	defer rows.Close()

	dashboards := []*Dashboard{}
	for rows.Next() {
		d, err := scanDashboard(rows)
		if err != nil {
			return nil, err
		}
		dashboards = append(dashboards, d)
	}
	return dashboards, rows.Err()
}

// DeleteDashboard removes a dashboard and its revisions.
func (s *LibSQLStore) DeleteDashboard(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin delete", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dashboard_revisions WHERE dashboard_id = ?`, id); err != nil {
		return storeError("delete revisions", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM dashboards WHERE id = ?`, id)
	if err != nil {
		return storeError("delete dashboard", err)
	}
	if err := checkRowsAffected(res, "dashboard", id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDashboard(row rowScanner) (*Dashboard, error) {
	d := &Dashboard{}
	var doc string
	if err := row.Scan(&d.ID, &d.Name, &d.Version, &doc, &d.Fingerprint, &d.CreatedAt, &d.UpdatedAt, &d.Revision); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(doc), &d.Document); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "dashboard %q has a corrupt document", d.ID).WithCause(err)
	}
	return d, nil
}

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
