// Package postgres persists the template catalog to Postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"valsync/pkg/template"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/valsync?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store keeps template rows in a JSONB table and serves lookups from an
// in-memory catalog hydrated on open.
type Store struct {
	*template.MemoryCatalog
	db *sql.DB
	mu sync.Mutex
}

var _ template.Catalog = (*Store)(nil)

// New opens a Postgres-backed catalog using dsn (falls back to DefaultDSN),
// ensures the templates table exists and hydrates the in-memory view.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS templates (
		uuid TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload JSONB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure templates table: %w", err)
	}
	s := &Store{MemoryCatalog: template.NewMemoryCatalog(), db: db}
	if err := s.Reload(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory view with the rows currently stored.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, kind, payload FROM templates`)
	if err != nil {
		return fmt.Errorf("select templates: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var nodes []template.Node
	for rows.Next() {
		var uuid, kind string
		var payload []byte
		if err := rows.Scan(&uuid, &kind, &payload); err != nil {
			return fmt.Errorf("scan templates: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		n, err := template.Decode(template.Record{UUID: uuid, Kind: template.Kind(kind), Payload: payload})
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate templates: %w", err)
	}
	for _, n := range s.MemoryCatalog.Nodes() {
		s.MemoryCatalog.Remove(n.UUID())
	}
	for _, n := range nodes {
		s.MemoryCatalog.Add(n)
	}
	return nil
}

// Save upserts nodes in one transaction.
func (s *Store) Save(ctx context.Context, nodes ...template.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, n := range nodes {
		rec, err := template.Encode(n)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO templates(uuid,kind,payload) VALUES($1,$2,$3) ON CONFLICT(uuid) DO UPDATE SET kind=EXCLUDED.kind, payload=EXCLUDED.payload`, rec.UUID, string(rec.Kind), rec.Payload); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.UUID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	for _, n := range nodes {
		s.MemoryCatalog.Add(n)
	}
	return nil
}

// Delete removes a template row.
func (s *Store) Delete(ctx context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE uuid = $1`, uuid); err != nil {
		return fmt.Errorf("delete %s: %w", uuid, err)
	}
	s.MemoryCatalog.Remove(uuid)
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
