// Package sqlite persists the template catalog to an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"valsync/pkg/template"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "valsync.db"

// Store keeps template rows in a single SQLite table and serves lookups from
// an in-memory catalog hydrated on open.
type Store struct {
	*template.MemoryCatalog
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var _ template.Catalog = (*Store)(nil)

// New opens (creating when needed) the catalog database at path.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS templates (
		uuid TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create templates table: %w", err)
	}
	s := &Store{MemoryCatalog: template.NewMemoryCatalog(), db: db, path: path}
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
			return fmt.Errorf("scan: %w", err)
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

// Save upserts nodes in one transaction and makes them visible to lookups
// once committed.
func (s *Store) Save(ctx context.Context, nodes ...template.Node) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, n := range nodes {
		rec, err := template.Encode(n)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO templates(uuid,kind,payload) VALUES(?,?,?) ON CONFLICT(uuid) DO UPDATE SET kind=excluded.kind, payload=excluded.payload`, rec.UUID, string(rec.Kind), rec.Payload); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.UUID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for _, n := range nodes {
		s.MemoryCatalog.Add(n)
	}
	return nil
}

// Delete removes a template row. Deleting an unknown uuid is not an error.
func (s *Store) Delete(ctx context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE uuid = ?`, uuid); err != nil {
		return fmt.Errorf("delete %s: %w", uuid, err)
	}
	s.MemoryCatalog.Remove(uuid)
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
