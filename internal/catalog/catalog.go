// Package catalog opens the template catalog the synchronizer resolves
// instance keys against.
package catalog

import (
	"context"
	"fmt"
	"os"

	"valsync/internal/infra/catalog/postgres"
	"valsync/internal/infra/catalog/sqlite"
	"valsync/pkg/template"
)

// Driver identifies a catalog backend.
type Driver string

const (
	DriverMemory   Driver = "memory"   // process memory only
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Environment variables read by Open.
const (
	EnvDriver      = "VALSYNC_CATALOG_DRIVER"
	EnvSQLitePath  = "VALSYNC_SQLITE_PATH"
	EnvPostgresDSN = "VALSYNC_POSTGRES_DSN"
)

// Store is a catalog whose template rows can be edited and persisted.
type Store interface {
	template.Catalog
	Nodes() []template.Node
	Save(ctx context.Context, nodes ...template.Node) error
	Delete(ctx context.Context, uuid string) error
	Reload(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
	_ Store = (*memoryStore)(nil)
)

// Open selects a backend using environment variables. Defaults to memory
// when unset.
//
//	VALSYNC_CATALOG_DRIVER: memory|sqlite|postgres (default memory)
//	VALSYNC_SQLITE_PATH: path to the sqlite file (default ./valsync.db)
//	VALSYNC_POSTGRES_DSN: postgres DSN when driver=postgres
func Open(ctx context.Context) (Store, error) {
	driver := Driver(os.Getenv(EnvDriver))
	if driver == "" {
		driver = DriverMemory
	}
	return OpenDriver(ctx, driver, os.Getenv(EnvSQLitePath), os.Getenv(EnvPostgresDSN))
}

// OpenDriver opens a specific backend. path is used by sqlite, dsn by
// postgres.
func OpenDriver(ctx context.Context, driver Driver, path, dsn string) (Store, error) {
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return sqlite.New(ctx, path)
	case DriverPostgres:
		return postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown catalog driver %s", driver)
	}
}

// Seed saves every node of doc into store.
func Seed(ctx context.Context, store Store, doc template.Document) error {
	nodes := doc.Nodes()
	if len(nodes) == 0 {
		return nil
	}
	if err := store.Save(ctx, nodes...); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}

type memoryStore struct {
	*template.MemoryCatalog
}

// NewMemory returns a Store that keeps templates in process memory only.
func NewMemory(nodes ...template.Node) Store {
	return memoryStore{MemoryCatalog: template.NewMemoryCatalog(nodes...)}
}

func (m memoryStore) Save(_ context.Context, nodes ...template.Node) error {
	for _, n := range nodes {
		if n == nil || n.UUID() == "" {
			return fmt.Errorf("template node without uuid")
		}
	}
	for _, n := range nodes {
		m.Add(n)
	}
	return nil
}

func (m memoryStore) Delete(_ context.Context, uuid string) error {
	m.Remove(uuid)
	return nil
}

func (memoryStore) Reload(context.Context) error { return nil }
func (memoryStore) Close() error                 { return nil }
