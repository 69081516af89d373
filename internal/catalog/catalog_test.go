package catalog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"valsync/internal/infra/catalog/postgres"
	"valsync/internal/infra/catalog/postgres/testutil"
	"valsync/pkg/template"
)

func sampleDoc() template.Document {
	return template.Document{
		Tags:       []*template.Tag{{ID: "Box", TagName: "div"}},
		Components: []*template.Component{{ID: "Root", Name: "Root"}},
		Slots:      []*template.Slot{{ID: "S", Param: template.Param{UUID: "p", Name: "p", Slot: true}}},
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Setenv(EnvDriver, "")
	store, err := Open(ctx)
	if err != nil {
		t.Fatalf("default open: %v", err)
	}
	if _, ok := store.(memoryStore); !ok {
		t.Fatalf("expected memory store by default, got %T", store)
	}

	path := filepath.Join(t.TempDir(), "cat.db")
	t.Setenv(EnvDriver, string(DriverSQLite))
	t.Setenv(EnvSQLitePath, path)
	store, err = Open(ctx)
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if s, ok := store.(interface{ Path() string }); !ok || s.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, store)
	}
	_ = store.Close()

	_, conn := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return conn.DB(), nil })
	defer restore()
	t.Setenv(EnvDriver, string(DriverPostgres))
	t.Setenv(EnvPostgresDSN, "postgres://example/valsync")
	store, err = Open(ctx)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	_ = store.Close()

	t.Setenv(EnvDriver, "redis")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestSeedEveryBackend(t *testing.T) {
	ctx := context.Background()
	sqliteStore, err := OpenDriver(ctx, DriverSQLite, filepath.Join(t.TempDir(), "seed.db"), "")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	_, conn := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return conn.DB(), nil })
	defer restore()
	pgStore, err := OpenDriver(ctx, DriverPostgres, "", "")
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}

	for name, store := range map[string]Store{"memory": NewMemory(), "sqlite": sqliteStore, "postgres": pgStore} {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = store.Close() }()
			if err := Seed(ctx, store, sampleDoc()); err != nil {
				t.Fatalf("seed: %v", err)
			}
			if err := store.Reload(ctx); err != nil {
				t.Fatalf("reload: %v", err)
			}
			if len(store.Nodes()) != 3 {
				t.Fatalf("expected 3 nodes, got %d", len(store.Nodes()))
			}
			if n, ok := store.Lookup("S"); !ok || n.Kind() != template.KindSlot {
				t.Fatalf("slot lookup failed: %v", n)
			}
			if err := store.Delete(ctx, "Box"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok := store.Lookup("Box"); ok {
				t.Fatalf("Box should be gone")
			}
			if err := Seed(ctx, store, template.Document{}); err != nil {
				t.Fatalf("empty seed: %v", err)
			}
		})
	}
}

func TestMemorySaveRejectsAnonymousNodes(t *testing.T) {
	store := NewMemory()
	if err := store.Save(context.Background(), &template.Tag{TagName: "div"}); err == nil {
		t.Fatalf("expected uuid error")
	}
}
