package integration

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"valsync/internal/blob"
	"valsync/internal/catalog"
	"valsync/internal/core"
	"valsync/pkg/instance"
	"valsync/pkg/instance/memtree"
	"valsync/pkg/template"
	"valsync/pkg/valtree"
	"valsync/plugins/builtin"
)

func document() template.Document {
	items := template.Param{UUID: "items", Name: "items", Slot: true}
	return template.Document{
		Components: []*template.Component{
			{ID: "Root", Name: "Root"},
			{ID: "List", Name: "List", Params: []template.Param{items}},
			{ID: "Card", Name: "Card"},
			{ID: "Badge", Name: "Badge", Code: true,
				Params: []template.Param{{UUID: "tone", Name: "tone"}},
				Meta: &template.CodeMeta{Props: map[string]template.PropType{
					"tone": {Type: "string", Validator: builtin.OneOf, Options: []string{"info", "warn"}},
				}},
			},
		},
	}
}

func card(key string) memtree.Element {
	return memtree.Element{Key: key, Attrs: map[string]string{
		instance.AttrValKey:           "List.Card",
		instance.AttrSlotArgComponent: "List",
		instance.AttrSlotArgParam:     "items",
	}}
}

func canvas(cards ...string) memtree.Element {
	var kids []memtree.Element
	for _, c := range cards {
		kids = append(kids, card(c))
	}
	return memtree.Element{
		Key:   "root",
		Attrs: map[string]string{instance.AttrValKey: "Root", instance.AttrFrameID: "main"},
		Children: []memtree.Element{
			{Key: "list", Attrs: map[string]string{instance.AttrValKey: "List"}, Children: kids},
			{Key: "badge", Attrs: map[string]string{instance.AttrValKey: "Badge"}, Props: map[string]any{"tone": "loud"}},
		},
	}
}

// TestIntegrationSmoke replays a short session for every catalog backend
// that runs in process and exports the result through every blob adapter.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	catalogs := []struct {
		name string
		open func(t *testing.T) catalog.Store
	}{
		{"memory-catalog", func(*testing.T) catalog.Store { return catalog.NewMemory() }},
		{"sqlite-catalog", func(t *testing.T) catalog.Store {
			s, err := catalog.OpenDriver(ctx, catalog.DriverSQLite, filepath.Join(t.TempDir(), "catalog.db"), "")
			if err != nil {
				t.Fatalf("open sqlite catalog: %v", err)
			}
			return s
		}},
	}
	blobs := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{"memory-blob", func(*testing.T) blob.Store { return blob.NewMemory() }},
		{"filesystem-blob", func(t *testing.T) blob.Store {
			s, err := blob.NewFilesystem(t.TempDir())
			if err != nil {
				t.Fatalf("open fs blob: %v", err)
			}
			return s
		}},
		{"s3-mock-blob", func(*testing.T) blob.Store { return blob.NewMockS3ForTests("smoke") }},
	}

	for _, cv := range catalogs {
		for _, bv := range blobs {
			t.Run(cv.name+"/"+bv.name, func(t *testing.T) {
				cat := cv.open(t)
				defer func() { _ = cat.Close() }()
				if err := catalog.Seed(ctx, cat, document()); err != nil {
					t.Fatalf("seed: %v", err)
				}
				var diags []error
				engine := memtree.NewEngine()
				s := core.Install(engine, cat, core.WithErrorReporter(core.ErrorReporterFunc(func(_ context.Context, err error) {
					diags = append(diags, err)
				})))
				defer s.Dispose()
				if _, err := s.InstallPlugin(builtin.New()); err != nil {
					t.Fatalf("install plugin: %v", err)
				}

				engine.Render(ctx, "canvas", canvas("a", "b", "c"))
				engine.Render(ctx, "canvas", canvas("a", "c"))
				if len(diags) != 0 {
					t.Fatalf("unexpected diagnostics %v", diags)
				}
				v, ok := s.Lookup("main", "Badge[0]")
				if !ok {
					t.Fatalf("badge missing")
				}
				if badge := v.(*valtree.ValComponent); len(badge.InvalidArgs) != 1 || badge.InvalidArgs[0].Param.Name != "tone" {
					t.Fatalf("unexpected badge diagnostics %+v", badge.InvalidArgs)
				}

				store := bv.open(t)
				info, err := s.ExportSnapshot(ctx, store, "main")
				if err != nil {
					t.Fatalf("export: %v", err)
				}
				_, rc, err := store.Get(ctx, info.Key)
				if err != nil {
					t.Fatalf("get: %v", err)
				}
				defer func() { _ = rc.Close() }()
				var snap core.FrameSnapshot
				if err := json.NewDecoder(rc).Decode(&snap); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if snap.Seq != 2 || snap.Nodes != 5 || snap.Root.FullKey != "Root[0]" {
					t.Fatalf("unexpected snapshot header %+v", snap)
				}
				list := snap.Root.Children[0]
				if got := list.SlotArgs["items"]; len(got) != 2 || got[1] != "List[0].Card[1]" {
					t.Fatalf("unexpected list slot args %v", got)
				}
				if b := snap.Root.Children[1]; len(b.InvalidArgs) != 1 {
					t.Fatalf("badge should carry the one-of-options diagnostic, got %+v", b)
				}
			})
		}
	}
}
