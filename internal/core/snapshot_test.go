package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"valsync/internal/blob"
	"valsync/pkg/valtree"
)

func TestExportSnapshot(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, nil, WithClock(ClockFunc(func() time.Time { return fixed })))
	h.render(rootEl(tagEl("box", "Box", tagEl("txt", "Txt"))))

	store := blob.NewMemory()
	ctx := context.Background()
	info, err := h.sync.ExportSnapshot(ctx, store, testFrame)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if info.Key != "frames/main/000000000001.json" || info.ContentType != "application/json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Metadata["nodes"] != "3" || info.Metadata["frame"] != testFrame {
		t.Fatalf("unexpected metadata %v", info.Metadata)
	}

	_, rc, err := store.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	var got FrameSnapshot
	if err := json.NewDecoder(rc).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	root, _ := h.sync.Root(testFrame)
	want := FrameSnapshot{Frame: testFrame, Seq: 1, TakenAt: fixed, Nodes: 3, Root: valtree.Snap(root)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	if _, err := h.sync.ExportSnapshot(ctx, store, testFrame); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("re-exporting the same commit should hit the write-once store, got %v", err)
	}
	if !h.metrics.has(OpExportSnapshot, true) || !h.metrics.has(OpExportSnapshot, false) {
		t.Fatalf("expected export metrics, got %+v", h.metrics.calls)
	}
}

func TestExportSnapshotErrors(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.sync.ExportSnapshot(ctx, nil, testFrame); err == nil {
		t.Fatalf("expected nil store error")
	}
	if _, err := h.sync.ExportSnapshot(ctx, blob.NewMemory(), "unknown"); err == nil {
		t.Fatalf("expected unknown frame error")
	}
	if got := SnapshotKey("side", 42); got != "frames/side/000000000042.json" {
		t.Fatalf("unexpected key %s", got)
	}
}
