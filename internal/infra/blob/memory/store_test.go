package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"valsync/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver, got %s", s.Driver())
	}
	info, err := s.Put(ctx, "frames/main/1.json", bytes.NewReader([]byte(`{"a":1}`)), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"frame": "main"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || info.ETag == "" || info.Metadata["frame"] != "main" {
		t.Fatalf("unexpected info %+v", info)
	}
	info.Metadata["frame"] = "mutated"

	got, rc, err := s.Get(ctx, "frames/main/1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{"a":1}` || got.Metadata["frame"] != "main" {
		t.Fatalf("unexpected get %q %+v", data, got)
	}
	if _, err := s.Put(ctx, "frames/main/1.json", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestStoreListDeleteAndMissing(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, k := range []string{"frames/b/1.json", "frames/a/2.json", "frames/a/1.json", "other"} {
		if _, err := s.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := s.List(ctx, "frames/a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "frames/a/1.json" || list[1].Key != "frames/a/2.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	if all, _ := s.List(ctx, ""); len(all) != 4 {
		t.Fatalf("expected 4 blobs, got %d", len(all))
	}
	if ok, err := s.Delete(ctx, "other"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, "other"); err != nil || ok {
		t.Fatalf("second delete should report false: %v %v", ok, err)
	}
	if _, err := s.Head(ctx, "other"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "../escape"); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
