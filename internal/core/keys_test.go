package core

import (
	"context"
	"errors"
	"testing"

	"valsync/pkg/instance"
)

func TestKeyStackFullKey(t *testing.T) {
	var s keyStack
	s.push("A", 0)
	s.push("A.B", 2)
	if got := s.fullKey("A.B"); got != "A[0].B[2]" {
		t.Fatalf("unexpected full key %s", got)
	}
	s.push("A", 1)
	if got := s.fullKey("A.B.C"); got != "A[1].B[2].C[0]" {
		t.Fatalf("most recent prefix entry should win, got %s", got)
	}
	if !s.pop("A") {
		t.Fatalf("A was on top")
	}
	if s.pop("A") {
		t.Fatalf("A is not on top anymore")
	}
	if len(s) != 1 || s[0].key != "A.B" {
		t.Fatalf("mismatched pop should remove the latest A, got %+v", s)
	}
	if s.pop("missing") || len(s) != 1 {
		t.Fatalf("popping an absent key must not change the stack")
	}
}

func TestCloneCounter(t *testing.T) {
	c := make(cloneCounter)
	if c.next("List", "items", "Card") != 0 || c.next("List", "items", "Card") != 1 {
		t.Fatalf("counter should hand out 0 then 1")
	}
	if c.next("List", "items", "Other") != 0 || c.next("List", "header", "Card") != 0 {
		t.Fatalf("counts are per instance key and param")
	}
	c.reset("List")
	if c.next("List", "items", "Card") != 0 {
		t.Fatalf("reset should drop the component counts")
	}
}

func TestCloneCounterMatchesAndReplay(t *testing.T) {
	c := make(cloneCounter)
	c.next("List", "items", "Card")
	recs := []cloneRecord{
		{comp: "List", param: "items", key: "Card", index: 1},
		{comp: "List", param: "items", key: "Card", index: 2},
		{comp: "List", param: "items", key: "placeholder", index: 0},
	}
	if !c.matches(recs) {
		t.Fatalf("records continuing the current counts should match")
	}
	if c.matches([]cloneRecord{{comp: "List", param: "items", key: "Card", index: 2}}) {
		t.Fatalf("a record skipping an index must not match")
	}
	c.replay(recs)
	if got := c.next("List", "items", "Card"); got != 3 {
		t.Fatalf("replay should advance the counts, got %d", got)
	}
	if got := c.next("List", "items", "placeholder"); got != 1 {
		t.Fatalf("placeholder counts should replay too, got %d", got)
	}

	kept := dropScopes([]cloneRecord{{comp: "List"}, {comp: "Root"}, {comp: "Ghost"}}, "List", "Ghost")
	if len(kept) != 1 || kept[0].comp != "Root" {
		t.Fatalf("unexpected records after dropping scopes: %+v", kept)
	}
}

func TestKeyStackSignature(t *testing.T) {
	var a, b keyStack
	a.push("Root", 0)
	a.push("List.Card", 2)
	b.push("Root", 0)
	b.push("List.Card", 1)
	if a.signature() == b.signature() {
		t.Fatalf("different clone indices must give different signatures")
	}
	b.pop("List.Card")
	b.push("List.Card", 2)
	if a.signature() != b.signature() {
		t.Fatalf("equal stacks must give equal signatures: %s vs %s", a.signature(), b.signature())
	}
	var empty keyStack
	if empty.signature() != "" {
		t.Fatalf("empty stack should have an empty signature")
	}
}

func TestDeriveCloneIndex(t *testing.T) {
	counts := make(cloneCounter)
	slotArg := &fakeNode{attrs: attrs(instance.AttrSlotArgComponent, "List", instance.AttrSlotArgParam, "items", instance.AttrCloneIndex, "7")}
	if got := deriveCloneIndex(slotArg, "List.Card", counts); got != 0 {
		t.Fatalf("slot argument roots are counted, got %d", got)
	}
	if got := deriveCloneIndex(slotArg, "", counts); got != 0 {
		t.Fatalf("placeholders count separately, got %d", got)
	}
	if got := deriveCloneIndex(slotArg, "List.Card", counts); got != 1 {
		t.Fatalf("second clone should be 1, got %d", got)
	}
	repeated := &fakeNode{attrs: attrs(instance.AttrCloneIndex, "3")}
	if got := deriveCloneIndex(repeated, "X", counts); got != 3 {
		t.Fatalf("explicit clone index should apply, got %d", got)
	}
	for _, raw := range []string{"-1", "x"} {
		bad := &fakeNode{attrs: attrs(instance.AttrCloneIndex, raw)}
		if got := deriveCloneIndex(bad, "X", counts); got != 0 {
			t.Fatalf("invalid clone index %q should fall back to 0, got %d", raw, got)
		}
	}
	if lastSegment("a.b.c") != "c" || lastSegment("solo") != "solo" {
		t.Fatalf("lastSegment mismatch")
	}
}

func TestCommitPassFinishReportsDirtyStacks(t *testing.T) {
	s := New(nil)
	p := newCommitPass(context.Background(), s, 1, testFrame)
	p.keys.push("Leftover", 0)
	p.report(&MissingTemplateError{InstanceKey: "a", UUID: "a"})
	p.report(&MissingTemplateError{InstanceKey: "b", UUID: "b"})
	diags := p.finish()
	if len(diags) != 2 {
		t.Fatalf("expected one node and one invariant diagnostic, got %v", diags)
	}
	if !errors.Is(diags[0], ErrMissingTemplate) || !errors.Is(diags[1], ErrInvariant) {
		t.Fatalf("unexpected diagnostics %v", diags)
	}
	if len(p.keys) != 0 {
		t.Fatalf("finish should clear the stacks")
	}
	if joinDiagnostics(nil) != nil || !errors.Is(joinDiagnostics(diags), ErrInvariant) {
		t.Fatalf("joinDiagnostics mismatch")
	}
}

func TestCommitPassPopOwnerMismatch(t *testing.T) {
	s := New(nil)
	p := newCommitPass(context.Background(), s, 1, testFrame)
	a, b := &fakeNode{}, &fakeNode{}
	p.owners = append(p.owners, ownerFrame{node: a, key: "A"}, ownerFrame{node: b, key: "B"})
	p.popOwner(a, "A")
	if len(p.owners) != 1 || p.owners[0].key != "B" {
		t.Fatalf("out-of-order pop should still remove A, got %+v", p.owners)
	}
	if len(p.diags) != 1 || !errors.Is(p.diags[0], ErrInvariant) {
		t.Fatalf("expected invariant diagnostic, got %v", p.diags)
	}
}
