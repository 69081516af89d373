package builtin

import (
	"testing"

	"valsync/internal/core"
)

func TestPluginMetadata(t *testing.T) {
	p := New()
	if p.Name() != "builtin" || p.Version() == "" {
		t.Fatalf("unexpected metadata %s %s", p.Name(), p.Version())
	}
	s := core.New(nil)
	meta, err := s.InstallPlugin(p)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	want := []string{NonEmpty, OneOf, Positive, URL}
	if len(meta.Validators) != len(want) {
		t.Fatalf("unexpected validators %v", meta.Validators)
	}
	for i, name := range want {
		if meta.Validators[i] != name {
			t.Fatalf("validator %d: want %s got %s", i, name, meta.Validators[i])
		}
	}
	if _, err := s.InstallPlugin(p); err == nil {
		t.Fatalf("expected duplicate install error")
	}
}

func TestValidators(t *testing.T) {
	registry := core.NewPluginRegistry()
	if err := New().Register(registry); err != nil {
		t.Fatalf("register: %v", err)
	}
	validators := registry.Validators()

	cases := []struct {
		validator string
		value     any
		options   []string
		valid     bool
	}{
		{NonEmpty, nil, nil, false},
		{NonEmpty, "  ", nil, false},
		{NonEmpty, []any{}, nil, false},
		{NonEmpty, map[string]any{"a": 1}, nil, true},
		{NonEmpty, "x", nil, true},
		{NonEmpty, 0, nil, true},
		{URL, "https://example.com/a", nil, true},
		{URL, "example.com", nil, false},
		{URL, 12, nil, false},
		{URL, nil, nil, true},
		{Positive, 3, nil, true},
		{Positive, uint8(1), nil, true},
		{Positive, 0.5, nil, true},
		{Positive, 0, nil, false},
		{Positive, -1.5, nil, false},
		{Positive, "3", nil, false},
		{OneOf, "bar", []string{"line", "bar"}, true},
		{OneOf, "pie", []string{"line", "bar"}, false},
		{OneOf, nil, []string{"line"}, true},
	}
	for _, tc := range cases {
		msg := validators[tc.validator](core.ValidationInput{Value: tc.value, Options: tc.options})
		if (msg == "") != tc.valid {
			t.Errorf("%s(%#v): valid=%v, message %q", tc.validator, tc.value, tc.valid, msg)
		}
	}
}
