package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingFatal struct {
	msgs []string
}

func (r *recordingFatal) Fatalf(format string, args ...any) {
	r.msgs = append(r.msgs, fmt.Sprintf(format, args...))
}

func TestSDKImportForbidden(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"github.com/jackc/pgx/v5/stdlib", true},
		{"modernc.org/sqlite", true},
		{"github.com/prometheus/client_golang/prometheus", true},
		{"go.opentelemetry.io/otel/trace", true},
		{"github.com/google/go-cmp/cmp", false},
		{"gopkg.in/yaml.v3", false},
		{"valsync/pkg/template", false},
	}
	for _, tc := range cases {
		if got := SDKImportForbidden(tc.path); got != tc.want {
			t.Errorf("SDKImportForbidden(%q)=%v want %v", tc.path, got, tc.want)
		}
	}
}

func TestInternalImportForbidden(t *testing.T) {
	for _, path := range []string{"valsync/internal/core", "valsync/internal"} {
		if !InternalImportForbidden(path) {
			t.Errorf("%s should be forbidden", path)
		}
	}
	if InternalImportForbidden("valsync/pkg/valtree") || InternalImportForbidden("example.com/internals") {
		t.Fatalf("public paths must pass")
	}
}

func TestAnyOf(t *testing.T) {
	pred := AnyOf(InternalImportForbidden, SDKImportForbidden)
	if !pred("valsync/internal/blob") || !pred("modernc.org/sqlite") || pred("valsync/pkg/instance") {
		t.Fatalf("AnyOf should match either predicate")
	}
	if AnyOf()("anything") {
		t.Fatalf("empty AnyOf matches nothing")
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.go", "package tmp\nimport \"valsync/internal/renderstate\"\n")
	writeFile(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"valsync/internal/core\"\n)\nvar _ = fmt.Sprint\nvar _ core.Option\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"valsync/internal/traverse\"\n")
	writeFile(t, dir, "notes.txt", "import \"valsync/internal/x\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "c.go", "package sub\nimport \"valsync/internal/blob\"\n")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{"valsync/internal/core (in a.go)", "valsync/internal/renderstate (in b.go)"}
	if strings.Join(viols, "|") != strings.Join(want, "|") {
		t.Fatalf("test files, subdirectories and non-go files must be skipped, got %v", viols)
	}

	rec := &recordingFatal{}
	failOn(rec, "direct imports", "pkg stays public", viols)
	failOn(rec, "direct imports", "pkg stays public", nil)
	if len(rec.msgs) != 1 || !strings.Contains(rec.msgs[0], "pkg stays public") || !strings.Contains(rec.msgs[0], "b.go") {
		t.Fatalf("expected one failure listing both files, got %v", rec.msgs)
	}

	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")

	writeFile(t, dir, "broken.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	old := goListDeps
	defer func() { goListDeps = old }()
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\ngithub.com/aws/aws-sdk-go-v2/aws\nvalsync/pkg/valtree\n\ngithub.com/aws/aws-sdk-go-v2/aws\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", SDKImportForbidden)
	if err != nil || len(viols) != 1 || viols[0] != "github.com/aws/aws-sdk-go-v2/aws" {
		t.Fatalf("expected one deduplicated violation, got %v (%v)", viols, err)
	}
	rec := &recordingFatal{}
	failOn(rec, "transitive dependencies", "no sdk", viols)
	if len(rec.msgs) != 1 || !strings.Contains(rec.msgs[0], "transitive dependencies") {
		t.Fatalf("expected one failure, got %v", rec.msgs)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	if _, out, err := transitiveDependencyViolations(".", SDKImportForbidden); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list error with output")
	}

	goListDeps = func(string) ([]byte, error) { return []byte("fmt\n"), nil }
	AssertNoTransitiveDependency(t, ".", SDKImportForbidden, "none")
}

func TestAssertPublicPackage(t *testing.T) {
	old := goListDeps
	defer func() { goListDeps = old }()
	var patterns []string
	goListDeps = func(pattern string) ([]byte, error) {
		patterns = append(patterns, pattern)
		return []byte("fmt\nvalsync/pkg/valtree\n"), nil
	}
	dir := t.TempDir()
	writeFile(t, dir, "ok.go", "package ok\nimport \"strings\"\nvar _ = strings.Cut\n")
	AssertPublicPackage(t, dir)
	if len(patterns) != 1 || patterns[0] != dir {
		t.Fatalf("expected go list on %s, got %v", dir, patterns)
	}
}
