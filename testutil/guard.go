// Package testutil guards the public packages under pkg/. Embedders build
// against them, so they must not reach into internal/ and must not drag the
// storage drivers or telemetry SDKs into an embedder's build.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// AnyOf matches when any of preds matches.
func AnyOf(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// sdkPrefixes are module paths of the storage drivers and telemetry SDKs
// only internal/ packages may depend on.
var sdkPrefixes = []string{
	"github.com/aws/",
	"github.com/jackc/pgx",
	"modernc.org/sqlite",
	"github.com/prometheus/",
	"go.opentelemetry.io/",
}

// SDKImportForbidden matches storage driver and telemetry SDK import paths.
func SDKImportForbidden(path string) bool {
	for _, prefix := range sdkPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// InternalImportForbidden matches import paths below an internal/ directory.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// AssertPublicPackage checks the package in dir with both guards: no direct
// internal/ imports and no SDK anywhere in its dependency graph.
func AssertPublicPackage(t testing.TB, dir string) {
	t.Helper()
	name := filepath.Base(dir)
	if abs, err := filepath.Abs(dir); err == nil {
		name = filepath.Base(abs)
	}
	AssertNoDirectImports(t, dir, InternalImportForbidden, name+" is a public package")
	AssertNoTransitiveDependency(t, dir, SDKImportForbidden, name+" must not pull storage or telemetry SDKs")
}

// AssertNoDirectImports fails when a non-test .go file in dir imports a
// forbidden path. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan imports of %s: %v", dir, err)
	}
	failOn(t, "direct imports", reason, viols)
}

// AssertNoTransitiveDependency fails when `go list -deps pattern` reports a
// forbidden package.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden Predicate, reason string) {
	t.Helper()
	viols, out, err := transitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("go list -deps %s: %v\n%s", pattern, err, out)
	}
	failOn(t, "transitive dependencies", reason, viols)
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func transitiveDependencyViolations(pattern string, forbidden Predicate) ([]string, []byte, error) {
	out, err := goListDeps(pattern)
	if err != nil {
		return nil, out, err
	}
	var viols []string
	for _, line := range strings.Split(string(out), "\n") {
		if pkg := strings.TrimSpace(line); pkg != "" && forbidden(pkg) {
			viols = append(viols, pkg)
		}
	}
	slices.Sort(viols)
	return slices.Compact(viols), out, nil
}

func directImportViolations(dir string, forbidden Predicate) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			if path := strings.Trim(imp.Path.Value, `"`); forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	slices.Sort(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failOn(t fatalLogger, what, reason string, viols []string) {
	if len(viols) == 0 {
		return
	}
	t.Fatalf("forbidden %s (%s):\n  %s", what, reason, strings.Join(viols, "\n  "))
}
