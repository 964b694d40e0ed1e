package refactor

import (
	"context"
	"flag"
	"go/token"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/analysis"
	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

var update = flag.Bool("update", false, "update golden files")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(cfg *Config) *DefaultEngine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return NewEngine(analysis.NewOracle(discardLogger()), cfg, discardLogger())
}

// copyFixture copies testdata/<name> to a temp dir, skipping .golden files.
func copyFixture(t *testing.T, name string) string {
	t.Helper()
	src := filepath.Join("testdata", name)
	dst := t.TempDir()
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, path)
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if strings.HasSuffix(path, ".golden") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	require.NoError(t, err, "copyFixture(%s)", name)
	return dst
}

func load(t *testing.T, root string) *pkgtypes.Program {
	t.Helper()
	prog, err := analysis.NewParser(discardLogger()).LoadProgram(context.Background(), root)
	require.NoError(t, err)
	return prog
}

// loadModule writes files (relative path -> contents) into a fresh
// directory and loads it.
func loadModule(t *testing.T, files map[string]string) *pkgtypes.Program {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return load(t, root)
}

// unit returns the unit at a root-relative path.
func unit(t *testing.T, prog *pkgtypes.Program, rel string) *pkgtypes.SourceUnit {
	t.Helper()
	u := prog.Unit(filepath.Join(prog.Root, filepath.FromSlash(rel)))
	require.NotNil(t, u, "unit %s", rel)
	return u
}

// spanOf returns the span of the first occurrence of marker in the unit.
func spanOf(t *testing.T, prog *pkgtypes.Program, rel, marker string) pkgtypes.Span {
	t.Helper()
	u := unit(t, prog, rel)
	i := strings.Index(string(u.Text), marker)
	require.GreaterOrEqual(t, i, 0, "marker %q not found in %s", marker, rel)
	return pkgtypes.Span{Start: i, End: i + len(marker)}
}

func request(t *testing.T, prog *pkgtypes.Program, rel, marker, name string) pkgtypes.ExtractRequest {
	t.Helper()
	return pkgtypes.ExtractRequest{Unit: rel, Span: spanOf(t, prog, rel, marker), Name: name}
}

// compareGolden compares every Go file of the fixture with the text of the
// matching unit in prog. With -update the golden files are rewritten.
func compareGolden(t *testing.T, fixture string, prog *pkgtypes.Program) {
	t.Helper()
	src := filepath.Join("testdata", fixture)
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
			return err
		}
		rel, _ := filepath.Rel(src, path)
		actual := string(unit(t, prog, filepath.ToSlash(rel)).Text)
		golden := path + ".golden"
		if *update {
			return os.WriteFile(golden, []byte(actual), 0o644)
		}
		want, err := os.ReadFile(golden)
		if err != nil {
			return err
		}
		require.Equal(t, string(want), actual, "golden mismatch for %s", rel)
		return nil
	})
	require.NoError(t, err)
}

func issueKinds(issues []pkgtypes.Issue) []pkgtypes.IssueKind {
	kinds := make([]pkgtypes.IssueKind, 0, len(issues))
	for _, is := range issues {
		kinds = append(kinds, is.Kind)
	}
	return kinds
}

// parseProgram builds a snapshot without touching the file system. Units
// are named /src/<name>.
func parseProgram(t *testing.T, files map[string]string) *pkgtypes.Program {
	t.Helper()
	fset := token.NewFileSet()
	var units []*pkgtypes.SourceUnit
	for name, content := range files {
		u, err := pkgtypes.ParseUnit(fset, "/src/"+name, []byte(content))
		require.NoError(t, err)
		units = append(units, u)
	}
	return pkgtypes.NewProgram("/src", &pkgtypes.Module{Path: "example.com/src"}, fset, units)
}

// markerSpan returns the span of sub inside the first occurrence of marker.
func markerSpan(t *testing.T, u *pkgtypes.SourceUnit, marker, sub string) pkgtypes.Span {
	t.Helper()
	i := strings.Index(string(u.Text), marker)
	require.GreaterOrEqual(t, i, 0, "marker %q", marker)
	j := strings.Index(marker, sub)
	require.GreaterOrEqual(t, j, 0, "%q not in %q", sub, marker)
	return pkgtypes.Span{Start: i + j, End: i + j + len(sub)}
}
