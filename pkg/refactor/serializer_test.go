package refactor

import (
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// diskProgram writes files into a temp dir and parses them without type
// information.
func diskProgram(t *testing.T, files map[string]string) *pkgtypes.Program {
	t.Helper()
	root := t.TempDir()
	fset := token.NewFileSet()
	var units []*pkgtypes.SourceUnit
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		u, err := pkgtypes.ParseUnit(fset, path, []byte(content))
		require.NoError(t, err)
		units = append(units, u)
	}
	return pkgtypes.NewProgram(root, &pkgtypes.Module{Path: "example.com/disk"}, fset, units)
}

func bumpX(t *testing.T, prog *pkgtypes.Program) (*pkgtypes.Program, pkgtypes.Change) {
	t.Helper()
	id := filepath.Join(prog.Root, "a.go")
	next, change, err := ReplaceSpan(prog, id, markerSpan(t, prog.Unit(id), "x = 1", "1"), "2")
	require.NoError(t, err)
	change.Description = "Bump x"
	return next, change
}

var diskFiles = map[string]string{
	"a.go": "package p\n\nvar x = 1\n",
	"b.go": "package p\n\nvar y = 1\n",
}

func TestSerializer_Diff(t *testing.T) {
	prog := diskProgram(t, diskFiles)
	next, _ := bumpX(t, prog)

	diffs, err := NewSerializer(discardLogger()).Diff(prog, next)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, "a.go", diffs[0].Path)
	assert.Contains(t, diffs[0].Unified, "--- a/a.go")
	assert.Contains(t, diffs[0].Unified, "+++ b/a.go")
	assert.Contains(t, diffs[0].Unified, "-var x = 1")
	assert.Contains(t, diffs[0].Unified, "+var x = 2")
}

func TestSerializer_DiffUnchanged(t *testing.T) {
	prog := diskProgram(t, diskFiles)
	diffs, err := NewSerializer(discardLogger()).Diff(prog, prog)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestSerializer_Commit(t *testing.T) {
	prog := diskProgram(t, diskFiles)
	a := filepath.Join(prog.Root, "a.go")
	b := filepath.Join(prog.Root, "b.go")
	require.NoError(t, os.Chmod(a, 0o600))
	next, _ := bumpX(t, prog)

	written, err := NewSerializer(discardLogger()).Commit(prog, next)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, written)

	data, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "package p\n\nvar x = 2\n", string(data))
	data, err = os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, diskFiles["b.go"], string(data))

	info, err := os.Stat(a)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(prog.Root)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files must be cleaned up")
}

func TestSerializer_CommitChangedOnDisk(t *testing.T) {
	prog := diskProgram(t, diskFiles)
	a := filepath.Join(prog.Root, "a.go")
	next, _ := bumpX(t, prog)

	external := "package p\n\nvar x = 42\n"
	require.NoError(t, os.WriteFile(a, []byte(external), 0o644))

	written, err := NewSerializer(discardLogger()).Commit(prog, next)
	assert.True(t, pkgtypes.IsErrorType(err, pkgtypes.FileSystemError))
	assert.Empty(t, written)

	data, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, external, string(data))
}

func TestSerializer_CommitChecksEveryFileBeforeWriting(t *testing.T) {
	prog := diskProgram(t, diskFiles)
	a := filepath.Join(prog.Root, "a.go")
	b := filepath.Join(prog.Root, "b.go")
	next, _ := bumpX(t, prog)
	next, _, err := ReplaceSpan(next, b, markerSpan(t, next.Unit(b), "y = 1", "1"), "3")
	require.NoError(t, err)

	external := "package p\n\nvar y = 42\n"
	require.NoError(t, os.WriteFile(b, []byte(external), 0o644))

	written, err := NewSerializer(discardLogger()).Commit(prog, next)
	require.Error(t, err)
	assert.Empty(t, written)
	var rerr *pkgtypes.RefactorError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, pkgtypes.FileSystemError, rerr.Type)
	assert.Equal(t, []string{b}, rerr.Sites)

	data, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, diskFiles["a.go"], string(data), "no file may be written when another is stale")
	data, err = os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, external, string(data))
}

func TestSerializer_PreviewChanges(t *testing.T) {
	s := NewSerializer(discardLogger())
	assert.Equal(t, "No changes to preview", s.PreviewChanges("/root", nil))

	prog := diskProgram(t, diskFiles)
	_, change := bumpX(t, prog)
	preview := s.PreviewChanges(prog.Root, []pkgtypes.Change{change})
	assert.Contains(t, preview, "Preview of 1 changes across 1 files")
	assert.Contains(t, preview, "File: a.go")
	assert.Contains(t, preview, "1. Bump x")
	assert.Contains(t, preview, "   - 1\n")
	assert.Contains(t, preview, "   + 2\n")
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "a b c", truncateText("a\n\tb   c", 80))
	assert.Equal(t, "abcdefg...", truncateText("abcdefghijklmnop", 10))
}
