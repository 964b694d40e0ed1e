package analysis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeModule writes files (relative path -> contents) into a fresh
// directory and returns it.
func writeModule(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func loadModule(t *testing.T, files map[string]string) *types.Program {
	t.Helper()
	root := writeModule(t, files)
	prog, err := NewParser(discardLogger()).LoadProgram(context.Background(), root)
	require.NoError(t, err)
	return prog
}

// offsetOf returns the byte offset of the first occurrence of marker in u.
func offsetOf(t *testing.T, u *types.SourceUnit, marker string) int {
	t.Helper()
	i := strings.Index(string(u.Text), marker)
	require.GreaterOrEqual(t, i, 0, "marker %q not found in %s", marker, u.ID)
	return i
}
