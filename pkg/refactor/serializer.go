package refactor

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// Serializer turns snapshots back into files: unified diffs for preview and
// atomic writes for commit.
type Serializer struct {
	logger  *slog.Logger
	context int
}

func NewSerializer(logger *slog.Logger) *Serializer {
	return &Serializer{logger: logger, context: 3}
}

// WithContext sets the number of context lines of unified diffs.
func (s *Serializer) WithContext(lines int) *Serializer {
	if lines >= 0 {
		s.context = lines
	}
	return s
}

// FileDiff is the unified diff of one changed unit.
type FileDiff struct {
	Unit    string `json:"unit" yaml:"unit"`
	Path    string `json:"path" yaml:"path"` // relative to the program root
	Unified string `json:"diff" yaml:"diff"`
}

// Diff returns the units whose text differs between the snapshots, in
// unit order. Units missing from before are diffed against empty text.
func (s *Serializer) Diff(before, after *pkgtypes.Program) ([]FileDiff, error) {
	var diffs []FileDiff
	for _, u := range after.Units() {
		var old []byte
		if b := before.Unit(u.ID); b != nil {
			old = b.Text
		}
		if bytes.Equal(old, u.Text) {
			continue
		}
		rel := relPath(after.Root, u.ID)
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(old)),
			B:        difflib.SplitLines(string(u.Text)),
			FromFile: "a/" + rel,
			ToFile:   "b/" + rel,
			Context:  s.context,
		})
		if err != nil {
			return nil, fmt.Errorf("diff %s: %w", rel, err)
		}
		diffs = append(diffs, FileDiff{Unit: u.ID, Path: rel, Unified: text})
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Unit < diffs[j].Unit })
	return diffs, nil
}

// Commit writes every unit of after whose text differs from before. Every
// target is checked before the first write: if any file on disk no longer
// matches before, nothing is written and the commit fails with a
// FileSystemError listing the stale files. Each file is then replaced
// atomically through a temporary file in the same directory; when a write
// fails, the files already written are restored. It returns the written
// unit IDs; on error these are the files that could not be restored.
func (s *Serializer) Commit(before, after *pkgtypes.Program) ([]string, error) {
	var (
		todo  []pendingWrite
		stale []string
	)
	for _, u := range after.Units() {
		prev := before.Unit(u.ID)
		if prev != nil && bytes.Equal(prev.Text, u.Text) {
			continue
		}
		mode, fresh, err := checkDisk(prev, u.ID)
		if err != nil {
			return nil, err
		}
		if !fresh {
			stale = append(stale, u.ID)
			continue
		}
		todo = append(todo, pendingWrite{prev: prev, next: u, mode: mode})
	}
	if len(stale) > 0 {
		return nil, &pkgtypes.RefactorError{
			Type:    pkgtypes.FileSystemError,
			Message: fmt.Sprintf("%d file(s) changed on disk since they were loaded; nothing was written", len(stale)),
			Sites:   stale,
		}
	}

	for i, w := range todo {
		if err := writeFile(w.next.ID, w.next.Text, w.mode); err != nil {
			return s.restore(todo[:i]), err
		}
		s.logger.Debug("file written", "file", w.next.ID, "bytes", len(w.next.Text))
	}
	written := make([]string, 0, len(todo))
	for _, w := range todo {
		written = append(written, w.next.ID)
	}
	s.logger.Info("changes committed", "files", len(written))
	return written, nil
}

type pendingWrite struct {
	prev *pkgtypes.SourceUnit // nil for a new file
	next *pkgtypes.SourceUnit
	mode os.FileMode
}

// restore puts back the previous contents of files written by a failed
// commit and removes files it created. It returns the files it could not
// restore.
func (s *Serializer) restore(done []pendingWrite) []string {
	var left []string
	for _, w := range done {
		var err error
		if w.prev == nil {
			err = os.Remove(w.next.ID)
		} else {
			err = writeFile(w.next.ID, w.prev.Text, w.mode)
		}
		if err != nil {
			s.logger.Error("failed to restore file", "file", w.next.ID, "error", err)
			left = append(left, w.next.ID)
		}
	}
	return left
}

// checkDisk returns the mode to write path with and whether its contents
// still match prev. A missing file is fresh.
func checkDisk(prev *pkgtypes.SourceUnit, path string) (os.FileMode, bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0o644, true, nil
	}
	if err != nil {
		return 0, false, fsError(path, "stat", err)
	}
	if prev == nil {
		return info.Mode().Perm(), true, nil
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		return 0, false, fsError(path, "read", err)
	}
	return info.Mode().Perm(), bytes.Equal(onDisk, prev.Text), nil
}

func writeFile(path string, text []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fsError(path, "create temporary file for", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(text); err != nil {
		_ = tmp.Close()
		return fsError(path, "write", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fsError(path, "chmod", err)
	}
	if err := tmp.Close(); err != nil {
		return fsError(path, "close", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fsError(path, "replace", err)
	}
	return nil
}

// PreviewChanges renders the changes of a result, grouped by file.
func (s *Serializer) PreviewChanges(root string, changes []pkgtypes.Change) string {
	if len(changes) == 0 {
		return "No changes to preview"
	}

	var files []string
	byFile := make(map[string][]pkgtypes.Change)
	for _, c := range changes {
		if _, ok := byFile[c.Unit]; !ok {
			files = append(files, c.Unit)
		}
		byFile[c.Unit] = append(byFile[c.Unit], c)
	}
	sort.Strings(files)

	var preview strings.Builder
	fmt.Fprintf(&preview, "Preview of %d changes across %d files:\n\n", len(changes), len(files))
	for _, file := range files {
		rel := relPath(root, file)
		fmt.Fprintf(&preview, "File: %s\n%s\n", rel, strings.Repeat("-", len(rel)+6))
		for i, c := range byFile[file] {
			fmt.Fprintf(&preview, "%d. %s\n", i+1, c.Description)
			if c.OldText != "" {
				fmt.Fprintf(&preview, "   - %s\n", truncateText(c.OldText, 80))
			}
			if c.NewText != "" {
				fmt.Fprintf(&preview, "   + %s\n", truncateText(c.NewText, 80))
			}
		}
		preview.WriteString("\n")
	}
	return preview.String()
}

// truncateText collapses whitespace and shortens text for one-line display.
func truncateText(text string, length int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= length {
		return text
	}
	return text[:length-3] + "..."
}

func relPath(root, id string) string {
	if rel, err := filepath.Rel(root, id); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return id
}

func fsError(path, op string, err error) error {
	return &pkgtypes.RefactorError{
		Type:    pkgtypes.FileSystemError,
		Message: fmt.Sprintf("failed to %s %s: %v", op, path, err),
		Cause:   err,
	}
}
