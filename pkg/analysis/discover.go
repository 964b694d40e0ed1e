package analysis

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Directories the go command never treats as part of a module's packages,
// plus common tool caches.
var skipDirs = map[string]struct{}{
	"vendor":       {},
	"testdata":     {},
	"node_modules": {},
}

// Filter decides which paths under a module root belong to its program.
// Hidden and underscore-prefixed entries, nested modules and paths matched
// by the root .gitignore are excluded.
type Filter struct {
	root string
	gi   *ignore.GitIgnore
}

// NewFilter reads the .gitignore of root, if any.
func NewFilter(root string) *Filter {
	return &Filter{root: root, gi: loadGitignore(root)}
}

// SkipDir reports whether the directory at path and everything below it
// is outside the program. The root itself is never skipped.
func (f *Filter) SkipDir(path string) bool {
	if path == f.root {
		return false
	}
	name := filepath.Base(path)
	if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	if rel, ok := f.rel(path); !ok || (f.gi != nil && f.gi.MatchesPath(rel+"/")) {
		return true
	}
	// A nested go.mod starts a different module.
	if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
		return true
	}
	return false
}

// Include reports whether the file at path is a Go source of the program.
// Its directories are not checked; see SkipDir.
func (f *Filter) Include(path string) bool {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".go") || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return false
	}
	rel, ok := f.rel(path)
	return ok && (f.gi == nil || !f.gi.MatchesPath(rel))
}

func (f *Filter) rel(path string) (string, bool) {
	rel, err := filepath.Rel(f.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// DiscoverFiles returns the absolute paths of all .go files under root that
// belong to the module rooted there. Symlinked files are skipped. The result
// is sorted.
func DiscoverFiles(root string) ([]string, error) {
	f := NewFilter(root)

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if f.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 || !f.Include(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
