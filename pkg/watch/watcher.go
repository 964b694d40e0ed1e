package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mamaar/goextract/pkg/analysis"
)

// Batch is one debounced set of changes below the watched root.
type Batch struct {
	Paths  []string // changed Go files, sorted
	Module bool     // go.mod changed; the whole program must be reloaded
}

// Watcher watches a module for changes to the files that make up its
// program and emits debounced batches.
type Watcher struct {
	root     string
	debounce time.Duration
	filter   *analysis.Filter
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher creates a Watcher over every directory of the module at root
// that the program loader would read.
func NewWatcher(root string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		filter:   analysis.NewFilter(root),
		logger:   logger,
		fsw:      fsw,
	}
	if _, err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and its program directories. It returns the Go
// files already present, which a directory created after the watch
// started may contain before it is watched itself.
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if w.filter.Include(path) {
				files = append(files, path)
			}
			return nil
		}
		if w.filter.SkipDir(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	return files, err
}

// Run reads file system events until ctx is done, coalescing the events of
// each debounce window into one Batch sent on out.
func (w *Watcher) Run(ctx context.Context, out chan<- Batch) error {
	pending := make(map[string]struct{})
	module := false
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Name == filepath.Join(w.root, "go.mod"):
				module = true
			case ev.Op&fsnotify.Create != 0 && isDir(ev.Name):
				files, err := w.addTree(ev.Name)
				if err != nil {
					w.logger.Debug("could not watch directory", "path", ev.Name, "err", err)
				}
				for _, f := range files {
					pending[f] = struct{}{}
				}
				if len(files) == 0 {
					continue
				}
			case w.accept(ev):
				pending[ev.Name] = struct{}{}
			default:
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", "err", err)

		case <-timer.C:
			if len(pending) == 0 && !module {
				continue
			}
			b := Batch{Paths: make([]string, 0, len(pending)), Module: module}
			for p := range pending {
				b.Paths = append(b.Paths, p)
			}
			sort.Strings(b.Paths)
			pending = make(map[string]struct{})
			module = false

			select {
			case out <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) accept(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return w.filter.Include(ev.Name) && !w.filter.SkipDir(filepath.Dir(ev.Name))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
