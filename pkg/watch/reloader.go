package watch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

// Reloader applies watcher batches to a Store. Changed files are re-read
// into a new snapshot with Program.WithUnit; a go.mod change reloads the
// whole program.
type Reloader struct {
	root   string
	store  *Store
	parser *analysis.GoParser
	logger *slog.Logger
}

func NewReloader(root string, store *Store, parser *analysis.GoParser, logger *slog.Logger) *Reloader {
	return &Reloader{
		root:   root,
		store:  store,
		parser: parser,
		logger: logger,
	}
}

// Apply installs the snapshot reflecting b. A file that no longer parses
// keeps its previous unit so the snapshot stays usable while it is being
// edited.
func (r *Reloader) Apply(ctx context.Context, b Batch) (*types.Program, error) {
	start := time.Now()
	next, err := r.store.Update(ctx, func(cur *types.Program) (*types.Program, error) {
		if cur == nil || b.Module {
			return r.parser.LoadProgram(ctx, r.root)
		}
		next := cur
		for _, path := range b.Paths {
			p, err := r.parser.ReloadUnit(next, path)
			if types.IsErrorType(err, types.ParseError) {
				r.logger.Warn("keeping previous version of file", "file", path, "err", err)
				continue
			}
			if err != nil {
				return nil, err
			}
			next = p
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("snapshot updated",
		"files", len(b.Paths),
		"module", b.Module,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return next, nil
}

// Run applies batches until ctx is done or batches is closed. Failed
// batches are logged and skipped.
func (r *Reloader) Run(ctx context.Context, batches <-chan Batch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-batches:
			if !ok {
				return nil
			}
			if _, err := r.Apply(ctx, b); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Error("reload failed", "err", err)
			}
		}
	}
}

// Follow keeps store current with the module at root until ctx is done.
func Follow(ctx context.Context, root string, debounce time.Duration, store *Store, parser *analysis.GoParser, logger *slog.Logger) error {
	w, err := NewWatcher(root, debounce, logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	r := NewReloader(w.root, store, parser, logger)
	batches := make(chan Batch)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx, batches) })
	g.Go(func() error { return r.Run(gctx, batches) })
	return g.Wait()
}
