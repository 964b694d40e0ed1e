package analysis

import (
	"context"
	"fmt"
	"go/token"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/mod/modfile"
	"golang.org/x/sync/errgroup"

	"github.com/mamaar/goextract/pkg/types"
)

// GoParser loads Go modules from disk into program snapshots.
type GoParser struct {
	logger      *slog.Logger
	concurrency int
}

func NewParser(logger *slog.Logger) *GoParser {
	return &GoParser{
		logger:      logger,
		concurrency: runtime.NumCPU(),
	}
}

// WithConcurrency bounds the number of files parsed in parallel.
func (p *GoParser) WithConcurrency(n int) *GoParser {
	if n > 0 {
		p.concurrency = n
	}
	return p
}

// ParseFile reads and parses a single Go file into fset.
func (p *GoParser) ParseFile(fset *token.FileSet, filename string) (*types.SourceUnit, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to read file: %v", err),
			Unit:    filename,
			Cause:   err,
		}
	}
	return types.ParseUnit(fset, filename, content)
}

// LoadProgram discovers and parses every Go file of the module rooted at
// rootPath. Files that fail to parse are logged and left out of the
// snapshot.
func (p *GoParser) LoadProgram(ctx context.Context, rootPath string) (*types.Program, error) {
	p.logger.Info("loading program", "path", rootPath)

	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to get absolute path for program: %v", err),
			Unit:    rootPath,
			Cause:   err,
		}
	}

	var module *types.Module
	if content, err := os.ReadFile(filepath.Join(root, "go.mod")); err == nil {
		module, err = parseGoMod(filepath.Join(root, "go.mod"), content)
		if err != nil {
			return nil, err
		}
	}

	paths, err := DiscoverFiles(root)
	if err != nil {
		p.logger.Error("file discovery failed", "path", root, "err", err)
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to discover files: %v", err),
			Unit:    root,
			Cause:   err,
		}
	}
	p.logger.Debug("discovered files", "count", len(paths))

	// token.FileSet is safe for concurrent use; each result slot is written
	// by exactly one goroutine.
	fset := token.NewFileSet()
	results := make([]*types.SourceUnit, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u, err := p.ParseFile(fset, path)
			if err != nil {
				p.logger.Warn("skipping file", "file", path, "err", err)
				return nil
			}
			results[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, types.ContextError(err)
	}

	units := make([]*types.SourceUnit, 0, len(results))
	for _, u := range results {
		if u != nil {
			units = append(units, u)
		}
	}

	prog := types.NewProgram(root, module, fset, units)
	p.logger.Info("program loaded", "units", len(units), "packages", len(prog.Packages()))
	return prog, nil
}

// ReloadUnit re-reads one file and returns a snapshot containing the new
// contents. A file that no longer exists is removed from the snapshot.
func (p *GoParser) ReloadUnit(prog *types.Program, path string) (*types.Program, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return prog.WithoutUnit(path), nil
	}
	u, err := p.ParseFile(prog.FileSet, path)
	if err != nil {
		return nil, err
	}
	return prog.WithUnit(u), nil
}

func parseGoMod(path string, content []byte) (*types.Module, error) {
	f, err := modfile.ParseLax(path, content, nil)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.ParseError,
			Message: fmt.Sprintf("failed to parse go.mod: %v", err),
			Unit:    path,
			Cause:   err,
		}
	}
	module := &types.Module{}
	if f.Module != nil {
		module.Path = f.Module.Mod.Path
	}
	if f.Go != nil {
		module.GoVersion = f.Go.Version
	}
	return module, nil
}
