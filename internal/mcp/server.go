package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/goextract/internal/config"
	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
	"github.com/mamaar/goextract/pkg/watch"
)

// Server holds the shared state of the MCP tool handlers: the current
// program snapshot, the engine working on it and, when enabled, a watcher
// keeping the snapshot in sync with the disk.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	parser     *analysis.GoParser
	engine     *refactor.DefaultEngine
	serializer *refactor.Serializer
	store      *watch.Store

	// writeMu serializes extractions that write to disk.
	writeMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc // stops the watcher
	done   chan struct{}
}

func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	rc := cfg.RefactorConfig()
	rc.Observer = func(s refactor.Step) {
		logger.Debug("applying step", "step", s.String())
	}
	oracle := analysis.NewOracle(logger).WithConcurrency(cfg.Engine.Concurrency)
	return &Server{
		cfg:        cfg,
		logger:     logger,
		parser:     analysis.NewParser(logger).WithConcurrency(cfg.Engine.Concurrency),
		engine:     refactor.NewEngine(oracle, rc, logger),
		serializer: refactor.NewSerializer(logger).WithContext(cfg.Output.Context),
		store:      watch.NewStore(nil),
	}
}

// Load loads (or reloads) the module at path and makes it the current
// snapshot. A running watcher is replaced by one for the new module.
func (s *Server) Load(ctx context.Context, path string) (*types.Program, error) {
	s.logger.Info("loading program", "path", path)
	prog, err := s.parser.LoadProgram(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.store.Set(prog)

	if s.cfg.Watch.Enabled {
		wctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		s.cancel, s.done = cancel, done
		go func() {
			defer close(done)
			err := watch.Follow(wctx, prog.Root, s.cfg.Watch.Debounce, s.store, s.parser, s.logger)
			if err != nil && wctx.Err() == nil {
				s.logger.Warn("watcher stopped, the program will not follow disk changes", "err", err)
			}
		}()
	}
	return prog, nil
}

// Program returns the current snapshot.
func (s *Server) Program() (*types.Program, error) {
	prog := s.store.Current()
	if prog == nil {
		return nil, errors.New("no program loaded; call load_program first")
	}
	return prog, nil
}

// Watching reports whether a watcher is running.
func (s *Server) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// MCP builds an MCP server exposing the tools over s.
func (s *Server) MCP(version string) *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "goextract", Version: version}, nil)
	registerTools(srv, s)
	return srv
}

// Run serves the tools on t until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context, t mcpsdk.Transport, version string) error {
	return s.MCP(version).Run(ctx, t)
}

// Close stops the watcher.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Server) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
}

// extract runs one extraction against the current snapshot. Unless dryRun
// is set the changed files are written and the result becomes current.
func (s *Server) extract(ctx context.Context, kind types.ActionKind, in ExtractInput, dryRun bool) (*ExtractOutput, error) {
	if !dryRun {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}
	prog, err := s.Program()
	if err != nil {
		return nil, err
	}
	u, span, err := in.Selection.resolve(prog)
	if err != nil {
		return nil, err
	}

	req := types.ExtractRequest{Unit: u.ID, Span: span, Name: in.Name}
	var res *types.Result
	if kind == types.ExtractFieldAction {
		res, err = s.engine.ExtractField(ctx, prog, req)
	} else {
		res, err = s.engine.ExtractParameter(ctx, prog, req)
	}
	if err != nil {
		return nil, err
	}

	diffs, err := s.serializer.Diff(prog, res.Program)
	if err != nil {
		return nil, err
	}
	out := &ExtractOutput{
		Action:  kind.Title(),
		Files:   diffs,
		Issues:  issueOutputs(prog.Root, res.Issues),
		Changes: len(res.Changes),
		DryRun:  dryRun,
	}
	if dryRun {
		return out, nil
	}

	written, err := s.serializer.Commit(prog, res.Program)
	out.Written = relPaths(prog.Root, written)
	if err != nil {
		if len(out.Written) > 0 {
			return nil, fmt.Errorf("write changes (left written: %s): %w", strings.Join(out.Written, ", "), err)
		}
		return nil, fmt.Errorf("write changes: %w", err)
	}
	if err := s.store.Swap(prog, res.Program); errors.Is(err, watch.ErrStale) {
		// The watcher reloaded in between; it will pick up the written files.
		s.logger.Debug("snapshot changed while extracting", "action", kind.Title())
	}
	return out, nil
}
