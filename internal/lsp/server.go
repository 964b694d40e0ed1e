package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mamaar/goextract/internal/config"
	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
	"github.com/mamaar/goextract/pkg/watch"
)

// errExit ends the message loop after an exit notification.
var errExit = errors.New("exit")

// Server offers the extractions as code actions. The program snapshot
// follows the editor: open documents replace the file contents on disk
// until they are closed.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string

	parser *analysis.GoParser
	engine *refactor.DefaultEngine
	store  *watch.Store

	mu       sync.Mutex
	reloader *watch.Reloader
	docs     map[string][]byte // open documents by path
	shutdown bool
}

// NewServer creates a new LSP server instance
func NewServer(cfg *config.Config, logger *slog.Logger, version string) *Server {
	rc := cfg.RefactorConfig()
	rc.Observer = func(s refactor.Step) {
		logger.Debug("applying step", "step", s.String())
	}
	oracle := analysis.NewOracle(logger).WithConcurrency(cfg.Engine.Concurrency)
	return &Server{
		cfg:     cfg,
		logger:  logger,
		version: version,
		parser:  analysis.NewParser(logger).WithConcurrency(cfg.Engine.Concurrency),
		engine:  refactor.NewEngine(oracle, rc, logger),
		store:   watch.NewStore(nil),
		docs:    make(map[string][]byte),
	}
}

func (s *Server) capabilities() ServerCapabilities {
	return ServerCapabilities{
		TextDocumentSync: &TextDocumentSyncOptions{
			OpenClose: true,
			Change:    TextDocumentSyncKindFull,
		},
		CodeActionProvider: &CodeActionOptions{
			CodeActionKinds: []string{
				types.ExtractFieldAction.String(),
				types.ExtractParameterAction.String(),
			},
			ResolveProvider: true,
		},
	}
}

// Serve handles the LSP protocol over the given reader/writer until the
// client sends exit, closes the stream or ctx is done.
func (s *Server) Serve(ctx context.Context, reader io.Reader, writer io.Writer) error {
	conn := NewConnection(reader, writer, s.logger)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		message, err := conn.ReadMessage()
		if err == io.EOF {
			s.logger.Info("connection closed")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}

		response, err := s.handleMessage(ctx, message)
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			s.logger.Warn("request failed", "method", message.Method, "err", err)
			if message.ID == nil {
				continue
			}
			response = errorResponse(message.ID, errorCode(err), err.Error())
		}
		if response == nil {
			continue
		}
		if err := conn.WriteMessage(response); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// handleMessage dispatches one message. Notifications yield no response.
func (s *Server) handleMessage(ctx context.Context, message *Message) (*Message, error) {
	s.mu.Lock()
	shutdown := s.shutdown
	s.mu.Unlock()
	if shutdown && message.Method != "exit" {
		if message.ID == nil {
			return nil, nil
		}
		return errorResponse(message.ID, CodeInvalidRequest, "server is shutting down"), nil
	}

	switch message.Method {
	case "initialize":
		return s.handleInitialize(ctx, message)
	case "initialized":
		return nil, nil
	case "shutdown":
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		return successResponse(message.ID, nil), nil
	case "exit":
		return nil, errExit
	case "textDocument/didOpen":
		var params DidOpenTextDocumentParams
		if err := unmarshalParams(message, &params); err != nil {
			return nil, err
		}
		return nil, s.openDocument(ctx, params.TextDocument.URI, []byte(params.TextDocument.Text))
	case "textDocument/didChange":
		var params DidChangeTextDocumentParams
		if err := unmarshalParams(message, &params); err != nil {
			return nil, err
		}
		if n := len(params.ContentChanges); n > 0 {
			return nil, s.openDocument(ctx, params.TextDocument.URI, []byte(params.ContentChanges[n-1].Text))
		}
		return nil, nil
	case "textDocument/didClose":
		var params DidCloseTextDocumentParams
		if err := unmarshalParams(message, &params); err != nil {
			return nil, err
		}
		return nil, s.closeDocument(ctx, params.TextDocument.URI)
	case "textDocument/didSave":
		return nil, nil
	case "workspace/didChangeWatchedFiles":
		var params DidChangeWatchedFilesParams
		if err := unmarshalParams(message, &params); err != nil {
			return nil, err
		}
		return nil, s.filesChanged(ctx, params.Changes)
	case "textDocument/codeAction":
		return s.handleCodeAction(ctx, message)
	case "codeAction/resolve":
		return s.handleCodeActionResolve(ctx, message)
	default:
		if message.ID == nil {
			return nil, nil
		}
		return errorResponse(message.ID, CodeMethodNotFound, "method not found: "+message.Method), nil
	}
}

func (s *Server) handleInitialize(ctx context.Context, message *Message) (*Message, error) {
	var params InitializeParams
	if err := unmarshalParams(message, &params); err != nil {
		return nil, err
	}

	root := params.RootPath
	switch {
	case params.RootURI != "":
		root = uriToPath(params.RootURI)
	case len(params.WorkspaceFolders) > 0:
		root = uriToPath(params.WorkspaceFolders[0].URI)
	}
	if root == "" {
		return errorResponse(message.ID, CodeInvalidParams, "no workspace root given"), nil
	}

	prog, err := s.parser.LoadProgram(ctx, root)
	if err != nil {
		return nil, err
	}
	s.store.Set(prog)
	s.mu.Lock()
	s.reloader = watch.NewReloader(prog.Root, s.store, s.parser, s.logger)
	s.mu.Unlock()

	s.logger.Info("workspace loaded", "root", prog.Root, "units", len(prog.Units()))
	return successResponse(message.ID, InitializeResult{
		Capabilities: s.capabilities(),
		ServerInfo:   &ServerInfo{Name: "goextract", Version: s.version},
	}), nil
}

// program returns the current snapshot, failing before initialize.
func (s *Server) program() (*types.Program, error) {
	prog := s.store.Current()
	if prog == nil {
		return nil, &requestError{code: CodeServerNotInitialized, msg: "server not initialized"}
	}
	return prog, nil
}

// openDocument makes text the contents of the document at uri.
func (s *Server) openDocument(ctx context.Context, uri string, text []byte) error {
	if _, err := s.program(); err != nil {
		return err
	}
	path := uriToPath(uri)
	if !strings.HasSuffix(path, ".go") {
		return nil
	}
	s.mu.Lock()
	s.docs[path] = text
	s.mu.Unlock()

	_, err := s.store.Update(ctx, func(cur *types.Program) (*types.Program, error) {
		return s.overlay(cur, path, text), nil
	})
	return err
}

// overlay returns prog with the unit at path holding text. A document
// that does not parse leaves the previous unit in place.
func (s *Server) overlay(prog *types.Program, path string, text []byte) *types.Program {
	if !within(prog.Root, path) {
		return prog
	}
	var (
		u   *types.SourceUnit
		err error
	)
	if prev := prog.Unit(path); prev != nil {
		u, err = prev.WithText(text)
	} else {
		u, err = types.ParseUnit(prog.FileSet, path, text)
	}
	if err != nil {
		s.logger.Debug("keeping previous version of document", "file", path, "err", err)
		return prog
	}
	return prog.WithUnit(u)
}

// closeDocument drops the editor contents and reloads the file from disk.
func (s *Server) closeDocument(ctx context.Context, uri string) error {
	path := uriToPath(uri)
	s.mu.Lock()
	_, open := s.docs[path]
	delete(s.docs, path)
	reloader := s.reloader
	s.mu.Unlock()
	if !open || reloader == nil {
		return nil
	}
	_, err := reloader.Apply(ctx, watch.Batch{Paths: []string{path}})
	return err
}

// filesChanged reloads files changed on disk. Open documents keep their
// editor contents.
func (s *Server) filesChanged(ctx context.Context, changes []FileEvent) error {
	s.mu.Lock()
	reloader := s.reloader
	docs := make(map[string][]byte, len(s.docs))
	for path, text := range s.docs {
		docs[path] = text
	}
	s.mu.Unlock()
	if reloader == nil {
		return nil
	}

	var b watch.Batch
	for _, c := range changes {
		path := uriToPath(c.URI)
		switch {
		case filepath.Base(path) == "go.mod":
			b.Module = true
		case strings.HasSuffix(path, ".go") && docs[path] == nil:
			b.Paths = append(b.Paths, path)
		}
	}
	if len(b.Paths) == 0 && !b.Module {
		return nil
	}
	if _, err := reloader.Apply(ctx, b); err != nil {
		return err
	}
	if !b.Module {
		return nil
	}
	_, err := s.store.Update(ctx, func(cur *types.Program) (*types.Program, error) {
		for path, text := range docs {
			cur = s.overlay(cur, path, text)
		}
		return cur, nil
	})
	return err
}

type requestError struct {
	code int
	msg  string
}

func (e *requestError) Error() string { return e.msg }

func errorCode(err error) int {
	var re *requestError
	if errors.As(err, &re) {
		return re.code
	}
	var rerr *types.RefactorError
	if errors.As(err, &rerr) {
		return CodeRequestFailed
	}
	return CodeInternalError
}

func unmarshalParams(message *Message, v any) error {
	if err := json.Unmarshal(message.Params, v); err != nil {
		return &requestError{code: CodeInvalidParams, msg: fmt.Sprintf("invalid params for %s: %v", message.Method, err)}
	}
	return nil
}

func successResponse(id any, result any) *Message {
	return &Message{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id any, code int, message string) *Message {
	return &Message{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ResponseError{Code: code, Message: message},
	}
}

func uriToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return filepath.FromSlash(u.Path)
}

func pathToURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
