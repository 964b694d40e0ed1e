// Package mcptest provides test helpers for invoking goextract MCP tools
// with swappable transports: in-process (fast) or subprocess (full binary).
package mcptest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/viper"

	"github.com/mamaar/goextract/internal/config"
	internalmcp "github.com/mamaar/goextract/internal/mcp"
)

// Session wraps an MCP ClientSession with cleanup logic.
type Session struct {
	*mcpsdk.ClientSession
	cancel context.CancelFunc
	state  *internalmcp.Server // non-nil only for in-process
}

// Close tears down the session.
func (s *Session) Close() {
	s.ClientSession.Close()
	if s.cancel != nil {
		s.cancel()
	}
	if s.state != nil {
		s.state.Close()
	}
}

// Call invokes a tool and decodes its JSON text result into out (when
// non-nil). A tool error fails the test.
func (s *Session) Call(ctx context.Context, t testing.TB, tool string, args map[string]any, out any) {
	t.Helper()
	text, isErr := s.CallText(ctx, t, tool, args)
	if isErr {
		t.Fatalf("CallTool(%s) returned error: %s", tool, text)
	}
	if out == nil {
		return
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("CallTool(%s): decode %q: %v", tool, text, err)
	}
}

// CallText invokes a tool and returns its text content and whether the
// tool reported an error.
func (s *Session) CallText(ctx context.Context, t testing.TB, tool string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := s.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", tool, err)
	}
	var b strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String(), result.IsError
}

// Transport selects how the MCP server is reached.
type Transport interface {
	connect(ctx context.Context, t testing.TB) (*Session, error)
}

// Dial connects to an MCP server using the given transport. When root is
// not empty it then calls load_program with it.
func Dial(ctx context.Context, t testing.TB, transport Transport, root string) *Session {
	t.Helper()
	sess, err := transport.connect(ctx, t)
	if err != nil {
		t.Fatalf("mcptest.Dial: connect: %v", err)
	}
	if root == "" {
		return sess
	}
	if text, isErr := sess.CallText(ctx, t, "load_program", map[string]any{"path": root}); isErr {
		sess.Close()
		t.Fatalf("mcptest.Dial: load_program returned error: %s", text)
	}
	return sess
}

// inProcess is the in-process transport using NewInMemoryTransports.
type inProcess struct{}

// InProcess returns a transport that runs the MCP server in-process. The
// watcher is disabled so tests observe only the edits they make.
func InProcess() Transport { return inProcess{} }

func (inProcess) connect(ctx context.Context, t testing.TB) (*Session, error) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("watch.enabled", false)
	cfg, err := config.New(v)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	state := internalmcp.NewServer(cfg, logger)

	serverT, clientT := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(ctx)
	go state.Run(ctx, serverT, "test")

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		cancel()
		state.Close()
		return nil, err
	}
	return &Session{ClientSession: session, cancel: cancel, state: state}, nil
}

// subprocess is the subprocess transport using CommandTransport.
type subprocess struct {
	binPath string
}

// Subprocess returns a transport that shells out to the given binary.
func Subprocess(bin string) Transport { return subprocess{binPath: bin} }

func (sp subprocess) connect(ctx context.Context, t testing.TB) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, sp.binPath, "--log-level", "error")
	cmd.Env = append(cmd.Environ(), config.EnvPrefix+"_WATCH_ENABLED=false")

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Session{ClientSession: session, cancel: cancel}, nil
}
