package tests_test

import (
	"context"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/tests/mcptest"
)

var transportFlag = flag.String("transport", "inprocess", "MCP transport: inprocess or process")
var binFlag = flag.String("bin", "./goextract-mcp", "path to goextract-mcp binary (used with -transport=process)")

func mcpTransport() mcptest.Transport {
	switch *transportFlag {
	case "process":
		return mcptest.Subprocess(*binFlag)
	default:
		return mcptest.InProcess()
	}
}

// selections of the expressions the fixtures extract.
var (
	cartSelection = map[string]any{
		"file": "cart.go", "line": 17, "column": 31, "end_line": 17, "end_column": 45,
	}
	greetSelection = map[string]any{
		"file": "greet/greet.go", "line": 12, "column": 20, "end_line": 12, "end_column": 41,
	}
)

func with(sel map[string]any, kv ...any) map[string]any {
	out := make(map[string]any, len(sel)+len(kv)/2)
	for k, v := range sel {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

type extractOutput struct {
	Action string `json:"action"`
	Files  []struct {
		Path string `json:"path"`
		Diff string `json:"diff"`
	} `json:"files"`
	Issues []struct {
		Kind string `json:"kind"`
	} `json:"issues"`
	Changes int      `json:"change_count"`
	Written []string `json:"written"`
	DryRun  bool     `json:"dry_run"`
}

func TestMCPTools(t *testing.T) {
	tests := []struct {
		name    string
		fixture string
		tool    string
		args    map[string]any
		written []string
	}{
		{
			name: "extract_field", fixture: "extract_field", tool: "extract_field",
			args:    cartSelection,
			written: []string{"cart.go", "fixtures.go"},
		},
		{
			name: "extract_parameter", fixture: "extract_parameter", tool: "extract_parameter",
			args:    with(greetSelection, "name", "shout"),
			written: []string{"greet/greet.go", "main.go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := copyFixture(t, tt.fixture)

			ctx := context.Background()
			sess := mcptest.Dial(ctx, t, mcpTransport(), tmpDir)
			defer sess.Close()

			var out extractOutput
			sess.Call(ctx, t, tt.tool, tt.args, &out)

			assert.False(t, out.DryRun)
			assert.ElementsMatch(t, tt.written, out.Written)
			assert.Len(t, out.Files, len(tt.written))
			compareGoldenFiles(t, tt.fixture, tmpDir)
		})
	}
}

func TestMCPLoadProgram(t *testing.T) {
	tmpDir := copyFixture(t, "extract_parameter")
	ctx := context.Background()
	sess := mcptest.Dial(ctx, t, mcpTransport(), "")
	defer sess.Close()

	var out struct {
		Module   string   `json:"module"`
		Units    int      `json:"units"`
		Packages []string `json:"packages"`
		Watching bool     `json:"watching"`
	}
	sess.Call(ctx, t, "load_program", map[string]any{"path": tmpDir}, &out)

	assert.Equal(t, "example.com/greet", out.Module)
	assert.Equal(t, 2, out.Units)
	assert.ElementsMatch(t, []string{"example.com/greet", "example.com/greet/greet"}, out.Packages)
	assert.False(t, out.Watching)
}

func TestMCPOfferActions(t *testing.T) {
	tmpDir := copyFixture(t, "extract_field")
	ctx := context.Background()
	sess := mcptest.Dial(ctx, t, mcpTransport(), tmpDir)
	defer sess.Close()

	var actions []struct {
		Kind  string `json:"kind"`
		Title string `json:"title"`
	}
	sess.Call(ctx, t, "offer_actions", cartSelection, &actions)
	require.Len(t, actions, 2)
	assert.Equal(t, "refactor.extract.field", actions[0].Kind)
	assert.Equal(t, "Extract parameter", actions[1].Title)

	// A cursor on the package clause offers nothing.
	sess.Call(ctx, t, "offer_actions", map[string]any{"file": "cart.go", "line": 1, "column": 10}, &actions)
	assert.Empty(t, actions)
}

func TestMCPPreview(t *testing.T) {
	tmpDir := copyFixture(t, "extract_parameter")
	ctx := context.Background()
	sess := mcptest.Dial(ctx, t, mcpTransport(), tmpDir)
	defer sess.Close()

	var out extractOutput
	sess.Call(ctx, t, "preview", with(greetSelection, "action", "parameter", "name", "shout"), &out)

	assert.True(t, out.DryRun)
	assert.Empty(t, out.Written)
	require.Len(t, out.Files, 2)
	assert.Equal(t, "greet/greet.go", out.Files[0].Path)
	assert.Contains(t, out.Files[0].Diff, "+func (g *Greeter) Greet(name string, shout string) string {")
	assert.Contains(t, out.Files[1].Diff, `+	fmt.Println(g.Greet("ada", strings.ToUpper("ada")))`)
	assert.Contains(t, out.Files[0].Diff, `-import "strings"`)
	assert.Contains(t, out.Files[1].Diff, `+	"strings"`)
	assertUnchanged(t, "extract_parameter", tmpDir)

	// The snapshot is untouched, so the real extraction still applies.
	sess.Call(ctx, t, "extract_parameter", with(greetSelection, "name", "shout"), &out)
	compareGoldenFiles(t, "extract_parameter", tmpDir)
}

func TestMCPErrors(t *testing.T) {
	tmpDir := copyFixture(t, "extract_field")
	ctx := context.Background()

	sess := mcptest.Dial(ctx, t, mcpTransport(), "")
	defer sess.Close()

	text, isErr := sess.CallText(ctx, t, "extract_field", cartSelection)
	assert.True(t, isErr)
	assert.Contains(t, text, "no program loaded")

	sess.Call(ctx, t, "load_program", map[string]any{"path": tmpDir}, nil)

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"unknown preview action", "preview", with(cartSelection, "action", "method"), "unknown action"},
		{"unknown file", "extract_field", with(cartSelection, "file", "missing.go"), "missing.go"},
		{"position past the end", "extract_field", with(cartSelection, "line", 99), "line 99"},
		{"inverted selection", "extract_field", with(cartSelection, "end_column", 20), "before it starts"},
		{"invalid name", "extract_field", with(cartSelection, "name", "9lives"), "invalid Go identifier"},
		{"no expression", "extract_parameter", map[string]any{"file": "cart.go", "line": 1, "column": 10}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := sess.CallText(ctx, t, tt.tool, tt.args)
			assert.True(t, isErr, "result: %s", text)
			assert.Contains(t, text, tt.want)
		})
	}
	assertUnchanged(t, "extract_field", tmpDir)
}
