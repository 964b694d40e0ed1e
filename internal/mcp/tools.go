package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
)

// --- load_program ---

type LoadProgramInput struct {
	Path string `json:"path" jsonschema:"path to the module root (the go.mod directory)"`
}

type LoadProgramOutput struct {
	Module   string   `json:"module,omitempty"`
	Root     string   `json:"root"`
	Units    int      `json:"units"`
	Packages []string `json:"packages"`
	Watching bool     `json:"watching"`
}

// --- selections ---

// Selection is a position or range in a source file. Lines and columns
// are 1-based; columns count bytes.
type Selection struct {
	File      string `json:"file" jsonschema:"path to the source file (absolute or relative to the module root)"`
	Line      int    `json:"line" jsonschema:"line of the selection start"`
	Column    int    `json:"column" jsonschema:"column of the selection start"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"line of the selection end; omit for a cursor position"`
	EndColumn int    `json:"end_column,omitempty" jsonschema:"column of the selection end"`
}

func (s Selection) resolve(prog *types.Program) (*types.SourceUnit, types.Span, error) {
	file := s.File
	if !filepath.IsAbs(file) {
		file = filepath.Join(prog.Root, file)
	}
	id, err := prog.ResolveUnit(file)
	if err != nil {
		return nil, types.Span{}, err
	}
	u := prog.Unit(id)
	start, err := u.OffsetAt(s.Line, s.Column)
	if err != nil {
		return nil, types.Span{}, err
	}
	if s.EndLine == 0 {
		return u, types.Span{Start: start, End: start}, nil
	}
	end, err := u.OffsetAt(s.EndLine, s.EndColumn)
	if err != nil {
		return nil, types.Span{}, err
	}
	if end < start {
		return nil, types.Span{}, fmt.Errorf("selection ends at %d:%d before it starts at %d:%d", s.EndLine, s.EndColumn, s.Line, s.Column)
	}
	return u, types.Span{Start: start, End: end}, nil
}

// --- offer_actions ---

type OfferActionsInput struct {
	Selection
}

type ActionOutput struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// --- extract_field / extract_parameter / preview ---

type ExtractInput struct {
	Selection
	Name string `json:"name,omitempty" jsonschema:"name of the new field or parameter; synthesized from the expression when empty"`
}

type PreviewInput struct {
	ExtractInput
	Action string `json:"action" jsonschema:"the extraction to preview: field or parameter"`
}

type ExtractOutput struct {
	Action  string              `json:"action"`
	Files   []refactor.FileDiff `json:"files"`
	Issues  []IssueOutput       `json:"issues,omitempty"`
	Changes int                 `json:"change_count"`
	Written []string            `json:"written,omitempty"`
	DryRun  bool                `json:"dry_run"`
}

type IssueOutput struct {
	Severity string `json:"severity"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
}

func registerTools(s *mcpsdk.Server, state *Server) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "load_program",
		Description: "Load a Go module into memory. Must be called before any other tool.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in LoadProgramInput) (*mcpsdk.CallToolResult, any, error) {
		prog, err := state.Load(ctx, in.Path)
		if err != nil {
			return errResult(err), nil, nil
		}
		out := LoadProgramOutput{
			Root:     prog.Root,
			Units:    len(prog.Units()),
			Packages: []string{},
			Watching: state.Watching(),
		}
		if prog.Module != nil {
			out.Module = prog.Module.Path
		}
		for _, pkg := range prog.Packages() {
			out.Packages = append(out.Packages, pkg.ImportPath)
		}
		return textResult(out), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "offer_actions",
		Description: "List the extractions (field, parameter) available for the expression at a position or selection.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in OfferActionsInput) (*mcpsdk.CallToolResult, any, error) {
		prog, err := state.Program()
		if err != nil {
			return errResult(err), nil, nil
		}
		u, span, err := in.resolve(prog)
		if err != nil {
			return errResult(err), nil, nil
		}
		actions, err := state.engine.OfferActions(ctx, prog, u.ID, span)
		if err != nil {
			return errResult(err), nil, nil
		}
		out := make([]ActionOutput, 0, len(actions))
		for _, a := range actions {
			out = append(out, ActionOutput{
				Kind:        a.Kind().String(),
				Title:       a.Title(),
				Description: a.Description(),
			})
		}
		return textResult(out), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "extract_field",
		Description: "Move an expression inside a method into a new field of the receiver's struct. Composite literals of the struct are initialized with the expression.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ExtractInput) (*mcpsdk.CallToolResult, any, error) {
		out, err := state.extract(ctx, types.ExtractFieldAction, in, false)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(out), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "extract_parameter",
		Description: "Move an expression inside a function into a new parameter. Every caller passes the expression, rewritten for the call site, as the new argument.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ExtractInput) (*mcpsdk.CallToolResult, any, error) {
		out, err := state.extract(ctx, types.ExtractParameterAction, in, false)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(out), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "preview",
		Description: "Dry run of extract_field or extract_parameter: returns the unified diff without writing anything.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in PreviewInput) (*mcpsdk.CallToolResult, any, error) {
		var kind types.ActionKind
		switch strings.ToLower(in.Action) {
		case "field":
			kind = types.ExtractFieldAction
		case "parameter":
			kind = types.ExtractParameterAction
		default:
			return errResult(fmt.Errorf("unknown action %q: want field or parameter", in.Action)), nil, nil
		}
		out, err := state.extract(ctx, kind, in.ExtractInput, true)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(out), nil, nil
	})
}
