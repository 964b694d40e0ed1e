package mcp

import (
	"encoding/json"
	"path/filepath"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/goextract/pkg/types"
)

// textResult is a convenience that marshals v to JSON and wraps it in a
// CallToolResult with a single TextContent block.
func textResult(v any) *mcpsdk.CallToolResult {
	b, _ := json.MarshalIndent(v, "", "  ")
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a CallToolResult that signals an error.
func errResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
	}
}

func issueOutputs(root string, issues []types.Issue) []IssueOutput {
	out := make([]IssueOutput, 0, len(issues))
	for _, is := range issues {
		o := IssueOutput{
			Severity: strings.ToLower(is.Severity.String()),
			Kind:     is.Kind.String(),
			Message:  is.Message,
			Line:     is.Line,
		}
		if is.Unit != "" {
			o.File = relPath(root, is.Unit)
		}
		out = append(out, o)
	}
	return out
}

func relPath(root, id string) string {
	if rel, err := filepath.Rel(root, id); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return id
}

func relPaths(root string, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, relPath(root, id))
	}
	return out
}
