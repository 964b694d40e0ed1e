package lsp

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/mamaar/goextract/pkg/types"
)

func (s *Server) handleCodeAction(ctx context.Context, message *Message) (*Message, error) {
	var params CodeActionParams
	if err := unmarshalParams(message, &params); err != nil {
		return nil, err
	}
	prog, err := s.program()
	if err != nil {
		return nil, err
	}
	u := prog.Unit(uriToPath(params.TextDocument.URI))
	if u == nil {
		return successResponse(message.ID, []CodeAction{}), nil
	}

	span := Span(u.Text, params.Range)
	actions, err := s.engine.OfferActions(ctx, prog, u.ID, span)
	if err != nil {
		return nil, err
	}

	out := []CodeAction{}
	for _, a := range actions {
		kind := a.Kind().String()
		if !wanted(params.Context.Only, kind) {
			continue
		}
		out = append(out, CodeAction{
			Title: a.Title(),
			Kind:  kind,
			Data:  &CodeActionData{URI: params.TextDocument.URI, Range: params.Range},
		})
	}
	s.logger.Debug("code actions", "file", u.ID, "span", span, "count", len(out))
	return successResponse(message.ID, out), nil
}

// handleCodeActionResolve runs the extraction against the current snapshot
// and returns the action with its edit.
func (s *Server) handleCodeActionResolve(ctx context.Context, message *Message) (*Message, error) {
	var action CodeAction
	if err := unmarshalParams(message, &action); err != nil {
		return nil, err
	}
	if action.Data == nil {
		return nil, &requestError{code: CodeInvalidParams, msg: "code action has no data"}
	}
	prog, err := s.program()
	if err != nil {
		return nil, err
	}
	id, err := prog.ResolveUnit(uriToPath(action.Data.URI))
	if err != nil {
		return nil, err
	}
	req := types.ExtractRequest{Unit: id, Span: Span(prog.Unit(id).Text, action.Data.Range)}

	var res *types.Result
	switch action.Kind {
	case types.ExtractFieldAction.String():
		res, err = s.engine.ExtractField(ctx, prog, req)
	case types.ExtractParameterAction.String():
		res, err = s.engine.ExtractParameter(ctx, prog, req)
	default:
		return nil, &requestError{code: CodeInvalidParams, msg: "unknown code action kind " + action.Kind}
	}
	if err != nil {
		return nil, err
	}

	action.Edit = workspaceEdit(prog, res.Program)
	for _, is := range res.Issues {
		s.logger.Info("extraction note", "kind", is.Kind.String(), "message", is.Message)
	}
	return successResponse(message.ID, action), nil
}

func wanted(only []string, kind string) bool {
	if len(only) == 0 {
		return true
	}
	for _, o := range only {
		if kind == o || strings.HasPrefix(kind, o+".") {
			return true
		}
	}
	return false
}

// workspaceEdit describes each changed unit as one edit replacing the
// differing middle of the file.
func workspaceEdit(before, after *types.Program) *WorkspaceEdit {
	edit := &WorkspaceEdit{Changes: make(map[string][]TextEdit)}
	for _, u := range after.Units() {
		prev := before.Unit(u.ID)
		if prev == nil || bytes.Equal(prev.Text, u.Text) {
			continue
		}
		edit.Changes[pathToURI(u.ID)] = []TextEdit{textEdit(prev.Text, u.Text)}
	}
	return edit
}

func textEdit(old, next []byte) TextEdit {
	prefix := 0
	for prefix < len(old) && prefix < len(next) && old[prefix] == next[prefix] {
		prefix++
	}
	for prefix > 0 && prefix < len(old) && !utf8.RuneStart(old[prefix]) {
		prefix--
	}
	suffix := 0
	for suffix < len(old)-prefix && suffix < len(next)-prefix && old[len(old)-1-suffix] == next[len(next)-1-suffix] {
		suffix++
	}
	for suffix > 0 && !utf8.RuneStart(old[len(old)-suffix]) {
		suffix--
	}
	return TextEdit{
		Range: Range{
			Start: PositionOf(old, prefix),
			End:   PositionOf(old, len(old)-suffix),
		},
		NewText: string(next[prefix : len(next)-suffix]),
	}
}

// Span converts an LSP range into a byte span of text.
func Span(text []byte, r Range) types.Span {
	start, end := OffsetOf(text, r.Start), OffsetOf(text, r.End)
	if end < start {
		start, end = end, start
	}
	return types.Span{Start: start, End: end}
}

// OffsetOf converts an LSP position into a byte offset. Positions past the
// end of a line or of the text are clamped.
func OffsetOf(text []byte, pos Position) int {
	off := 0
	for line := 0; line < pos.Line; line++ {
		i := bytes.IndexByte(text[off:], '\n')
		if i < 0 {
			return len(text)
		}
		off += i + 1
	}
	for units := 0; units < pos.Character && off < len(text); {
		r, size := utf8.DecodeRune(text[off:])
		if r == '\n' {
			break
		}
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > pos.Character {
			break
		}
		units += n
		off += size
	}
	return off
}

// PositionOf converts a byte offset into an LSP position.
func PositionOf(text []byte, offset int) Position {
	offset = min(max(offset, 0), len(text))
	line := bytes.Count(text[:offset], []byte{'\n'})
	start := bytes.LastIndexByte(text[:offset], '\n') + 1
	char := 0
	for _, r := range string(text[start:offset]) {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		char += n
	}
	return Position{Line: line, Character: char}
}
