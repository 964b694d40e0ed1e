package refactor

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// Replace returns a snapshot in which the source of target is replaced by
// replacement. Only the bytes of target's span change, so comments and
// whitespace around it survive. The unit is re-parsed; a replacement that
// leaves the unit unparseable is an InvalidOperation and no snapshot is
// produced.
func Replace(prog *pkgtypes.Program, unitID string, target ast.Node, replacement string) (*pkgtypes.Program, pkgtypes.Change, error) {
	u := prog.Unit(unitID)
	if u == nil {
		return nil, pkgtypes.Change{}, unitNotFound(unitID)
	}
	if !u.Contains(target.Pos()) {
		return nil, pkgtypes.Change{}, &pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("node is not part of %s", unitID),
		}
	}
	return ReplaceSpan(prog, unitID, u.SpanOf(target), replacement)
}

// ReplaceNode is Replace with a node printed by go/printer.
func ReplaceNode(prog *pkgtypes.Program, unitID string, target, node ast.Node) (*pkgtypes.Program, pkgtypes.Change, error) {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, token.NewFileSet(), node); err != nil {
		return nil, pkgtypes.Change{}, &pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("cannot print replacement: %v", err),
			Cause:   err,
		}
	}
	return Replace(prog, unitID, target, buf.String())
}

// ReplaceSpan replaces an arbitrary byte span of a unit. Insertions use an
// empty span.
func ReplaceSpan(prog *pkgtypes.Program, unitID string, span pkgtypes.Span, text string) (*pkgtypes.Program, pkgtypes.Change, error) {
	u := prog.Unit(unitID)
	if u == nil {
		return nil, pkgtypes.Change{}, unitNotFound(unitID)
	}
	if span.Start < 0 || span.End < span.Start || span.End > len(u.Text) {
		return nil, pkgtypes.Change{}, &pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("span %s is outside %s", span, unitID),
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(u.Text) - span.Len() + len(text))
	buf.Write(u.Text[:span.Start])
	buf.WriteString(text)
	buf.Write(u.Text[span.End:])

	next, err := u.WithText(buf.Bytes())
	if err != nil {
		return nil, pkgtypes.Change{}, (&pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("replacing %q with %q does not parse", u.Slice(span), text),
			Cause:   err,
		}).Located(u, span.Start)
	}

	change := pkgtypes.Change{
		Unit:    unitID,
		Span:    span,
		OldText: u.Slice(span),
		NewText: text,
	}
	return prog.WithUnit(next), change, nil
}

// NodeAt returns the innermost node of u whose span is exactly span.
func NodeAt(u *pkgtypes.SourceUnit, span pkgtypes.Span) ast.Node {
	n, _ := findNode[ast.Node](u, span)
	return n
}

// findNode returns the innermost node of type T whose span is exactly span.
func findNode[T ast.Node](u *pkgtypes.SourceUnit, span pkgtypes.Span) (T, bool) {
	var (
		found T
		ok    bool
	)
	start, end := u.Pos(span.Start), u.Pos(span.End)
	ast.Inspect(u.AST, func(n ast.Node) bool {
		if n == nil || n.Pos() > start || n.End() < end {
			return false
		}
		if n.Pos() == start && n.End() == end {
			if t, isT := n.(T); isT {
				found, ok = t, true
			}
		}
		return true
	})
	return found, ok
}

func unitNotFound(unitID string) error {
	return &pkgtypes.RefactorError{
		Type:    pkgtypes.SymbolNotFound,
		Message: fmt.Sprintf("source unit not found: %s", unitID),
	}
}
