package refactor

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// Locate returns the innermost expression of the unit whose span contains
// span. It returns nil without an error when nothing extractable is there:
// whitespace, comments, keywords, declared names, package names, import
// paths, composite literal keys and syntactic type positions. A span on the
// selector of x.f locates x.f.
func Locate(prog *pkgtypes.Program, unitID string, span pkgtypes.Span) (ast.Expr, error) {
	u := prog.Unit(unitID)
	if u == nil {
		return nil, &pkgtypes.RefactorError{
			Type:    pkgtypes.SymbolNotFound,
			Message: fmt.Sprintf("source unit not found: %s", unitID),
		}
	}
	if span.Start < 0 || span.End < span.Start || span.End > len(u.Text) {
		return nil, &pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("span %s is outside %s", span, unitID),
		}
	}

	span, ok := trimBlank(u.Text, span)
	if !ok || inComment(u, span) {
		return nil, nil
	}

	path, _ := astutil.PathEnclosingInterval(u.AST, u.Pos(span.Start), u.Pos(span.End))
	if len(path) == 0 {
		return nil, nil
	}
	expr, ok := path[0].(ast.Expr)
	if !ok {
		return nil, nil
	}
	parent := func(i int) ast.Node {
		if i < len(path) {
			return path[i]
		}
		return nil
	}

	i := 0
	if id, ok := expr.(*ast.Ident); ok {
		if sel, ok := parent(1).(*ast.SelectorExpr); ok && sel.Sel == id {
			expr, i = sel, 1
		} else if declaresName(id, parent(1), parent(2)) {
			return nil, nil
		}
	}
	if lit, ok := expr.(*ast.BasicLit); ok {
		if _, ok := parent(1).(*ast.ImportSpec); ok && lit.Kind == token.STRING {
			return nil, nil
		}
	}

	switch expr.(type) {
	case *ast.KeyValueExpr, *ast.Ellipsis,
		*ast.ArrayType, *ast.MapType, *ast.ChanType, *ast.FuncType,
		*ast.StructType, *ast.InterfaceType:
		return nil, nil
	}
	if inTypePosition(expr, parent(i+1)) {
		return nil, nil
	}
	return expr, nil
}

// EnclosingRoutine returns the function declaration containing node, or nil
// when node is at package scope. Function literals are not routines.
func EnclosingRoutine(file *ast.File, node ast.Node) *ast.FuncDecl {
	path, _ := astutil.PathEnclosingInterval(file, node.Pos(), node.End())
	for _, n := range path {
		if fd, ok := n.(*ast.FuncDecl); ok {
			return fd
		}
	}
	return nil
}

// EnclosingType resolves the struct type owning expr: the receiver base type
// of the enclosing method. Anything else is a ResolutionError.
func EnclosingType(ctx context.Context, oracle Oracle, prog *pkgtypes.Program, unitID string, expr ast.Expr) (*pkgtypes.Symbol, error) {
	u := prog.Unit(unitID)
	routine, err := oracle.EnclosingSymbol(ctx, prog, unitID, expr.Pos())
	if err != nil {
		return nil, err
	}
	if routine == nil || routine.Enclosing == nil {
		return nil, (&pkgtypes.RefactorError{
			Type:    pkgtypes.ResolutionError,
			Message: "expression is not inside a method",
		}).Located(u, u.Offset(expr.Pos()))
	}
	owner := routine.Enclosing
	tn, ok := owner.Object.(*gotypes.TypeName)
	if !ok {
		return nil, (&pkgtypes.RefactorError{
			Type:    pkgtypes.ResolutionError,
			Message: fmt.Sprintf("cannot resolve receiver type of %s", routine.Name),
		}).Located(u, u.Offset(expr.Pos()))
	}
	if _, ok := tn.Type().Underlying().(*gotypes.Struct); !ok {
		return nil, (&pkgtypes.RefactorError{
			Type:    pkgtypes.ResolutionError,
			Message: fmt.Sprintf("receiver type %s is not a struct", owner.Name),
		}).Located(u, u.Offset(expr.Pos()))
	}
	return owner, nil
}

// declaresName reports whether id is being declared (or is a label, package
// name or struct literal key) rather than referenced.
func declaresName(id *ast.Ident, parent, grand ast.Node) bool {
	switch p := parent.(type) {
	case *ast.File, *ast.ImportSpec, *ast.FuncDecl, *ast.TypeSpec,
		*ast.LabeledStmt, *ast.BranchStmt:
		return true
	case *ast.Field:
		return containsIdent(p.Names, id)
	case *ast.ValueSpec:
		return containsIdent(p.Names, id)
	case *ast.AssignStmt:
		return p.Tok == token.DEFINE && containsExpr(p.Lhs, id)
	case *ast.RangeStmt:
		return p.Tok == token.DEFINE && (p.Key == id || p.Value == id)
	case *ast.KeyValueExpr:
		_, inLit := grand.(*ast.CompositeLit)
		return inLit && p.Key == id
	}
	return false
}

// inTypePosition reports whether expr is syntactically a type: the type of
// a declaration, literal or assertion, or part of a type literal.
func inTypePosition(expr ast.Expr, parent ast.Node) bool {
	switch p := parent.(type) {
	case *ast.Field:
		return p.Type == expr
	case *ast.ValueSpec:
		return p.Type == expr
	case *ast.TypeSpec:
		return p.Type == expr
	case *ast.CompositeLit:
		return p.Type == expr
	case *ast.TypeAssertExpr:
		return p.Type == expr
	case *ast.ArrayType, *ast.MapType, *ast.ChanType, *ast.FuncType,
		*ast.StructType, *ast.InterfaceType, *ast.Ellipsis:
		return true
	}
	return false
}

func containsIdent(ids []*ast.Ident, id *ast.Ident) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func containsExpr(exprs []ast.Expr, id *ast.Ident) bool {
	for _, x := range exprs {
		if x == id {
			return true
		}
	}
	return false
}

// trimBlank shrinks span to exclude surrounding whitespace. An empty span is
// a cursor; it is blank when whitespace lies on both sides of it.
func trimBlank(text []byte, span pkgtypes.Span) (pkgtypes.Span, bool) {
	if span.Len() == 0 {
		before := span.Start == 0 || isSpace(text[span.Start-1])
		after := span.Start == len(text) || isSpace(text[span.Start])
		return span, !(before && after)
	}
	s := string(text[span.Start:span.End])
	lead := len(s) - len(strings.TrimLeft(s, " \t\r\n"))
	trail := len(s) - len(strings.TrimRight(s, " \t\r\n"))
	if lead == len(s) {
		return span, false
	}
	return pkgtypes.Span{Start: span.Start + lead, End: span.End - trail}, true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func inComment(u *pkgtypes.SourceUnit, span pkgtypes.Span) bool {
	for _, cg := range u.AST.Comments {
		cs := u.SpanOf(cg)
		if cs.Start <= span.Start && span.End <= cs.End && !(span.Len() == 0 && (span.Start == cs.Start || span.Start == cs.End)) {
			return true
		}
	}
	return false
}
