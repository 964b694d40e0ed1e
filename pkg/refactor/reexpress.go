package refactor

import (
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"slices"
	"strings"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

type holeKind int

const (
	holeParam    holeKind = iota // a parameter of the routine
	holeReceiver                 // the routine's receiver
	holePackage                  // "pkg." of a qualified identifier
	holeObject                   // a universe or package-level object
)

// hole is a part of an extracted expression whose text depends on the site
// the expression is written at. Spans are relative to the expression.
type hole struct {
	kind holeKind
	span pkgtypes.Span

	index        int  // holeParam
	selectorBase bool // holeReceiver used as x in x.f

	path string         // holePackage: imported package path
	name string         // holePackage: package name
	obj  gotypes.Object // holeObject
}

// reexpression is an extracted expression prepared for re-use at other
// places of the program: composite literals of the owner type or call
// sites of the routine.
type reexpression struct {
	text     string
	pkg      *gotypes.Package
	holes    []hole
	pointer  bool // the routine has a pointer receiver
	receiver bool // the expression depends on the receiver
}

// usage controls which locals of the routine an expression may depend on.
type usage int

const (
	packageLevelOnly usage = iota // field initializers
	routineInputs                 // parameter arguments: receiver and parameters
)

// analyzeExpr classifies every identifier of expr. fd is the routine
// containing expr, tp its type-checked package. Dependencies on locals of
// the routine that cannot be expressed elsewhere are an InvalidOperation.
func analyzeExpr(tp *pkgtypes.TypedPackage, u *pkgtypes.SourceUnit, expr ast.Expr, fd *ast.FuncDecl, allow usage) (*reexpression, error) {
	span := u.SpanOf(expr)
	re := &reexpression{
		text: u.Slice(span),
		pkg:  tp.Types,
	}

	var (
		recv   *gotypes.Var
		params *gotypes.Tuple
	)
	if fd != nil {
		if fn, ok := tp.Info.Defs[fd.Name].(*gotypes.Func); ok {
			sig := fn.Signature()
			recv, params = sig.Recv(), sig.Params()
			if recv != nil {
				_, re.pointer = gotypes.Unalias(recv.Type()).(*gotypes.Pointer)
			}
		}
	}

	rel := func(from, to token.Pos) pkgtypes.Span {
		return pkgtypes.Span{Start: u.Offset(from) - span.Start, End: u.Offset(to) - span.Start}
	}
	reject := func(id *ast.Ident, format string, args ...any) error {
		return (&pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf(format, args...),
		}).Located(u, u.Offset(id.Pos()))
	}

	skip := make(map[*ast.Ident]bool)
	bases := make(map[*ast.Ident]bool)
	var err error
	ast.Inspect(expr, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.SelectorExpr:
			skip[n.Sel] = true
			x, ok := n.X.(*ast.Ident)
			if !ok {
				return true
			}
			if pn, ok := tp.Info.Uses[x].(*gotypes.PkgName); ok {
				re.holes = append(re.holes, hole{
					kind: holePackage,
					span: rel(x.Pos(), n.Sel.Pos()),
					path: pn.Imported().Path(),
					name: pn.Imported().Name(),
				})
				skip[x] = true
			} else {
				bases[x] = true
			}
		case *ast.Ident:
			if skip[n] || n.Name == "_" {
				return true
			}
			obj := tp.Info.Uses[n]
			if obj == nil || declaredWithin(u, span, obj) {
				return true
			}
			switch {
			case obj.Parent() == gotypes.Universe:
				re.holes = append(re.holes, hole{kind: holeObject, span: rel(n.Pos(), n.End()), obj: obj})
			case obj.Pkg() != nil && obj.Parent() == obj.Pkg().Scope():
				if obj.Pkg() != tp.Types {
					err = reject(n, "%s is dot-imported", n.Name)
					return false
				}
				re.holes = append(re.holes, hole{kind: holeObject, span: rel(n.Pos(), n.End()), obj: obj})
			case isMember(obj):
				// Fields and methods are reached through selectors or
				// literal keys and never change.
			case recv != nil && obj == gotypes.Object(recv):
				if allow != routineInputs {
					err = reject(n, "expression depends on the receiver %s", n.Name)
					return false
				}
				re.receiver = true
				re.holes = append(re.holes, hole{kind: holeReceiver, span: rel(n.Pos(), n.End()), selectorBase: bases[n]})
			default:
				if i := paramIndex(params, obj); i >= 0 {
					if allow != routineInputs {
						err = reject(n, "expression depends on the parameter %s", n.Name)
						return false
					}
					re.holes = append(re.holes, hole{kind: holeParam, span: rel(n.Pos(), n.End()), index: i})
					return true
				}
				if tn, ok := obj.(*gotypes.TypeName); ok {
					if _, isParam := tn.Type().(*gotypes.TypeParam); isParam {
						err = reject(n, "expression depends on the type parameter %s", n.Name)
						return false
					}
				}
				err = reject(n, "expression depends on the local %s", n.Name)
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(re.holes, func(a, b hole) int { return a.span.Start - b.span.Start })
	return re, nil
}

func declaredWithin(u *pkgtypes.SourceUnit, span pkgtypes.Span, obj gotypes.Object) bool {
	if !u.Contains(obj.Pos()) {
		return false
	}
	off := u.Offset(obj.Pos())
	return span.Start <= off && off < span.End
}

func isMember(obj gotypes.Object) bool {
	switch o := obj.(type) {
	case *gotypes.Var:
		return o.IsField()
	case *gotypes.Func:
		return o.Signature().Recv() != nil
	}
	return false
}

func paramIndex(params *gotypes.Tuple, obj gotypes.Object) int {
	if params == nil {
		return -1
	}
	for i := range params.Len() {
		if params.At(i) == obj {
			return i
		}
	}
	return -1
}

// site is a place an extracted expression is written to.
type site struct {
	unit  *pkgtypes.SourceUnit // unit in the snapshot being edited
	pkg   *gotypes.Package     // type-checked package of the site
	scope *gotypes.Scope       // innermost scope at pos; nil skips scope checks
	pos   token.Pos            // position of the site in the checked snapshot

	// Call sites only. Nodes belong to unit.
	args       []ast.Expr
	receiver   ast.Expr
	recvAdjust string // "&" or "*" when the call's receiver differs in pointer-ness
}

// render writes the expression for s. It returns the imports the site's
// file needs for the result.
func (re *reexpression) render(s *site) (string, []importSpec, error) {
	var (
		b      strings.Builder
		last   int
		needed = make(map[string]string)
	)
	for _, h := range re.holes {
		b.WriteString(re.text[last:h.span.Start])
		last = h.span.End
		text, err := re.renderHole(h, s, needed)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(text)
	}
	b.WriteString(re.text[last:])
	return b.String(), sortedImports(needed), nil
}

func (re *reexpression) renderHole(h hole, s *site, needed map[string]string) (string, error) {
	switch h.kind {
	case holeParam:
		if h.index >= len(s.args) {
			return "", fmt.Errorf("call has no argument for parameter %d", h.index)
		}
		return operand(s.unit, s.args[h.index]), nil
	case holeReceiver:
		if s.receiver == nil {
			return "", fmt.Errorf("call has no receiver")
		}
		if h.selectorBase || s.recvAdjust == "" {
			return operand(s.unit, s.receiver), nil
		}
		return s.recvAdjust + operand(s.unit, s.receiver), nil
	case holePackage:
		local, err := s.packageRef(h.path, h.name, needed)
		if err != nil {
			return "", err
		}
		if local == "" {
			return "", nil
		}
		return local + ".", nil
	case holeObject:
		return s.objectRef(h.obj, needed)
	}
	return "", fmt.Errorf("unknown hole kind %d", h.kind)
}

// objectRef renders a reference to a universe or package-level object.
func (s *site) objectRef(obj gotypes.Object, needed map[string]string) (string, error) {
	if obj.Pkg() == nil || samePackage(obj.Pkg(), s.pkg) {
		if err := s.resolves(obj.Name(), obj); err != nil {
			return "", err
		}
		return obj.Name(), nil
	}
	if !obj.Exported() {
		return "", fmt.Errorf("%s is not exported by %s", obj.Name(), obj.Pkg().Path())
	}
	local, err := s.packageRef(obj.Pkg().Path(), obj.Pkg().Name(), needed)
	if err != nil {
		return "", err
	}
	if local == "" {
		return obj.Name(), nil
	}
	return local + "." + obj.Name(), nil
}

// packageRef returns the name the site's file uses for the package path,
// or "" when no qualifier is needed. Missing imports are recorded in needed.
func (s *site) packageRef(path, name string, needed map[string]string) (string, error) {
	if s.pkg != nil && s.pkg.Path() == path {
		return "", nil
	}
	if local, ok := ImportName(s.unit.AST, path, name); ok {
		if local == "." {
			return "", nil
		}
		return local, nil
	}
	if s.scope != nil {
		if _, obj := s.scope.LookupParent(name, s.pos); obj != nil {
			return "", fmt.Errorf("importing %s would conflict with %s", path, name)
		}
	}
	needed[path] = name
	return name, nil
}

// resolves checks that name denotes want at the site.
func (s *site) resolves(name string, want gotypes.Object) error {
	if s.scope == nil {
		return nil
	}
	if _, obj := s.scope.LookupParent(name, s.pos); obj != want {
		return fmt.Errorf("%s is shadowed", name)
	}
	return nil
}

func samePackage(a, b *gotypes.Package) bool {
	return a != nil && b != nil && (a == b || a.Path() == b.Path())
}

// operand returns the source of e, parenthesized unless e is an operand or
// primary expression.
func operand(u *pkgtypes.SourceUnit, e ast.Expr) string {
	text := u.Slice(u.SpanOf(e))
	if isOperand(e) {
		return text
	}
	return "(" + text + ")"
}

func isOperand(e ast.Expr) bool {
	switch e.(type) {
	case *ast.Ident, *ast.BasicLit, *ast.CompositeLit, *ast.FuncLit,
		*ast.ParenExpr, *ast.SelectorExpr, *ast.IndexExpr, *ast.IndexListExpr,
		*ast.SliceExpr, *ast.TypeAssertExpr, *ast.CallExpr:
		return true
	}
	return false
}

// scopeAt returns the innermost scope of pkg at pos.
func scopeAt(pkg *gotypes.Package, pos token.Pos) *gotypes.Scope {
	if pkg == nil {
		return nil
	}
	if s := pkg.Scope().Innermost(pos); s != nil {
		return s
	}
	return pkg.Scope()
}
