package analysis

import (
	"cmp"
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	gotypes "go/types"
	"iter"
	"log/slog"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/ast/edge"
	"golang.org/x/tools/go/ast/inspector"

	"github.com/mamaar/goextract/pkg/types"
)

// Oracle answers semantic questions about a program snapshot: expression
// types, enclosing declarations, callers and composite literals. Every
// answer is computed from the snapshot's own type-check, so results for one
// snapshot never leak into another.
type Oracle struct {
	logger      *slog.Logger
	concurrency int
	std         *stdImporter
}

func NewOracle(logger *slog.Logger) *Oracle {
	return &Oracle{
		logger:      logger,
		concurrency: runtime.NumCPU(),
		std:         newStdImporter(),
	}
}

// WithConcurrency bounds the number of packages searched in parallel.
func (o *Oracle) WithConcurrency(n int) *Oracle {
	if n > 0 {
		o.concurrency = n
	}
	return o
}

func (o *Oracle) index(ctx context.Context, prog *types.Program) (*programIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.ContextError(err)
	}
	return indexFor(ctx, prog, o.std, o.logger)
}

// Package returns the type-checked package containing unitID.
func (o *Oracle) Package(ctx context.Context, prog *types.Program, unitID string) (*types.TypedPackage, error) {
	ix, err := o.index(ctx, prog)
	if err != nil {
		return nil, err
	}
	tp, err := ix.packageOf(unitID)
	if err != nil {
		return nil, err
	}
	return &tp.TypedPackage, nil
}

// TypeOf returns the type and mode of expr. A zero TypeAndValue means the
// type checker could not resolve the expression.
func (o *Oracle) TypeOf(ctx context.Context, prog *types.Program, unitID string, expr ast.Expr) (gotypes.TypeAndValue, error) {
	ix, err := o.index(ctx, prog)
	if err != nil {
		return gotypes.TypeAndValue{}, err
	}
	tp, err := ix.packageOf(unitID)
	if err != nil {
		return gotypes.TypeAndValue{}, err
	}
	return tp.Info.Types[expr], nil
}

// EnclosingSymbol returns the routine declared by the function declaration
// containing pos, with Enclosing set to the receiver's base type for
// methods. It returns nil when pos is at package scope.
func (o *Oracle) EnclosingSymbol(ctx context.Context, prog *types.Program, unitID string, pos token.Pos) (*types.Symbol, error) {
	ix, err := o.index(ctx, prog)
	if err != nil {
		return nil, err
	}
	tp, err := ix.packageOf(unitID)
	if err != nil {
		return nil, err
	}
	u := prog.Unit(unitID)
	for _, decl := range u.AST.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || pos < fd.Pos() || pos >= fd.End() {
			continue
		}
		obj := tp.Info.Defs[fd.Name]
		if obj == nil {
			return nil, (&types.RefactorError{
				Type:    types.ResolutionError,
				Message: fmt.Sprintf("cannot resolve %s", fd.Name.Name),
			}).Located(u, u.Offset(fd.Name.Pos()))
		}
		return ix.symbolOf(obj), nil
	}
	return nil, nil
}

// DeclaredSymbol returns the symbol declared by a function declaration,
// type spec or defining identifier.
func (o *Oracle) DeclaredSymbol(ctx context.Context, prog *types.Program, unitID string, decl ast.Node) (*types.Symbol, error) {
	ix, err := o.index(ctx, prog)
	if err != nil {
		return nil, err
	}
	tp, err := ix.packageOf(unitID)
	if err != nil {
		return nil, err
	}

	var name *ast.Ident
	switch d := decl.(type) {
	case *ast.FuncDecl:
		name = d.Name
	case *ast.TypeSpec:
		name = d.Name
	case *ast.Ident:
		name = d
	default:
		return nil, &types.RefactorError{
			Type:    types.InvalidOperation,
			Message: fmt.Sprintf("%T does not declare a symbol", decl),
		}
	}
	obj := tp.Info.Defs[name]
	if obj == nil {
		return nil, &types.RefactorError{
			Type:    types.SymbolNotFound,
			Message: fmt.Sprintf("no symbol declared by %s", name.Name),
		}
	}
	return ix.symbolOf(obj), nil
}

// FindCallers returns every reference to routine across the program,
// sorted by unit and position. Calls are reported as CallSite references
// covering the call expression; any other use is a ValueReference.
// Packages are searched concurrently.
func (o *Oracle) FindCallers(ctx context.Context, prog *types.Program, routine *types.Symbol) ([]types.CallReference, error) {
	if routine == nil || routine.Object == nil {
		return nil, &types.RefactorError{Type: types.ResolutionError, Message: "routine is not resolved"}
	}
	ix, err := o.index(ctx, prog)
	if err != nil {
		return nil, err
	}
	callee := canonicalObject(routine.Object)

	results := make([][]types.CallReference, len(ix.packages))
	err = o.eachPackage(ctx, ix, func(ctx context.Context, i int, tp *typedPackage) error {
		refs := tp.refs()
		for cur := range refs.Uses(callee) {
			if err := ctx.Err(); err != nil {
				return err
			}
			ref := types.CallReference{Kind: types.ValueReference}
			node := cur.Node()
			if call, ok := refs.callOf(cur, callee); ok {
				ref.Kind = types.CallSite
				node = call.Node()
			} else if kind, _ := cur.ParentEdge(); kind == edge.SelectorExpr_Sel {
				node = cur.Parent().Node()
			}
			u := prog.UnitFor(node.Pos())
			if u == nil {
				continue
			}
			ref.Unit = u.ID
			ref.Span = u.SpanOf(node)
			ref.Caller = ix.callerOf(tp, cur)
			results[i] = append(results[i], ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var refs []types.CallReference
	for _, r := range results {
		refs = append(refs, r...)
	}
	slices.SortFunc(refs, func(a, b types.CallReference) int {
		return cmp.Or(cmp.Compare(a.Unit, b.Unit), cmp.Compare(a.Span.Start, b.Span.Start))
	})
	o.logger.Debug("callers found", "routine", routine.QualifiedName(), "count", len(refs))
	return refs, nil
}

// CompositeLiterals returns every composite literal of owner's type across
// the program, including literals of its generic instantiations and literals
// whose type is elided inside an enclosing literal.
func (o *Oracle) CompositeLiterals(ctx context.Context, prog *types.Program, owner *types.Symbol) ([]types.LiteralReference, error) {
	return o.typeSites(ctx, prog, owner, (*packageIndex).CompositeLits)
}

// ZeroValues returns the new(T) calls and uninitialized var declarations of
// owner's type across the program.
func (o *Oracle) ZeroValues(ctx context.Context, prog *types.Program, owner *types.Symbol) ([]types.LiteralReference, error) {
	return o.typeSites(ctx, prog, owner, (*packageIndex).ZeroValues)
}

func (o *Oracle) typeSites(ctx context.Context, prog *types.Program, owner *types.Symbol, sites func(*packageIndex, *gotypes.TypeName) iter.Seq[inspector.Cursor]) ([]types.LiteralReference, error) {
	tn, ok := symbolObject[*gotypes.TypeName](owner)
	if !ok {
		return nil, &types.RefactorError{Type: types.ResolutionError, Message: "owner is not a resolved type"}
	}
	ix, err := o.index(ctx, prog)
	if err != nil {
		return nil, err
	}

	results := make([][]types.LiteralReference, len(ix.packages))
	err = o.eachPackage(ctx, ix, func(ctx context.Context, i int, tp *typedPackage) error {
		for cur := range sites(tp.refs(), tn) {
			node := cur.Node()
			u := prog.UnitFor(node.Pos())
			if u == nil {
				continue
			}
			results[i] = append(results[i], types.LiteralReference{
				Unit:    u.ID,
				Span:    u.SpanOf(node),
				Package: tp.ImportPath,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var refs []types.LiteralReference
	for _, r := range results {
		refs = append(refs, r...)
	}
	return refs, nil
}

// SatisfiedInterfaces returns the package-level interfaces of the program
// that declare a method named like method and are implemented by its
// receiver type. Changing the method's signature would break them.
func (o *Oracle) SatisfiedInterfaces(ctx context.Context, prog *types.Program, method *types.Symbol) ([]*types.Symbol, error) {
	fn, ok := symbolObject[*gotypes.Func](method)
	if !ok {
		return nil, &types.RefactorError{Type: types.ResolutionError, Message: "routine is not resolved"}
	}
	recv := fn.Signature().Recv()
	if recv == nil {
		return nil, nil
	}
	named := receiverNamed(recv.Type())
	if named == nil {
		return nil, nil
	}
	ix, err := o.index(ctx, prog)
	if err != nil {
		return nil, err
	}

	var ifaces []*types.Symbol
	for _, tp := range ix.packages {
		scope := tp.Types.Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*gotypes.TypeName)
			if !ok || tn.IsAlias() {
				continue
			}
			iface, ok := tn.Type().Underlying().(*gotypes.Interface)
			if !ok || !declaresMethod(iface, fn) {
				continue
			}
			if satisfies(named, iface, tn) {
				ifaces = append(ifaces, ix.symbolOf(tn))
			}
		}
	}
	return ifaces, nil
}

// ParseExpr parses a replacement expression.
func (o *Oracle) ParseExpr(text string) (ast.Expr, error) {
	expr, err := parser.ParseExpr(text)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.ParseError,
			Message: fmt.Sprintf("invalid expression %q: %v", text, err),
			Cause:   err,
		}
	}
	return expr, nil
}

// eachPackage runs fn for every package of ix with bounded concurrency.
func (o *Oracle) eachPackage(ctx context.Context, ix *programIndex, fn func(ctx context.Context, i int, tp *typedPackage) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, tp := range ix.packages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i, tp)
		})
	}
	if err := g.Wait(); err != nil {
		return types.ContextError(err)
	}
	return nil
}

func declaresMethod(iface *gotypes.Interface, fn *gotypes.Func) bool {
	for m := range iface.Methods() {
		if m.Name() == fn.Name() {
			return true
		}
	}
	return false
}

// satisfies reports whether named or *named implements iface. Generic types
// and interfaces cannot be checked without instantiation; for them any
// method with the same name and arity counts.
func satisfies(named *gotypes.Named, iface *gotypes.Interface, ifaceName *gotypes.TypeName) bool {
	generic := named.TypeParams().Len() > 0
	if n, ok := ifaceName.Type().(*gotypes.Named); ok && n.TypeParams().Len() > 0 {
		generic = true
	}
	if !generic {
		return gotypes.Implements(named, iface) || gotypes.Implements(gotypes.NewPointer(named), iface)
	}
	for m := range iface.Methods() {
		obj, _, _ := gotypes.LookupFieldOrMethod(gotypes.NewPointer(named), false, m.Pkg(), m.Name())
		fn, ok := obj.(*gotypes.Func)
		if !ok || fn.Signature().Params().Len() != m.Signature().Params().Len() {
			return false
		}
	}
	return true
}

// receiverNamed returns the named type of a method receiver (T or *T).
func receiverNamed(t gotypes.Type) *gotypes.Named {
	t = gotypes.Unalias(t)
	if p, ok := t.(*gotypes.Pointer); ok {
		t = gotypes.Unalias(p.Elem())
	}
	n, _ := t.(*gotypes.Named)
	return n
}

func symbolObject[T gotypes.Object](sym *types.Symbol) (T, bool) {
	var zero T
	if sym == nil || sym.Object == nil {
		return zero, false
	}
	obj, ok := sym.Object.(T)
	return obj, ok
}

// symbolOf converts a go/types object into a Symbol of this snapshot.
func (ix *programIndex) symbolOf(obj gotypes.Object) *types.Symbol {
	sym := &types.Symbol{
		Name:   obj.Name(),
		Object: obj,
		Type:   gotypes.TypeString(obj.Type(), gotypes.RelativeTo(obj.Pkg())),
	}
	if obj.Exported() {
		sym.Accessibility = types.Public
	}
	if obj.Pkg() != nil {
		sym.Package = obj.Pkg().Path()
	}

	var def inspector.Cursor
	hasDef := false
	if tp := ix.packageOfObject(obj); tp != nil {
		def, hasDef = tp.refs().Def(canonicalObject(obj))
	}

	switch o := obj.(type) {
	case *gotypes.TypeName:
		sym.Kind = types.TypeSymbol
	case *gotypes.Func:
		sym.Kind = types.RoutineSymbol
		if recv := o.Signature().Recv(); recv != nil {
			if named := receiverNamed(recv.Type()); named != nil {
				sym.Enclosing = ix.symbolOf(named.Origin().Obj())
			}
		}
	case *gotypes.Var:
		switch {
		case o.IsField():
			sym.Kind = types.FieldSymbol
		case hasDef && isParameter(def):
			sym.Kind = types.ParameterSymbol
		default:
			sym.Kind = types.VariableSymbol
		}
	default:
		sym.Kind = types.VariableSymbol
	}

	if u := ix.prog.UnitFor(obj.Pos()); u != nil {
		start := u.Offset(obj.Pos())
		sym.Unit = u.ID
		sym.Span = types.Span{Start: start, End: start + len(obj.Name())}
		sym.DeclSpan = sym.Span
		if hasDef {
			for c := range def.Enclosing((*ast.FuncDecl)(nil), (*ast.TypeSpec)(nil), (*ast.Field)(nil), (*ast.ValueSpec)(nil)) {
				sym.DeclSpan = u.SpanOf(c.Node())
				break
			}
		}
	}
	return sym
}

// callerOf returns the routine whose declaration contains cur, or nil at
// package scope.
func (ix *programIndex) callerOf(tp *typedPackage, cur inspector.Cursor) *types.Symbol {
	for c := range cur.Enclosing((*ast.FuncDecl)(nil)) {
		fd := c.Node().(*ast.FuncDecl)
		if obj := tp.Info.Defs[fd.Name]; obj != nil {
			return ix.symbolOf(obj)
		}
	}
	return nil
}

func isParameter(def inspector.Cursor) bool {
	field := def.Parent()
	if _, ok := field.Node().(*ast.Field); !ok {
		return false
	}
	list := field.Parent()
	if _, ok := list.Node().(*ast.FieldList); !ok {
		return false
	}
	switch list.Parent().Node().(type) {
	case *ast.FuncType, *ast.FuncDecl:
		return true
	}
	return false
}
