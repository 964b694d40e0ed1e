package analysis

import (
	"go/ast"
	gotypes "go/types"
	"iter"

	"golang.org/x/tools/go/ast/edge"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

// packageIndex is a per-package index of symbol definitions and uses, built
// from a single inspector pass over the package's files. Uses are stored as
// cursor indices.
type packageIndex struct {
	inspect *inspector.Inspector
	info    *gotypes.Info
	pkg     *gotypes.Package
	def     map[gotypes.Object]inspector.Cursor
	uses    map[gotypes.Object][]int32
	lits    []inspector.Cursor // every composite literal, in file order
}

func newPackageIndex(inspect *inspector.Inspector, pkg *gotypes.Package, info *gotypes.Info) *packageIndex {
	ix := &packageIndex{
		inspect: inspect,
		info:    info,
		pkg:     pkg,
		def:     make(map[gotypes.Object]inspector.Cursor),
		uses:    make(map[gotypes.Object][]int32),
	}

	for cur := range inspect.Root().Preorder((*ast.ImportSpec)(nil), (*ast.Ident)(nil), (*ast.CompositeLit)(nil)) {
		switch n := cur.Node().(type) {
		case *ast.CompositeLit:
			ix.lits = append(ix.lits, cur)
		case *ast.Ident:
			if obj, ok := info.Defs[n]; ok && obj != nil {
				ix.def[canonicalObject(obj)] = cur
				continue
			}
			if obj, ok := info.Uses[n]; ok && obj != nil {
				obj = canonicalObject(obj)
				ix.uses[obj] = append(ix.uses[obj], cur.Index())
			}
		}
	}

	return ix
}

// Uses returns an iterator over all identifiers referring to obj in this
// package.
func (ix *packageIndex) Uses(obj gotypes.Object) iter.Seq[inspector.Cursor] {
	return func(yield func(inspector.Cursor) bool) {
		for _, idx := range ix.uses[obj] {
			if !yield(ix.inspect.At(idx)) {
				return
			}
		}
	}
}

// Def returns the cursor for the definition of obj in this package, if any.
func (ix *packageIndex) Def(obj gotypes.Object) (inspector.Cursor, bool) {
	cur, ok := ix.def[obj]
	return cur, ok
}

// CompositeLits returns the composite literals whose type is an instance of
// named.
func (ix *packageIndex) CompositeLits(named *gotypes.TypeName) iter.Seq[inspector.Cursor] {
	return func(yield func(inspector.Cursor) bool) {
		for _, cur := range ix.lits {
			t := ix.info.TypeOf(cur.Node().(*ast.CompositeLit))
			if t == nil {
				continue
			}
			if n, ok := gotypes.Unalias(t).(*gotypes.Named); ok && n.Origin().Obj() == named {
				if !yield(cur) {
					return
				}
			}
		}
	}
}

// ZeroValues returns the places that create a value of named without a
// composite literal: new(T) calls and var declarations of type T without
// initializers. Pointers, receivers and parameters are not creations.
func (ix *packageIndex) ZeroValues(named *gotypes.TypeName) iter.Seq[inspector.Cursor] {
	return func(yield func(inspector.Cursor) bool) {
		for cur := range ix.Uses(named) {
			typ := cur
			for {
				kind, _ := typ.ParentEdge()
				if kind != edge.SelectorExpr_Sel && kind != edge.IndexExpr_X && kind != edge.IndexListExpr_X {
					break
				}
				typ = typ.Parent()
			}
			kind, idx := typ.ParentEdge()
			parent := typ.Parent()
			switch kind {
			case edge.CallExpr_Args:
				call := parent.Node().(*ast.CallExpr)
				if idx != 0 || !ix.isBuiltin(call.Fun, "new") {
					continue
				}
			case edge.ValueSpec_Type:
				if len(parent.Node().(*ast.ValueSpec).Values) > 0 {
					continue
				}
			default:
				continue
			}
			if !yield(parent) {
				return
			}
		}
	}
}

func (ix *packageIndex) isBuiltin(fun ast.Expr, name string) bool {
	id, ok := ast.Unparen(fun).(*ast.Ident)
	if !ok {
		return false
	}
	b, ok := ix.info.Uses[id].(*gotypes.Builtin)
	return ok && b.Name() == name
}

// callOf reports the call expression that invokes callee through the use
// at cur: f(), x.f(), T.f(x), pkg.f(), f[T]() and parenthesized forms. It
// returns false when the use is not in call position (a function or method
// value).
func (ix *packageIndex) callOf(cur inspector.Cursor, callee gotypes.Object) (inspector.Cursor, bool) {
	fun := cur
	for {
		parent := fun.Parent()
		if parent.Node() == nil {
			return inspector.Cursor{}, false
		}
		kind, _ := fun.ParentEdge()
		switch kind {
		case edge.SelectorExpr_Sel, edge.ParenExpr_X, edge.IndexExpr_X, edge.IndexListExpr_X:
			fun = parent
			continue
		case edge.CallExpr_Fun:
			call := parent.Node().(*ast.CallExpr)
			if canonicalObject(typeutil.Callee(ix.info, call)) != callee {
				return inspector.Cursor{}, false
			}
			return parent, true
		}
		return inspector.Cursor{}, false
	}
}

// canonicalObject returns the canonical (origin) form of a types.Object,
// so that uses through generic instantiations map to their declaration.
func canonicalObject(obj gotypes.Object) gotypes.Object {
	switch o := obj.(type) {
	case *gotypes.Func:
		if orig := o.Origin(); orig != o {
			return orig
		}
	case *gotypes.Var:
		if o.IsField() {
			if orig := o.Origin(); orig != o {
				return orig
			}
		}
	}
	return obj
}

// isPackageLevel reports whether obj is a package-level symbol.
func isPackageLevel(obj gotypes.Object) bool {
	return obj.Pkg() != nil && obj.Parent() == obj.Pkg().Scope()
}
