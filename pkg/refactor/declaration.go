package refactor

import (
	"fmt"
	"go/ast"
	gotypes "go/types"
	"sort"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// FieldDeclaration describes a struct field to add to Owner. Go fields have
// no initializer; Initializer is written into the owner's composite
// literals instead.
type FieldDeclaration struct {
	Name          string
	Type          gotypes.Type // nil when Degraded
	Initializer   ast.Expr
	Accessibility pkgtypes.Accessibility
	Owner         *pkgtypes.Symbol
	Degraded      bool
}

// ParameterDeclaration describes a parameter to append to Routine. Argument
// is the extracted expression, passed at every call site.
type ParameterDeclaration struct {
	Name     string
	Type     gotypes.Type // nil when Degraded
	Argument ast.Expr
	Routine  *pkgtypes.Symbol
	Degraded bool
}

// BuildField builds the declaration of a field of owner holding expr. typ is
// the type of expr in the original snapshot. An unresolved type yields a
// Degraded declaration of type any rather than an error.
func BuildField(name string, expr ast.Expr, typ gotypes.Type, accessibility pkgtypes.Accessibility, owner *pkgtypes.Symbol) (*FieldDeclaration, error) {
	if owner == nil || owner.Object == nil {
		return nil, &pkgtypes.RefactorError{
			Type:    pkgtypes.ResolutionError,
			Message: "cannot declare a field without a resolved owner type",
		}
	}
	typ, degraded, err := declarationType(typ)
	if err != nil {
		return nil, err
	}
	if typ != nil {
		if named, ok := gotypes.Unalias(typ).(*gotypes.Named); ok && named.Origin().Obj() == owner.Object {
			return nil, &pkgtypes.RefactorError{
				Type:    pkgtypes.InvalidOperation,
				Message: fmt.Sprintf("a field of type %s cannot be added to %s itself", owner.Name, owner.Name),
			}
		}
		if mentionsTypeParam(typ) {
			return nil, &pkgtypes.RefactorError{
				Type:    pkgtypes.InvalidOperation,
				Message: "the expression's type depends on type parameters",
			}
		}
	}
	return &FieldDeclaration{
		Name:          name,
		Type:          typ,
		Initializer:   expr,
		Accessibility: accessibility,
		Owner:         owner,
		Degraded:      degraded,
	}, nil
}

// BuildParameter builds the declaration of a parameter of routine receiving
// expr. Unresolved types are handled as in BuildField.
func BuildParameter(name string, expr ast.Expr, typ gotypes.Type, routine *pkgtypes.Symbol) (*ParameterDeclaration, error) {
	if routine == nil || routine.Object == nil {
		return nil, &pkgtypes.RefactorError{
			Type:    pkgtypes.ResolutionError,
			Message: "cannot declare a parameter without a resolved routine",
		}
	}
	typ, degraded, err := declarationType(typ)
	if err != nil {
		return nil, err
	}
	return &ParameterDeclaration{
		Name:     name,
		Type:     typ,
		Argument: expr,
		Routine:  routine,
		Degraded: degraded,
	}, nil
}

// declarationType maps an expression type to the type to declare: untyped
// constants take their default type, unresolved types and untyped nil
// degrade to nil.
func declarationType(typ gotypes.Type) (gotypes.Type, bool, error) {
	if typ == nil {
		return nil, true, nil
	}
	switch t := typ.(type) {
	case *gotypes.Tuple:
		return nil, false, &pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("expression has %d values", t.Len()),
		}
	case *gotypes.Basic:
		switch {
		case t.Kind() == gotypes.Invalid, t.Kind() == gotypes.UntypedNil:
			return nil, true, nil
		case t.Info()&gotypes.IsUntyped != 0:
			return gotypes.Default(t), false, nil
		}
	}
	if !wellFormed(typ) {
		return nil, true, nil
	}
	return typ, false, nil
}

// wellFormed reports whether typ contains no invalid component.
func wellFormed(typ gotypes.Type) bool {
	ok := true
	walkType(typ, func(t gotypes.Type) {
		if b, isBasic := t.(*gotypes.Basic); isBasic && b.Kind() == gotypes.Invalid {
			ok = false
		}
	})
	return ok
}

func mentionsTypeParam(typ gotypes.Type) bool {
	found := false
	walkType(typ, func(t gotypes.Type) {
		if _, ok := t.(*gotypes.TypeParam); ok {
			found = true
		}
	})
	return found
}

// walkType calls fn for typ and every type it is composed of. Named types
// are not expanded beyond their type arguments.
func walkType(typ gotypes.Type, fn func(gotypes.Type)) {
	seen := make(map[gotypes.Type]bool)
	var walk func(gotypes.Type)
	walk = func(t gotypes.Type) {
		if t == nil || seen[t] {
			return
		}
		seen[t] = true
		fn(t)
		switch t := t.(type) {
		case *gotypes.Alias:
			walk(gotypes.Unalias(t))
		case *gotypes.Named:
			for a := range t.TypeArgs().Types() {
				walk(a)
			}
		case *gotypes.Pointer:
			walk(t.Elem())
		case *gotypes.Slice:
			walk(t.Elem())
		case *gotypes.Array:
			walk(t.Elem())
		case *gotypes.Chan:
			walk(t.Elem())
		case *gotypes.Map:
			walk(t.Key())
			walk(t.Elem())
		case *gotypes.Signature:
			walk(t.Params())
			walk(t.Results())
		case *gotypes.Tuple:
			for v := range t.Variables() {
				walk(v.Type())
			}
		case *gotypes.Struct:
			for f := range t.Fields() {
				walk(f.Type())
			}
		}
	}
	walk(typ)
}

// importSpec is an import a rewritten unit needs.
type importSpec struct {
	path string
	name string
}

// typeText renders typ for use in a file of package from whose imports are
// given as path -> local name. Packages the file does not import yet are
// qualified by their own name and returned as needed imports. A nil type
// renders as any.
func typeText(typ gotypes.Type, from *gotypes.Package, imports map[string]string) (string, []importSpec) {
	if typ == nil {
		return "any", nil
	}
	needed := make(map[string]string)
	qualifier := func(p *gotypes.Package) string {
		if p == from || (from != nil && p.Path() == from.Path()) {
			return ""
		}
		if name, ok := imports[p.Path()]; ok {
			if name == "." {
				return ""
			}
			return name
		}
		needed[p.Path()] = p.Name()
		return p.Name()
	}
	text := gotypes.TypeString(typ, qualifier)
	return text, sortedImports(needed)
}

func sortedImports(m map[string]string) []importSpec {
	specs := make([]importSpec, 0, len(m))
	for p, n := range m {
		specs = append(specs, importSpec{path: p, name: n})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].path < specs[j].path })
	return specs
}
