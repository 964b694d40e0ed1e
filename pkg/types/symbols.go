package types

import (
	"fmt"
	"go/ast"
	gotypes "go/types"
)

// Symbol is a resolved semantic entity. Symbols are derived from a program
// snapshot on each request and are never cached across snapshots.
type Symbol struct {
	Name          string
	Kind          SymbolKind
	Package       string // import path
	Unit          string // unit declaring the symbol
	Span          Span   // declaring identifier
	DeclSpan      Span   // whole declaration
	Type          string
	Accessibility Accessibility
	Enclosing     *Symbol // back-reference to the enclosing type, if any

	Object gotypes.Object `json:"-"`
}

type SymbolKind int

const (
	TypeSymbol SymbolKind = iota
	RoutineSymbol
	FieldSymbol
	ParameterSymbol
	VariableSymbol
)

// String returns the string representation of a SymbolKind
func (k SymbolKind) String() string {
	switch k {
	case TypeSymbol:
		return "Type"
	case RoutineSymbol:
		return "Routine"
	case FieldSymbol:
		return "Field"
	case ParameterSymbol:
		return "Parameter"
	case VariableSymbol:
		return "Variable"
	default:
		return "Unknown"
	}
}

// QualifiedName returns Type.Name for symbols with an enclosing type.
func (s *Symbol) QualifiedName() string {
	if s.Enclosing != nil {
		return s.Enclosing.Name + "." + s.Name
	}
	return s.Name
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.QualifiedName())
}

// Accessibility of a declared member. In Go this is the export status of
// the identifier.
type Accessibility int

const (
	Private Accessibility = iota
	Public
)

func (a Accessibility) String() string {
	if a == Public {
		return "public"
	}
	return "private"
}

// ParseAccessibility accepts private/unexported and public/exported.
func ParseAccessibility(s string) (Accessibility, error) {
	switch s {
	case "", "private", "unexported":
		return Private, nil
	case "public", "exported":
		return Public, nil
	}
	return Private, fmt.Errorf("unknown accessibility %q", s)
}

// CallReference is one reference to a routine: the routine containing it
// (nil at package scope) and its span. For calls the span covers the call
// expression; a ValueReference (function or method value) covers the
// referring expression.
type CallReference struct {
	Caller *Symbol
	Unit   string
	Span   Span
	Kind   ReferenceKind
}

type ReferenceKind int

const (
	CallSite ReferenceKind = iota
	ValueReference
)

func (r CallReference) String() string {
	s := r.Unit + r.Span.String()
	if r.Caller != nil {
		s += " in " + r.Caller.QualifiedName()
	}
	if r.Kind == ValueReference {
		s += " (value)"
	}
	return s
}

// TypedPackage is the type-checked form of one Package in a snapshot.
type TypedPackage struct {
	*Package
	Types *gotypes.Package
	Info  *gotypes.Info
	Files []*ast.File // parallel to Package.Units

	Errors []gotypes.Error // type errors reported while checking
}

// LiteralReference is a place a value of a struct type is created: a
// composite literal, a new call or an uninitialized var declaration.
type LiteralReference struct {
	Unit    string
	Span    Span
	Package string // import path of the package containing the literal
}
