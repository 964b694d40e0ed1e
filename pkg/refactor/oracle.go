package refactor

import (
	"context"
	"go/ast"
	"go/token"
	gotypes "go/types"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// Oracle is the semantic collaborator of the engine. Every query is a read
// of the given snapshot; answers for one snapshot are never valid for
// another. analysis.Oracle is the go/types backed implementation.
type Oracle interface {
	// TypeOf returns the type and mode of expr; a zero value means the
	// expression could not be resolved.
	TypeOf(ctx context.Context, prog *pkgtypes.Program, unitID string, expr ast.Expr) (gotypes.TypeAndValue, error)
	// EnclosingSymbol returns the routine declared around pos, nil at
	// package scope. Methods carry their receiver type in Enclosing.
	EnclosingSymbol(ctx context.Context, prog *pkgtypes.Program, unitID string, pos token.Pos) (*pkgtypes.Symbol, error)
	// DeclaredSymbol returns the symbol a declaration node introduces.
	DeclaredSymbol(ctx context.Context, prog *pkgtypes.Program, unitID string, decl ast.Node) (*pkgtypes.Symbol, error)
	// FindCallers returns all references to routine, calls and values.
	FindCallers(ctx context.Context, prog *pkgtypes.Program, routine *pkgtypes.Symbol) ([]pkgtypes.CallReference, error)
	// CompositeLiterals returns every composite literal of owner's type.
	CompositeLiterals(ctx context.Context, prog *pkgtypes.Program, owner *pkgtypes.Symbol) ([]pkgtypes.LiteralReference, error)
	// ZeroValues returns the new calls and uninitialized var declarations
	// of owner's type.
	ZeroValues(ctx context.Context, prog *pkgtypes.Program, owner *pkgtypes.Symbol) ([]pkgtypes.LiteralReference, error)
	// SatisfiedInterfaces returns program interfaces method helps satisfy.
	SatisfiedInterfaces(ctx context.Context, prog *pkgtypes.Program, method *pkgtypes.Symbol) ([]*pkgtypes.Symbol, error)
	// Package returns the type-checked package of a unit.
	Package(ctx context.Context, prog *pkgtypes.Program, unitID string) (*pkgtypes.TypedPackage, error)
	ParseExpr(text string) (ast.Expr, error)
}
