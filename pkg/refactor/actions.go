package refactor

import (
	"context"
	"fmt"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// Action is an offered extraction bound to the snapshot it was offered
// for. Constructing an action edits nothing; Invoke does.
type Action struct {
	kind   pkgtypes.ActionKind
	engine *DefaultEngine
	prog   *pkgtypes.Program
	req    pkgtypes.ExtractRequest
	expr   string
}

var _ pkgtypes.Operation = (*Action)(nil)

func (e *DefaultEngine) newAction(kind pkgtypes.ActionKind, prog *pkgtypes.Program, req pkgtypes.ExtractRequest, expr string) *Action {
	return &Action{kind: kind, engine: e, prog: prog, req: req, expr: expr}
}

func (a *Action) Kind() pkgtypes.ActionKind { return a.kind }

// Title is the user-visible name, "Extract field" or "Extract parameter".
func (a *Action) Title() string { return a.kind.Title() }

// Request returns the resolved request the action runs.
func (a *Action) Request() pkgtypes.ExtractRequest { return a.req }

func (a *Action) Description() string {
	return fmt.Sprintf("%s from %q", a.kind.Title(), a.expr)
}

// Validate plans the extraction against prog without applying it.
func (a *Action) Validate(ctx context.Context, prog *pkgtypes.Program) error {
	var err error
	switch a.kind {
	case pkgtypes.ExtractFieldAction:
		_, err = a.engine.planField(ctx, prog, a.req)
	case pkgtypes.ExtractParameterAction:
		_, err = a.engine.planParameter(ctx, prog, a.req)
	default:
		err = &pkgtypes.RefactorError{Type: pkgtypes.InvalidOperation, Message: fmt.Sprintf("unknown action %s", a.kind)}
	}
	return err
}

// Execute runs the extraction against prog.
func (a *Action) Execute(ctx context.Context, prog *pkgtypes.Program) (*pkgtypes.Result, error) {
	switch a.kind {
	case pkgtypes.ExtractFieldAction:
		return a.engine.ExtractField(ctx, prog, a.req)
	case pkgtypes.ExtractParameterAction:
		return a.engine.ExtractParameter(ctx, prog, a.req)
	}
	return nil, &pkgtypes.RefactorError{Type: pkgtypes.InvalidOperation, Message: fmt.Sprintf("unknown action %s", a.kind)}
}

// Invoke runs the extraction on the snapshot the action was offered for.
func (a *Action) Invoke(ctx context.Context) (*pkgtypes.Result, error) {
	return a.Execute(ctx, a.prog)
}
