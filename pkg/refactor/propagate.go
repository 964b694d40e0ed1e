package refactor

import (
	"cmp"
	"context"
	"fmt"
	"go/ast"
	"slices"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// FindCallers returns the call sites of routine, sorted by unit and
// position. References that cannot gain an argument fail the query with a
// PropagationGap listing them: function and method values, and interfaces
// in the program the method helps satisfy.
func FindCallers(ctx context.Context, oracle Oracle, prog *pkgtypes.Program, routine *pkgtypes.Symbol) ([]pkgtypes.CallReference, error) {
	refs, err := oracle.FindCallers(ctx, prog, routine)
	if err != nil {
		return nil, err
	}

	var (
		calls []pkgtypes.CallReference
		gaps  []string
	)
	for _, ref := range refs {
		if ref.Kind != pkgtypes.CallSite {
			gaps = append(gaps, siteString(prog, ref.Unit, ref.Span)+": "+routine.Name+" used as a value")
			continue
		}
		calls = append(calls, ref)
	}
	if routine.Enclosing != nil {
		ifaces, err := oracle.SatisfiedInterfaces(ctx, prog, routine)
		if err != nil {
			return nil, err
		}
		for _, iface := range ifaces {
			gaps = append(gaps, fmt.Sprintf("%s: %s implements %s.%s", siteString(prog, iface.Unit, iface.Span), routine.Enclosing.Name, iface.Name, routine.Name))
		}
	}
	if len(gaps) > 0 {
		return nil, &pkgtypes.RefactorError{
			Type:    pkgtypes.PropagationGap,
			Message: fmt.Sprintf("cannot update every reference to %s", routine.QualifiedName()),
			Sites:   gaps,
		}
	}
	return calls, nil
}

// ArgumentFunc renders the argument to add to the call of ref. call is the
// call's node in u, the unit in the snapshot being edited.
type ArgumentFunc func(ref pkgtypes.CallReference, u *pkgtypes.SourceUnit, call *ast.CallExpr) (string, error)

// Propagate adds one trailing argument to every call in callers. Calls are
// located in the current snapshot through their original spans; nested
// calls are updated before the calls containing them so that copied
// argument text is already up to date. Without callers prog is returned
// unchanged.
func Propagate(ctx context.Context, prog *pkgtypes.Program, callers []pkgtypes.CallReference, argument ArgumentFunc) (*pkgtypes.Program, []pkgtypes.Change, error) {
	if len(callers) == 0 {
		return prog, nil, nil
	}
	return runSteps(ctx, prog, propagationSteps(callers, argument), nil)
}

func propagationSteps(callers []pkgtypes.CallReference, argument ArgumentFunc) []step {
	ordered := slices.Clone(callers)
	slices.SortStableFunc(ordered, func(a, b pkgtypes.CallReference) int {
		return cmp.Or(cmp.Compare(a.Unit, b.Unit), cmp.Compare(a.Span.End, b.Span.End))
	})

	steps := make([]step, 0, len(ordered))
	for _, ref := range ordered {
		steps = append(steps, step{
			description: "Update call " + ref.String(),
			apply: func(cur *pkgtypes.Program, tr *tracker) (*pkgtypes.Program, []pkgtypes.Change, error) {
				call, u, err := locateCall(cur, tr, ref)
				if err != nil {
					return nil, nil, err
				}
				arg, err := argument(ref, u, call)
				if err != nil {
					return nil, nil, (&pkgtypes.RefactorError{
						Type:    pkgtypes.PropagationGap,
						Message: fmt.Sprintf("cannot pass the argument at %s: %v", ref, err),
						Sites:   []string{ref.String()},
						Cause:   err,
					}).Located(u, u.Offset(call.Pos()))
				}
				next, change, err := AddArgument(cur, ref.Unit, call, arg)
				if err != nil {
					return nil, nil, err
				}
				return next, []pkgtypes.Change{change}, nil
			},
		})
	}
	return steps
}

// locateCall finds the call expression of ref in the current snapshot.
func locateCall(cur *pkgtypes.Program, tr *tracker, ref pkgtypes.CallReference) (*ast.CallExpr, *pkgtypes.SourceUnit, error) {
	gap := func(reason string) error {
		return &pkgtypes.RefactorError{
			Type:    pkgtypes.PropagationGap,
			Message: fmt.Sprintf("call %s %s", ref, reason),
			Sites:   []string{ref.String()},
		}
	}
	u := cur.Unit(ref.Unit)
	if u == nil {
		return nil, nil, gap("is in a unit that no longer exists")
	}
	span, err := tr.Map(ref.Unit, ref.Span)
	if err != nil {
		return nil, nil, gap("was rewritten")
	}
	call, ok := findNode[*ast.CallExpr](u, span)
	if !ok {
		return nil, nil, gap("cannot be found in the current snapshot")
	}
	return call, u, nil
}

// siteString renders a unit span as file:line:col.
func siteString(prog *pkgtypes.Program, unit string, span pkgtypes.Span) string {
	u := prog.Unit(unit)
	if u == nil || span.Start > len(u.Text) {
		return unit + span.String()
	}
	pos := u.Position(span.Start)
	return fmt.Sprintf("%s:%d:%d", unit, pos.Line, pos.Column)
}
