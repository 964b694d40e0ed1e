package refactor

import (
	"context"
	"fmt"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// Step reports the progress of a refactoring to an observer. It is
// delivered before the step is applied.
type Step struct {
	Index       int // 1-based
	Total       int
	Description string
}

func (s Step) String() string {
	return fmt.Sprintf("[%d/%d] %s", s.Index, s.Total, s.Description)
}

// step is one edit of a pipeline. apply receives the current snapshot and
// the tracker mapping original spans onto it.
type step struct {
	description string
	apply       func(cur *pkgtypes.Program, tr *tracker) (*pkgtypes.Program, []pkgtypes.Change, error)
}

// runSteps applies steps in order. The context is checked before every
// step; on cancellation or failure the original program is returned
// together with the error and every intermediate snapshot is dropped.
func runSteps(ctx context.Context, prog *pkgtypes.Program, steps []step, observe func(Step)) (*pkgtypes.Program, []pkgtypes.Change, error) {
	tr := newTracker()
	cur := prog
	var changes []pkgtypes.Change
	for i, s := range steps {
		if observe != nil {
			observe(Step{Index: i + 1, Total: len(steps), Description: s.description})
		}
		if err := ctx.Err(); err != nil {
			return prog, nil, pkgtypes.ContextError(err)
		}
		next, applied, err := s.apply(cur, tr)
		if err != nil {
			return prog, nil, err
		}
		for _, c := range applied {
			if c.Description == "" {
				c.Description = s.description
			}
			tr.record(c)
			changes = append(changes, c)
		}
		cur = next
	}
	return cur, changes, nil
}

// tracker maps spans of the original snapshot onto the current one by
// replaying the changes applied so far.
type tracker struct {
	changes map[string][]pkgtypes.Change
}

func newTracker() *tracker {
	return &tracker{changes: make(map[string][]pkgtypes.Change)}
}

func (t *tracker) record(c pkgtypes.Change) {
	t.changes[c.Unit] = append(t.changes[c.Unit], c)
}

// Map returns the current span of an original span of unit. An insertion
// at the start of the span moves it; one at its end does not. A change that
// replaced part of the span's boundary makes the span unmappable.
func (t *tracker) Map(unit string, span pkgtypes.Span) (pkgtypes.Span, error) {
	for _, c := range t.changes[unit] {
		delta := len(c.NewText) - c.Span.Len()
		switch {
		case c.Span.End <= span.Start:
			span.Start += delta
			span.End += delta
		case c.Span.Start >= span.End:
		case span.Contains(c.Span):
			span.End += delta
		default:
			return span, &pkgtypes.RefactorError{
				Type:    pkgtypes.InvalidOperation,
				Message: fmt.Sprintf("%s of %s was rewritten by an earlier edit", span, unit),
			}
		}
	}
	return span, nil
}
