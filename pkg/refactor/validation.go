package refactor

import (
	"fmt"
	"go/token"
	gotypes "go/types"
	"log/slog"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// Validator checks user input and compares snapshots before a result is
// handed back to the host.
type Validator struct {
	logger *slog.Logger
}

func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// ValidateName checks a caller-supplied identifier.
func (v *Validator) ValidateName(name string) error {
	if !isValidGoIdentifier(name) {
		return &pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("invalid Go identifier: %s", name),
		}
	}
	if predeclared[name] {
		return &pkgtypes.RefactorError{
			Type:    pkgtypes.NameConflict,
			Message: fmt.Sprintf("%s shadows a predeclared identifier", name),
		}
	}
	return nil
}

// ValidateSpan checks that span lies within unit.
func (v *Validator) ValidateSpan(u *pkgtypes.SourceUnit, span pkgtypes.Span) error {
	if span.Start < 0 || span.End < span.Start || span.End > len(u.Text) {
		return &pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("invalid span %s for %s (size %d)", span, u.ID, len(u.Text)),
		}
	}
	return nil
}

// NewTypeErrors reports the type errors of the packages in after that did
// not occur in before. Errors are compared by unit and message only, so an
// existing error on a shifted line does not count as new.
func (v *Validator) NewTypeErrors(before, after []*pkgtypes.TypedPackage) []pkgtypes.Issue {
	seen := make(map[string]int)
	for _, tp := range before {
		for _, e := range tp.Errors {
			seen[typeErrorKey(e)]++
		}
	}

	var issues []pkgtypes.Issue
	for _, tp := range after {
		for _, e := range tp.Errors {
			key := typeErrorKey(e)
			if seen[key] > 0 {
				seen[key]--
				continue
			}
			pos := e.Fset.Position(e.Pos)
			issues = append(issues, pkgtypes.Issue{
				Kind:     pkgtypes.IssueTypeError,
				Severity: pkgtypes.Warning,
				Message:  e.Msg,
				Unit:     pos.Filename,
				Line:     pos.Line,
			})
		}
	}
	if len(issues) > 0 {
		v.logger.Warn("refactoring introduced type errors", "count", len(issues))
	}
	return issues
}

func typeErrorKey(e gotypes.Error) string {
	return e.Fset.Position(e.Pos).Filename + "\x00" + e.Msg
}

func isValidGoIdentifier(name string) bool {
	return token.IsIdentifier(name) && name != "_"
}
