package types

import "context"

// Operation is one refactoring bound to its request. Validate performs every
// check that can fail before an edit is applied; Execute produces the new
// snapshot.
type Operation interface {
	Kind() ActionKind
	Validate(ctx context.Context, prog *Program) error
	Execute(ctx context.Context, prog *Program) (*Result, error)
	Description() string
}

type ActionKind int

const (
	ExtractFieldAction ActionKind = iota
	ExtractParameterAction
)

// String returns the code action kind used by editors.
func (k ActionKind) String() string {
	switch k {
	case ExtractFieldAction:
		return "refactor.extract.field"
	case ExtractParameterAction:
		return "refactor.extract.parameter"
	default:
		return "refactor"
	}
}

// Title returns the user-visible action title.
func (k ActionKind) Title() string {
	switch k {
	case ExtractFieldAction:
		return "Extract field"
	case ExtractParameterAction:
		return "Extract parameter"
	default:
		return "Refactor"
	}
}

// ExtractRequest selects the expression to extract.
type ExtractRequest struct {
	Unit string // unit ID or path relative to the program root
	Span Span
	Name string // optional; synthesized from the expression when empty
}

// Change is one rewrite applied to a unit, in the coordinates of the
// snapshot it was applied to.
type Change struct {
	Unit        string
	Span        Span
	OldText     string
	NewText     string
	Description string
}

// Result is the outcome of a completed refactoring: the new snapshot, the
// rewrites that produced it and any non-fatal findings.
type Result struct {
	Program *Program
	Changes []Change
	Issues  []Issue
}

// AffectedUnits returns the IDs of changed units in first-change order.
func (r *Result) AffectedUnits() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, c := range r.Changes {
		if !seen[c.Unit] {
			seen[c.Unit] = true
			ids = append(ids, c.Unit)
		}
	}
	return ids
}

type Issue struct {
	Kind     IssueKind
	Severity IssueSeverity
	Message  string
	Unit     string
	Line     int
}

type IssueKind int

const (
	IssueDegradedType IssueKind = iota
	IssueUninitializedField
	IssueNameAdjusted
	IssueImportAdded
	IssueTypeError
)

func (k IssueKind) String() string {
	switch k {
	case IssueDegradedType:
		return "DegradedType"
	case IssueUninitializedField:
		return "UninitializedField"
	case IssueNameAdjusted:
		return "NameAdjusted"
	case IssueImportAdded:
		return "ImportAdded"
	case IssueTypeError:
		return "TypeError"
	default:
		return "Unknown"
	}
}

type IssueSeverity int

const (
	Error IssueSeverity = iota
	Warning
	Info
)

// String returns the string representation of IssueSeverity
func (s IssueSeverity) String() string {
	switch s {
	case Error:
		return "Error"
	case Warning:
		return "Warning"
	case Info:
		return "Info"
	default:
		return "Unknown"
	}
}
