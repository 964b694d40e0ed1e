package types

import (
	"errors"
	"fmt"
	"strings"
)

// RefactorError represents errors in refactoring operations
type RefactorError struct {
	Type    ErrorType
	Message string
	Unit    string
	Line    int
	Column  int
	Sites   []string // affected locations, e.g. call sites that could not be updated
	Cause   error
}

func (e *RefactorError) Error() string {
	msg := e.Message
	if len(e.Sites) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(e.Sites, "; "))
	}
	if e.Unit != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.Unit, e.Line, e.Column, msg)
	}
	return msg
}

func (e *RefactorError) Unwrap() error {
	return e.Cause
}

type ErrorType int

const (
	ParseError ErrorType = iota
	SymbolNotFound
	InvalidOperation
	ResolutionError
	PropagationGap
	NameConflict
	FileSystemError
	Cancelled
)

func (t ErrorType) String() string {
	switch t {
	case ParseError:
		return "ParseError"
	case SymbolNotFound:
		return "SymbolNotFound"
	case InvalidOperation:
		return "InvalidOperation"
	case ResolutionError:
		return "ResolutionError"
	case PropagationGap:
		return "PropagationGap"
	case NameConflict:
		return "NameConflict"
	case FileSystemError:
		return "FileSystemError"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// IsErrorType reports whether err wraps a RefactorError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var re *RefactorError
	return errors.As(err, &re) && re.Type == t
}

// ContextError converts a context error into a Cancelled RefactorError.
// Other errors are returned unchanged.
func ContextError(err error) error {
	if err == nil {
		return nil
	}
	var re *RefactorError
	if errors.As(err, &re) {
		return err
	}
	return &RefactorError{
		Type:    Cancelled,
		Message: "operation cancelled",
		Cause:   err,
	}
}

// Located fills in the unit position of a RefactorError from a byte offset.
func (e *RefactorError) Located(u *SourceUnit, offset int) *RefactorError {
	if u == nil {
		return e
	}
	pos := u.Position(offset)
	e.Unit = u.ID
	e.Line = pos.Line
	e.Column = pos.Column
	return e
}
