package refactor

import (
	"go/token"
	gotypes "go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

func TestValidator_ValidateName(t *testing.T) {
	v := NewValidator(discardLogger())

	tests := []struct {
		name string
		want pkgtypes.ErrorType
		ok   bool
	}{
		{"total", 0, true},
		{"Total2", 0, true},
		{"", pkgtypes.InvalidOperation, false},
		{"_", pkgtypes.InvalidOperation, false},
		{"2x", pkgtypes.InvalidOperation, false},
		{"func", pkgtypes.InvalidOperation, false},
		{"len", pkgtypes.NameConflict, false},
		{"string", pkgtypes.NameConflict, false},
	}
	for _, tt := range tests {
		err := v.ValidateName(tt.name)
		if tt.ok {
			assert.NoError(t, err, tt.name)
			continue
		}
		assert.True(t, pkgtypes.IsErrorType(err, tt.want), "%q: %v", tt.name, err)
	}
}

func TestValidator_NewTypeErrors(t *testing.T) {
	fset := token.NewFileSet()
	f := fset.AddFile("/m/a.go", -1, 100)
	f.SetLines([]int{0, 10, 20, 30})
	at := func(offset int, msg string) gotypes.Error {
		return gotypes.Error{Fset: fset, Pos: f.Pos(offset), Msg: msg}
	}

	before := []*pkgtypes.TypedPackage{{Errors: []gotypes.Error{at(5, "undefined: x")}}}
	after := []*pkgtypes.TypedPackage{{Errors: []gotypes.Error{
		at(15, "undefined: x"), // moved by an edit, not new
		at(25, "cannot use y (variable of type int) as string value"),
	}}}

	issues := NewValidator(discardLogger()).NewTypeErrors(before, after)
	require.Len(t, issues, 1)
	assert.Equal(t, pkgtypes.IssueTypeError, issues[0].Kind)
	assert.Equal(t, pkgtypes.Warning, issues[0].Severity)
	assert.Equal(t, "/m/a.go", issues[0].Unit)
	assert.Equal(t, 3, issues[0].Line)
}

func TestValidator_ValidateSpan(t *testing.T) {
	prog := loadModule(t, calcModule)
	u := unit(t, prog, "calc.go")
	v := NewValidator(discardLogger())

	assert.NoError(t, v.ValidateSpan(u, pkgtypes.Span{Start: 0, End: len(u.Text)}))
	assert.Error(t, v.ValidateSpan(u, pkgtypes.Span{Start: 5, End: 2}))
	assert.Error(t, v.ValidateSpan(u, pkgtypes.Span{Start: 0, End: len(u.Text) + 1}))
}
