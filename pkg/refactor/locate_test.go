package refactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

const locateSource = `package sample

import "strings"

// Upper upper-cases s.
func Upper(s string) string {
	v := strings.ToUpper(s)
	return v + suffix
}

const suffix = "!"

type pair struct {
	left, right int
}

func newPair() pair {
	return pair{left: 1, right: 2}
}
`

func TestLocate(t *testing.T) {
	prog := parseProgram(t, map[string]string{"sample.go": locateSource})
	u := prog.Unit("/src/sample.go")

	tests := []struct {
		name   string
		marker string
		sub    string
		want   string // "" when nothing is located
	}{
		{"call", "strings.ToUpper(s)", "strings.ToUpper(s)", "strings.ToUpper(s)"},
		{"selector climbs", "strings.ToUpper(s)", "ToUpper", "strings.ToUpper"},
		{"binary", "v + suffix", "v + suffix", "v + suffix"},
		{"padded selection", "return v + suffix", " v + suffix", "v + suffix"},
		{"cursor in identifier", "v + suffix", "uff", "suffix"},
		{"literal value", "left: 1", "1", "1"},
		{"import path", `"strings"`, "strings", ""},
		{"comment", "// Upper upper-cases", "upper", ""},
		{"function name", "func Upper(", "Upper", ""},
		{"parameter type", "s string)", "string", ""},
		{"result type", "newPair() pair", "pair", ""},
		{"short variable declaration", "v := strings", "v", ""},
		{"literal key", "left: 1", "left", ""},
		{"package name", "package sample", "sample", ""},
		{"keyword", "return v", "return", ""},
		{"field name", "left, right int", "right", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span := markerSpan(t, u, tt.marker, tt.sub)
			if tt.name == "cursor in identifier" {
				span.End = span.Start
			}
			expr, err := Locate(prog, u.ID, span)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, expr)
				return
			}
			require.NotNil(t, expr)
			assert.Equal(t, tt.want, u.Slice(u.SpanOf(expr)))
		})
	}
}

func TestLocate_Idempotent(t *testing.T) {
	prog := parseProgram(t, map[string]string{"sample.go": locateSource})
	u := prog.Unit("/src/sample.go")
	span := markerSpan(t, u, "v + suffix", "v + suffix")

	first, err := Locate(prog, u.ID, span)
	require.NoError(t, err)
	second, err := Locate(prog, u.ID, span)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLocate_Errors(t *testing.T) {
	prog := parseProgram(t, map[string]string{"sample.go": locateSource})

	_, err := Locate(prog, "/src/missing.go", pkgtypes.Span{})
	assert.True(t, pkgtypes.IsErrorType(err, pkgtypes.SymbolNotFound))

	_, err = Locate(prog, "/src/sample.go", pkgtypes.Span{Start: 10, End: 1 << 20})
	assert.True(t, pkgtypes.IsErrorType(err, pkgtypes.InvalidOperation))
}

func TestEnclosingRoutine(t *testing.T) {
	prog := parseProgram(t, map[string]string{"sample.go": locateSource})
	u := prog.Unit("/src/sample.go")

	expr, err := Locate(prog, u.ID, markerSpan(t, u, "v + suffix", "v + suffix"))
	require.NoError(t, err)
	fd := EnclosingRoutine(u.AST, expr)
	require.NotNil(t, fd)
	assert.Equal(t, "Upper", fd.Name.Name)

	expr, err = Locate(prog, u.ID, markerSpan(t, u, `suffix = "!"`, `"!"`))
	require.NoError(t, err)
	assert.Nil(t, EnclosingRoutine(u.AST, expr))
}
