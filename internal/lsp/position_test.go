package lsp

import (
	"go/token"
	"maps"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/mamaar/goextract/pkg/types"
)

func TestOffsetOf(t *testing.T) {
	text := []byte("a😀b\nc")
	tests := []struct {
		pos  Position
		want int
	}{
		{Position{0, 0}, 0},
		{Position{0, 1}, 1},
		{Position{0, 2}, 1}, // inside the surrogate pair
		{Position{0, 3}, 5},
		{Position{0, 4}, 6},
		{Position{0, 99}, 6},
		{Position{1, 0}, 7},
		{Position{1, 1}, 8},
		{Position{5, 0}, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OffsetOf(text, tt.pos), "%+v", tt.pos)
	}
}

func TestPositionOf(t *testing.T) {
	text := []byte("a😀b\nc")
	assert.Equal(t, Position{0, 0}, PositionOf(text, 0))
	assert.Equal(t, Position{0, 3}, PositionOf(text, 5))
	assert.Equal(t, Position{0, 4}, PositionOf(text, 6))
	assert.Equal(t, Position{1, 0}, PositionOf(text, 7))
	assert.Equal(t, Position{1, 1}, PositionOf(text, 99))
}

func TestTextEdit(t *testing.T) {
	tests := []struct {
		name      string
		old, next string
		want      TextEdit
	}{
		{
			name: "insertion",
			old:  "hello world", next: "hello brave world",
			want: TextEdit{Range: Range{Start: Position{0, 6}, End: Position{0, 6}}, NewText: "brave "},
		},
		{
			name: "replacement across lines",
			old:  "a\nb * 10\nc", next: "a\nb * x\nc",
			want: TextEdit{Range: Range{Start: Position{1, 4}, End: Position{1, 6}}, NewText: "x"},
		},
		{
			name: "multibyte boundary",
			old:  "x := \"é\"", next: "x := \"è\"",
			want: TextEdit{Range: Range{Start: Position{0, 6}, End: Position{0, 7}}, NewText: "è"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, textEdit([]byte(tt.old), []byte(tt.next))); diff != "" {
				t.Errorf("textEdit() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWanted(t *testing.T) {
	assert.True(t, wanted(nil, "refactor.extract.field"))
	assert.True(t, wanted([]string{"refactor"}, "refactor.extract.field"))
	assert.True(t, wanted([]string{"refactor.extract.field"}, "refactor.extract.field"))
	assert.False(t, wanted([]string{"refactor.extract.f"}, "refactor.extract.field"))
	assert.False(t, wanted([]string{"quickfix"}, "refactor.extract.field"))
}

func TestURIRoundTrip(t *testing.T) {
	path := "/tmp/a dir/calc.go"
	uri := pathToURI(path)
	assert.Equal(t, "file:///tmp/a%20dir/calc.go", uri)
	assert.Equal(t, path, uriToPath(uri))
}

func TestWorkspaceEdit(t *testing.T) {
	before := parseProgram(t, map[string]string{
		"a.go": "package p\n\nvar x = 1\n",
		"b.go": "package p\n",
	})
	a := before.Unit("/src/a.go")
	u, err := a.WithText([]byte("package p\n\nvar x = 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	after := before.WithUnit(u)

	want := &WorkspaceEdit{Changes: map[string][]TextEdit{
		"file:///src/a.go": {{
			Range:   Range{Start: Position{2, 8}, End: Position{2, 9}},
			NewText: "2",
		}},
	}}
	if diff := cmp.Diff(want, workspaceEdit(before, after)); diff != "" {
		t.Errorf("workspaceEdit() mismatch (-want +got):\n%s", diff)
	}
}

func parseProgram(t *testing.T, files map[string]string) *types.Program {
	t.Helper()
	fset := token.NewFileSet()
	var units []*types.SourceUnit
	for _, name := range slices.Sorted(maps.Keys(files)) {
		u, err := types.ParseUnit(fset, "/src/"+name, []byte(files[name]))
		if err != nil {
			t.Fatal(err)
		}
		units = append(units, u)
	}
	return types.NewProgram("/src", &types.Module{Path: "example.com/p"}, fset, units)
}
