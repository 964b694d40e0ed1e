package types

import (
	"context"
	"errors"
	"go/token"
	"path/filepath"
	"sort"
	"testing"
)

func newTestProgram(t *testing.T, files map[string]string) *Program {
	t.Helper()
	fset := token.NewFileSet()
	root := "/work/app"
	var units []*SourceUnit
	for _, name := range sortedKeys(files) {
		u, err := ParseUnit(fset, filepath.Join(root, name), []byte(files[name]))
		if err != nil {
			t.Fatalf("ParseUnit(%s): %v", name, err)
		}
		units = append(units, u)
	}
	return NewProgram(root, &Module{Path: "example.com/app"}, fset, units)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestSpan(t *testing.T) {
	s := Span{Start: 4, End: 10}
	if s.Len() != 6 {
		t.Errorf("Expected length 6, got %d", s.Len())
	}
	if !s.Contains(Span{Start: 4, End: 10}) {
		t.Error("Expected span to contain itself")
	}
	if s.Contains(Span{Start: 3, End: 5}) {
		t.Error("Expected span not to contain [3,5)")
	}
	if !s.Overlaps(Span{Start: 9, End: 12}) {
		t.Error("Expected [4,10) to overlap [9,12)")
	}
	if s.Overlaps(Span{Start: 10, End: 12}) {
		t.Error("Expected [4,10) not to overlap [10,12)")
	}
	if s.String() != "[4,10)" {
		t.Errorf("Expected [4,10), got %s", s.String())
	}
}

func TestParseUnit_InvalidSource(t *testing.T) {
	_, err := ParseUnit(token.NewFileSet(), "/x/bad.go", []byte("package x\nfunc {"))
	if err == nil {
		t.Fatal("Expected parse error")
	}
	if !IsErrorType(err, ParseError) {
		t.Errorf("Expected ParseError, got %v", err)
	}
}

func TestSourceUnit_WithTextLeavesOriginal(t *testing.T) {
	prog := newTestProgram(t, map[string]string{
		"main.go": "package main\n\nvar x = 1\n",
	})
	u := prog.Unit("/work/app/main.go")
	if u == nil {
		t.Fatal("Expected unit to exist")
	}

	u2, err := u.WithText([]byte("package main\n\nvar x = 2\n"))
	if err != nil {
		t.Fatalf("WithText: %v", err)
	}
	if string(u.Text) != "package main\n\nvar x = 1\n" {
		t.Errorf("Original unit text changed: %q", u.Text)
	}
	if u2.AST == u.AST {
		t.Error("Expected a fresh syntax tree")
	}

	prog2 := prog.WithUnit(u2)
	if prog.Unit(u.ID) != u {
		t.Error("Original program must keep the original unit")
	}
	if prog2.Unit(u.ID) != u2 {
		t.Error("New program must hold the replacement unit")
	}
}

func TestSourceUnit_Offsets(t *testing.T) {
	prog := newTestProgram(t, map[string]string{
		"main.go": "package main\n\nvar x = 1 + 2\n",
	})
	u := prog.Unit("/work/app/main.go")
	span := Span{Start: 22, End: 27}
	if got := u.Slice(span); got != "1 + 2" {
		t.Fatalf("Expected '1 + 2', got %q", got)
	}
	pos := u.Pos(span.Start)
	if u.Offset(pos) != span.Start {
		t.Errorf("Offset(Pos(%d)) = %d", span.Start, u.Offset(pos))
	}
	if !u.Contains(pos) {
		t.Error("Expected unit to contain its own position")
	}
	if p := u.Position(span.Start); p.Line != 3 || p.Column != 9 {
		t.Errorf("Expected 3:9, got %d:%d", p.Line, p.Column)
	}
	if prog.UnitFor(pos) != u {
		t.Error("UnitFor should map the position back to the unit")
	}
}

func TestSourceUnit_OffsetAt(t *testing.T) {
	prog := newTestProgram(t, map[string]string{
		"main.go": "package main\n\nvar x = 1 + 2\n",
	})
	u := prog.Unit("/work/app/main.go")

	tests := []struct {
		line, col int
		want      int
		wantErr   bool
	}{
		{line: 3, col: 9, want: 22},
		{line: 1, col: 1, want: 0},
		{line: 3, col: 14, want: 27},
		{line: 3, col: 15, wantErr: true},
		{line: 4, col: 1, wantErr: true},
		{line: 0, col: 1, wantErr: true},
		{line: 2, col: 0, wantErr: true},
	}
	for _, tt := range tests {
		got, err := u.OffsetAt(tt.line, tt.col)
		if tt.wantErr {
			if !IsErrorType(err, InvalidOperation) {
				t.Errorf("OffsetAt(%d, %d): expected InvalidOperation, got %v", tt.line, tt.col, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("OffsetAt(%d, %d) = %d, %v; want %d", tt.line, tt.col, got, err, tt.want)
		}
	}
}

func TestProgram_WithUnitSharesUntouchedUnits(t *testing.T) {
	prog := newTestProgram(t, map[string]string{
		"a.go": "package main\n",
		"b.go": "package main\n\nfunc b() {}\n",
	})
	a := prog.Unit("/work/app/a.go")
	b := prog.Unit("/work/app/b.go")

	a2, err := a.WithText([]byte("package main\n\nfunc a() {}\n"))
	if err != nil {
		t.Fatal(err)
	}
	next := prog.WithUnit(a2)
	if next.Unit(b.ID) != b {
		t.Error("Expected untouched unit to be shared")
	}
	if len(next.Units()) != 2 {
		t.Errorf("Expected 2 units, got %d", len(next.Units()))
	}
	if next.Units()[0].ID != a.ID {
		t.Error("Expected unit order to be preserved")
	}

	removed := next.WithoutUnit(b.ID)
	if removed.Unit(b.ID) != nil || len(removed.Units()) != 1 {
		t.Error("Expected b.go to be removed")
	}
	if next.Unit(b.ID) == nil {
		t.Error("WithoutUnit must not modify the receiver")
	}
}

func TestProgram_Packages(t *testing.T) {
	prog := newTestProgram(t, map[string]string{
		"main.go":         "package main\n",
		"main_test.go":    "package main\n",
		"util/util.go":    "package util\n",
		"util/x_test.go":  "package util_test\n",
		"util/util2.go":   "package util\n",
		"internal/k/k.go": "package k\n",
	})

	pkgs := prog.Packages()
	got := make(map[string]int)
	for _, p := range pkgs {
		got[p.ImportPath] = len(p.Units)
	}
	want := map[string]int{
		"example.com/app":            2,
		"example.com/app/util":       2,
		"example.com/app/util_test":  1,
		"example.com/app/internal/k": 1,
	}
	for path, n := range want {
		if got[path] != n {
			t.Errorf("package %s: expected %d units, got %d", path, n, got[path])
		}
	}
	if len(pkgs) != len(want) {
		t.Errorf("Expected %d packages, got %d", len(want), len(pkgs))
	}
}

func TestProgram_ResolveUnit(t *testing.T) {
	prog := newTestProgram(t, map[string]string{
		"main.go":      "package main\n",
		"util/util.go": "package util\n",
		"a/doc.go":     "package a\n",
		"b/doc.go":     "package b\n",
	})

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"/work/app/main.go", "/work/app/main.go", false},
		{"util/util.go", "/work/app/util/util.go", false},
		{"util.go", "/work/app/util/util.go", false},
		{"doc.go", "", true},
		{"missing.go", "", true},
	}
	for _, tt := range tests {
		got, err := prog.ResolveUnit(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ResolveUnit(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveUnit(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProgram_Derive(t *testing.T) {
	prog := newTestProgram(t, map[string]string{"main.go": "package main\n"})
	calls := 0
	build := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}

	v1, err := prog.Derive(context.Background(), "k", build)
	if err != nil {
		t.Fatal(err)
	}
	v2, _ := prog.Derive(context.Background(), "k", build)
	if v1 != v2 || calls != 1 {
		t.Errorf("Expected memoized value, got %v and %v after %d builds", v1, v2, calls)
	}

	failing := func(context.Context) (any, error) { return nil, errors.New("boom") }
	if _, err := prog.Derive(context.Background(), "f", failing); err == nil {
		t.Error("Expected build error")
	}
	if _, err := prog.Derive(context.Background(), "f", build); err != nil {
		t.Errorf("Failed builds must not be memoized: %v", err)
	}

	next := prog.WithUnit(prog.Units()[0])
	if _, err := next.Derive(context.Background(), "k", build); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("Expected a new snapshot to recompute derived values, builds = %d", calls)
	}
}
