package types

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Span is a half-open byte range [Start, End) within a single source unit.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether o lies entirely within s.
func (s Span) Contains(o Span) bool { return s.Start <= o.Start && o.End <= s.End }

// Overlaps reports whether the two spans share at least one byte.
func (s Span) Overlaps(o Span) bool { return s.Start < o.End && o.Start < s.End }

func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Start, s.End) }

// SourceUnit is one parsed Go file: the pair of its text and syntax tree.
// Units are immutable; WithText returns a new unit and leaves the receiver
// untouched.
type SourceUnit struct {
	ID   string // absolute file path
	Text []byte
	AST  *ast.File

	tok  *token.File
	fset *token.FileSet
}

// ParseUnit parses text into a new unit registered in fset.
func ParseUnit(fset *token.FileSet, id string, text []byte) (*SourceUnit, error) {
	f, err := parser.ParseFile(fset, id, text, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, &RefactorError{
			Type:    ParseError,
			Message: fmt.Sprintf("failed to parse file: %v", err),
			Unit:    id,
			Cause:   err,
		}
	}
	return &SourceUnit{
		ID:   id,
		Text: text,
		AST:  f,
		tok:  fset.File(f.FileStart),
		fset: fset,
	}, nil
}

// WithText re-parses the unit with new contents.
func (u *SourceUnit) WithText(text []byte) (*SourceUnit, error) {
	return ParseUnit(u.fset, u.ID, text)
}

func (u *SourceUnit) Dir() string { return filepath.Dir(u.ID) }

// PackageName returns the name from the package clause.
func (u *SourceUnit) PackageName() string { return u.AST.Name.Name }

// IsTest reports whether the unit is a _test.go file.
func (u *SourceUnit) IsTest() bool { return strings.HasSuffix(u.ID, "_test.go") }

// Offset converts a position inside this unit to a byte offset.
func (u *SourceUnit) Offset(pos token.Pos) int { return u.tok.Offset(pos) }

// Pos converts a byte offset to a position inside this unit.
func (u *SourceUnit) Pos(offset int) token.Pos { return u.tok.Pos(offset) }

// Contains reports whether pos belongs to this unit's tree.
func (u *SourceUnit) Contains(pos token.Pos) bool {
	return pos.IsValid() && int(pos) >= u.tok.Base() && int(pos) <= u.tok.Base()+u.tok.Size()
}

// OffsetAt converts a 1-based line and byte column into an offset. A
// column one past the end of the line is allowed.
func (u *SourceUnit) OffsetAt(line, col int) (int, error) {
	if line < 1 || line > u.tok.LineCount() {
		return 0, &RefactorError{
			Type:    InvalidOperation,
			Message: fmt.Sprintf("line %d is outside %s (%d lines)", line, u.ID, u.tok.LineCount()),
		}
	}
	start := u.tok.Offset(u.tok.LineStart(line))
	end := len(u.Text)
	if i := bytes.IndexByte(u.Text[start:], '\n'); i >= 0 {
		end = start + i
	}
	if col < 1 || start+col-1 > end {
		return 0, &RefactorError{
			Type:    InvalidOperation,
			Message: fmt.Sprintf("column %d is outside line %d of %s", col, line, u.ID),
		}
	}
	return start + col - 1, nil
}

// SpanOf returns the byte span covered by n.
func (u *SourceUnit) SpanOf(n ast.Node) Span {
	return Span{Start: u.Offset(n.Pos()), End: u.Offset(n.End())}
}

// Slice returns the source text covered by span.
func (u *SourceUnit) Slice(span Span) string { return string(u.Text[span.Start:span.End]) }

// Position returns the line/column position of a byte offset.
func (u *SourceUnit) Position(offset int) token.Position {
	return u.tok.PositionFor(u.tok.Pos(offset), false)
}

// Module holds the go.mod information of a program.
type Module struct {
	Path      string
	GoVersion string
}

// Package groups the units of one Go package inside a program snapshot.
type Package struct {
	Dir        string
	Name       string
	ImportPath string
	Units      []*SourceUnit
	XTest      bool // external test package (package foo_test)
}

// Program is an immutable snapshot of a whole module: an ordered collection
// of units plus a memo of information derived from them. Replacing a unit
// produces a new Program; derived information is never carried over.
type Program struct {
	Root    string
	Module  *Module
	FileSet *token.FileSet

	units []*SourceUnit
	index map[string]int

	mu      sync.Mutex
	derived map[any]any
}

// NewProgram builds a snapshot from parsed units. All units must have been
// parsed into fset.
func NewProgram(root string, module *Module, fset *token.FileSet, units []*SourceUnit) *Program {
	p := &Program{
		Root:    root,
		Module:  module,
		FileSet: fset,
		units:   make([]*SourceUnit, len(units)),
		index:   make(map[string]int, len(units)),
	}
	copy(p.units, units)
	for i, u := range p.units {
		p.index[u.ID] = i
	}
	return p
}

// Unit returns the unit with the given ID, or nil.
func (p *Program) Unit(id string) *SourceUnit {
	i, ok := p.index[id]
	if !ok {
		return nil
	}
	return p.units[i]
}

// Units returns the units in program order. The slice must not be modified.
func (p *Program) Units() []*SourceUnit { return p.units }

// UnitFor returns the unit whose tree contains pos.
func (p *Program) UnitFor(pos token.Pos) *SourceUnit {
	tf := p.FileSet.File(pos)
	if tf == nil {
		return nil
	}
	u := p.Unit(tf.Name())
	if u == nil || u.tok != tf {
		return nil
	}
	return u
}

// WithUnit returns a new snapshot in which u replaces the unit with the same
// ID, or is appended when no such unit exists. Untouched units are shared.
func (p *Program) WithUnit(u *SourceUnit) *Program {
	units := make([]*SourceUnit, len(p.units), len(p.units)+1)
	copy(units, p.units)
	if i, ok := p.index[u.ID]; ok {
		units[i] = u
	} else {
		units = append(units, u)
	}
	return NewProgram(p.Root, p.Module, p.FileSet, units)
}

// WithoutUnit returns a new snapshot without the unit id.
func (p *Program) WithoutUnit(id string) *Program {
	if _, ok := p.index[id]; !ok {
		return p
	}
	units := make([]*SourceUnit, 0, len(p.units))
	for _, u := range p.units {
		if u.ID != id {
			units = append(units, u)
		}
	}
	return NewProgram(p.Root, p.Module, p.FileSet, units)
}

// Packages groups units by directory and package clause. External test
// packages are reported separately with an "_test" import path suffix.
func (p *Program) Packages() []*Package {
	byKey := make(map[string]*Package)
	var keys []string
	for _, u := range p.units {
		name := u.PackageName()
		xtest := u.IsTest() && strings.HasSuffix(name, "_test")
		key := u.Dir()
		if xtest {
			key += "#xtest"
		}
		pkg, ok := byKey[key]
		if !ok {
			pkg = &Package{
				Dir:        u.Dir(),
				Name:       name,
				ImportPath: p.ImportPath(u.Dir()),
				XTest:      xtest,
			}
			if xtest {
				pkg.ImportPath += "_test"
			}
			byKey[key] = pkg
			keys = append(keys, key)
		}
		if !u.IsTest() {
			pkg.Name = name
		}
		pkg.Units = append(pkg.Units, u)
	}
	sort.Strings(keys)
	pkgs := make([]*Package, 0, len(keys))
	for _, k := range keys {
		pkgs = append(pkgs, byKey[k])
	}
	return pkgs
}

// ImportPath computes the import path of the package in dir.
func (p *Program) ImportPath(dir string) string {
	modPath := "main"
	if p.Module != nil && p.Module.Path != "" {
		modPath = p.Module.Path
	}
	rel, err := filepath.Rel(p.Root, dir)
	if err != nil || rel == "." {
		return modPath
	}
	return modPath + "/" + filepath.ToSlash(rel)
}

// ResolveUnit maps a user-supplied path onto a unit ID.
func (p *Program) ResolveUnit(path string) (string, error) {
	// Strategy 1: exact match
	if p.Unit(path) != nil {
		return path, nil
	}

	// Strategy 2: relative to the program root
	if !filepath.IsAbs(path) {
		abs := filepath.Join(p.Root, path)
		if p.Unit(abs) != nil {
			return abs, nil
		}
	}

	// Strategy 3: unique base name
	var match string
	count := 0
	for _, u := range p.units {
		if filepath.Base(u.ID) == filepath.Base(path) {
			match = u.ID
			count++
		}
	}
	if count == 1 {
		return match, nil
	}

	return "", &RefactorError{
		Type:    SymbolNotFound,
		Message: fmt.Sprintf("source unit not found: %s", path),
	}
}

// Derive returns the value memoized under key for this snapshot, computing
// it with build on first use. Failed builds are not memoized.
func (p *Program) Derive(ctx context.Context, key any, build func(context.Context) (any, error)) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.derived[key]; ok {
		return v, nil
	}
	v, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if p.derived == nil {
		p.derived = make(map[any]any)
	}
	p.derived[key] = v
	return v, nil
}
