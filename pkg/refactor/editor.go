package refactor

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// InsertField appends fieldText ("name Type") as the last field of st. The
// new field copies the indentation of the current last field; an empty
// struct is expanded onto multiple lines.
func InsertField(prog *pkgtypes.Program, unitID string, st *ast.StructType, fieldText string) (*pkgtypes.Program, pkgtypes.Change, error) {
	u := prog.Unit(unitID)
	if u == nil {
		return nil, pkgtypes.Change{}, unitNotFound(unitID)
	}

	fields := st.Fields.List
	if len(fields) == 0 {
		indent := lineIndent(u.Text, u.Offset(st.Pos()))
		text := "struct {\n" + indent + "\t" + fieldText + "\n" + indent + "}"
		return Replace(prog, unitID, st, text)
	}
	return appendToList(prog, u, fields[len(fields)-1], st.Fields.Closing, fieldText, "; ", false)
}

// InsertParameter appends paramText ("name Type") to the parameter list of
// ft, leaving the receiver, type parameters and results untouched. Existing
// unnamed parameters are named "_" so the list stays well formed.
func InsertParameter(prog *pkgtypes.Program, unitID string, ft *ast.FuncType, paramText string) (*pkgtypes.Program, pkgtypes.Change, error) {
	u := prog.Unit(unitID)
	if u == nil {
		return nil, pkgtypes.Change{}, unitNotFound(unitID)
	}

	params := ft.Params.List
	if len(params) == 0 {
		return ReplaceSpan(prog, unitID, pointSpan(u, ft.Params.Closing), paramText)
	}
	last := params[len(params)-1]
	if _, ok := last.Type.(*ast.Ellipsis); ok {
		return nil, pkgtypes.Change{}, (&pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: "cannot add a parameter after a variadic parameter",
		}).Located(u, u.Offset(last.Pos()))
	}
	if len(last.Names) == 0 {
		parts := make([]string, 0, len(params)+1)
		for _, p := range params {
			parts = append(parts, "_ "+u.Slice(u.SpanOf(p.Type)))
		}
		parts = append(parts, paramText)
		return Replace(prog, unitID, ft.Params, "("+strings.Join(parts, ", ")+")")
	}
	return appendToList(prog, u, last, ft.Params.Closing, paramText, ", ", true)
}

// AddArgument appends arg to the arguments of call.
func AddArgument(prog *pkgtypes.Program, unitID string, call *ast.CallExpr, arg string) (*pkgtypes.Program, pkgtypes.Change, error) {
	u := prog.Unit(unitID)
	if u == nil {
		return nil, pkgtypes.Change{}, unitNotFound(unitID)
	}
	if call.Ellipsis.IsValid() {
		return nil, pkgtypes.Change{}, (&pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: "cannot add an argument after a spread argument",
		}).Located(u, u.Offset(call.Ellipsis))
	}
	if len(call.Args) == 0 {
		return ReplaceSpan(prog, unitID, pointSpan(u, call.Rparen), arg)
	}
	return appendToList(prog, u, call.Args[len(call.Args)-1], call.Rparen, arg, ", ", true)
}

// AddElement appends elem to the elements of a composite literal.
func AddElement(prog *pkgtypes.Program, unitID string, lit *ast.CompositeLit, elem string) (*pkgtypes.Program, pkgtypes.Change, error) {
	u := prog.Unit(unitID)
	if u == nil {
		return nil, pkgtypes.Change{}, unitNotFound(unitID)
	}
	if len(lit.Elts) == 0 {
		return ReplaceSpan(prog, unitID, pointSpan(u, lit.Rbrace), elem)
	}
	return appendToList(prog, u, lit.Elts[len(lit.Elts)-1], lit.Rbrace, elem, ", ", true)
}

// NameReceiver gives an unnamed or blank receiver the name name.
func NameReceiver(prog *pkgtypes.Program, unitID string, recv *ast.Field, name string) (*pkgtypes.Program, pkgtypes.Change, error) {
	u := prog.Unit(unitID)
	if u == nil {
		return nil, pkgtypes.Change{}, unitNotFound(unitID)
	}
	if len(recv.Names) > 0 {
		return Replace(prog, unitID, recv.Names[0], name)
	}
	return ReplaceSpan(prog, unitID, pointSpan(u, recv.Type.Pos()), name+" ")
}

// ImportName returns the name under which file refers to the package with
// the given import path, or false when the file does not import it. Blank
// imports do not count; a dot import yields ".". defaultName is the
// package's own name, used for imports without an explicit name.
func ImportName(file *ast.File, importPath, defaultName string) (string, bool) {
	for _, spec := range file.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil || p != importPath {
			continue
		}
		if spec.Name == nil {
			return defaultName, true
		}
		if spec.Name.Name == "_" {
			continue
		}
		return spec.Name.Name, true
	}
	return "", false
}

// EnsureImport adds an import of importPath under name to the unit unless
// the file already imports it. The returned change is nil when nothing was
// added. A name equal to the last path element is not written out.
func EnsureImport(prog *pkgtypes.Program, unitID, importPath, name string) (*pkgtypes.Program, *pkgtypes.Change, error) {
	u := prog.Unit(unitID)
	if u == nil {
		return nil, nil, unitNotFound(unitID)
	}
	if _, ok := ImportName(u.AST, importPath, name); ok {
		return prog, nil, nil
	}

	spec := strconv.Quote(importPath)
	if name != "" && name != path.Base(importPath) {
		spec = name + " " + spec
	}

	var (
		next   *pkgtypes.Program
		change pkgtypes.Change
		err    error
	)
	decl := lastImportDecl(u.AST)
	switch {
	case decl == nil:
		next, change, err = ReplaceSpan(prog, unitID, pointSpan(u, u.AST.Name.End()), "\n\nimport "+spec)
	case decl.Lparen.IsValid() && len(decl.Specs) > 0:
		at, text := groupInsertion(u, decl, importPath, spec)
		next, change, err = ReplaceSpan(prog, unitID, pkgtypes.Span{Start: at, End: at}, text)
	case decl.Lparen.IsValid():
		next, change, err = ReplaceSpan(prog, unitID, pointSpan(u, decl.Rparen), "\n\t"+spec+"\n")
	default:
		existing := decl.Specs[0].(*ast.ImportSpec)
		first, second := u.Slice(u.SpanOf(existing)), spec
		if importBefore(importPath, importSpecPath(existing)) {
			first, second = second, first
		}
		sep := "\n\t"
		if isStdImport(importPath) != isStdImport(importSpecPath(existing)) {
			sep = "\n\n\t"
		}
		next, change, err = Replace(prog, unitID, decl, "import (\n\t"+first+sep+second+"\n)")
	}
	if err != nil {
		return nil, nil, err
	}
	change.Description = fmt.Sprintf("Add import %s", spec)
	return next, &change, nil
}

// groupInsertion returns where and what to insert so that spec joins the
// import block in the way gofmt and goimports lay it out: standard library
// packages in the first group, others in the last, each group sorted. A
// block without a group of the right kind gets a new one.
func groupInsertion(u *pkgtypes.SourceUnit, decl *ast.GenDecl, importPath, spec string) (int, string) {
	var groups [][]*ast.ImportSpec
	prevLine := 0
	for _, sp := range decl.Specs {
		is := sp.(*ast.ImportSpec)
		line := u.Position(u.Offset(is.Pos())).Line
		if len(groups) == 0 || line > prevLine+1 {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], is)
		prevLine = u.Position(u.Offset(specEnd(is))).Line
	}

	std := isStdImport(importPath)
	var group []*ast.ImportSpec
	for _, g := range groups {
		if isStdImport(importSpecPath(g[0])) != std {
			continue
		}
		group = g
		if std {
			break
		}
	}

	if group == nil {
		if std {
			first := decl.Specs[0].(*ast.ImportSpec)
			at := lineStart(u.Text, u.Offset(first.Pos()))
			return at, lineIndent(u.Text, at) + spec + "\n\n"
		}
		last := groups[len(groups)-1]
		end := lineEnd(u.Text, u.Offset(specEnd(last[len(last)-1])))
		return end, "\n" + lineIndent(u.Text, u.Offset(last[0].Pos())) + spec + "\n"
	}
	for _, is := range group {
		if importSpecPath(is) > importPath {
			at := lineStart(u.Text, u.Offset(is.Pos()))
			return at, lineIndent(u.Text, at) + spec + "\n"
		}
	}
	last := group[len(group)-1]
	return lineEnd(u.Text, u.Offset(specEnd(last))), lineIndent(u.Text, u.Offset(last.Pos())) + spec + "\n"
}

// RemoveImport deletes the import of importPath from the unit when the file
// no longer refers to it. name is the package's local name. The returned
// change is nil when the import is still used, blank, a dot import or
// absent.
func RemoveImport(prog *pkgtypes.Program, unitID, importPath, name string) (*pkgtypes.Program, *pkgtypes.Change, error) {
	u := prog.Unit(unitID)
	if u == nil {
		return nil, nil, unitNotFound(unitID)
	}

	// Units are parsed without object resolution; astutil.UsesImport needs
	// it to tell package references from local identifiers.
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, u.ID, u.Text, parser.ParseComments)
	if err != nil {
		return prog, nil, nil
	}
	var (
		decl *ast.GenDecl
		spec *ast.ImportSpec
	)
	for _, d := range file.Decls {
		gd, ok := d.(*ast.GenDecl)
		if !ok || gd.Tok != token.IMPORT {
			continue
		}
		for _, sp := range gd.Specs {
			if is := sp.(*ast.ImportSpec); importSpecPath(is) == importPath {
				decl, spec = gd, is
			}
		}
	}
	if spec == nil || spec.Name != nil && (spec.Name.Name == "_" || spec.Name.Name == ".") {
		return prog, nil, nil
	}
	used := astutil.UsesImport(file, importPath)
	if spec.Name == nil && name != path.Base(importPath) {
		// UsesImport guesses the name from the path.
		used = refersToPackage(file, name)
	}
	if used {
		return prog, nil, nil
	}

	tf := fset.File(file.Pos())
	start, end := spec.Pos(), specEnd(spec)
	if spec.Doc != nil {
		start = spec.Doc.Pos()
	}
	if len(decl.Specs) == 1 {
		start, end = decl.Pos(), decl.End()
		if decl.Doc != nil {
			start = decl.Doc.Pos()
		}
	}
	span := lineSpan(u.Text, tf.Offset(start), tf.Offset(end))
	next, change, err := ReplaceSpan(prog, unitID, span, "")
	if err != nil {
		return nil, nil, err
	}
	change.Description = fmt.Sprintf("Remove import %s", strconv.Quote(importPath))
	return next, &change, nil
}

// refersToPackage reports whether file has a selector whose base is the
// unresolved identifier name.
func refersToPackage(file *ast.File, name string) bool {
	found := false
	ast.Inspect(file, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if id, ok := sel.X.(*ast.Ident); ok && id.Name == name && id.Obj == nil {
				found = true
			}
		}
		return !found
	})
	return found
}

// lineSpan widens [start, end) to whole lines when nothing else shares
// them, and drops one of the blank lines the removal would leave doubled.
func lineSpan(text []byte, start, end int) pkgtypes.Span {
	if ls := lineStart(text, start); strings.TrimSpace(string(text[ls:start])) == "" {
		start = ls
	} else {
		return pkgtypes.Span{Start: start, End: end}
	}
	if le := lineEnd(text, end); strings.TrimSpace(string(text[end:le])) == "" {
		end = le
	} else {
		return pkgtypes.Span{Start: start, End: end}
	}

	blankAbove := start >= 2 && text[start-1] == '\n' && text[start-2] == '\n'
	openAbove := start >= 2 && text[start-1] == '\n' && text[start-2] == '('
	next := strings.TrimLeft(string(text[end:]), " \t")
	switch {
	case (blankAbove || openAbove) && end < len(text) && text[end] == '\n':
		end++
	case blankAbove && strings.HasPrefix(next, ")"):
		start--
	}
	return pkgtypes.Span{Start: start, End: end}
}

// importBefore orders standard library imports first, then by path.
func importBefore(a, b string) bool {
	if isStdImport(a) != isStdImport(b) {
		return isStdImport(a)
	}
	return a < b
}

func isStdImport(importPath string) bool {
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}

func importSpecPath(is *ast.ImportSpec) string {
	p, err := strconv.Unquote(is.Path.Value)
	if err != nil {
		return is.Path.Value
	}
	return p
}

// specEnd is the end of an import spec including its line comment.
func specEnd(is *ast.ImportSpec) token.Pos {
	if is.Comment != nil {
		return is.Comment.End()
	}
	return is.End()
}

func lastImportDecl(file *ast.File) *ast.GenDecl {
	var last *ast.GenDecl
	for _, d := range file.Decls {
		gd, ok := d.(*ast.GenDecl)
		if !ok || gd.Tok != token.IMPORT {
			break
		}
		last = gd
	}
	return last
}

// appendToList adds item after last, the final element of a list closed
// at closing. When the list is laid out one element per line (last is
// followed by a line break before closing) the item goes on its own line
// with last's indentation; otherwise it is appended after sep on the same
// line. trailingComma is set for lists whose multi-line form requires a
// comma after every element.
func appendToList(prog *pkgtypes.Program, u *pkgtypes.SourceUnit, last ast.Node, closing token.Pos, item, sep string, trailingComma bool) (*pkgtypes.Program, pkgtypes.Change, error) {
	end := u.Offset(last.End())
	closeOff := u.Offset(closing)
	between := u.Text[end:closeOff]
	nl := bytes.IndexByte(between, '\n')
	if nl < 0 {
		return ReplaceSpan(prog, u.ID, pkgtypes.Span{Start: end, End: end}, sep+item)
	}

	indent := lineIndent(u.Text, u.Offset(last.Pos()))
	at := end + nl + 1
	if !trailingComma {
		return ReplaceSpan(prog, u.ID, pkgtypes.Span{Start: at, End: at}, indent+item+"\n")
	}
	// The existing trailing comma, if any, sits between last and the line
	// break; lists without one get it added.
	if !strings.Contains(string(between[:nl]), ",") {
		text := "," + string(between[:nl]) + "\n" + indent + item + ","
		return ReplaceSpan(prog, u.ID, pkgtypes.Span{Start: end, End: end + nl}, text)
	}
	return ReplaceSpan(prog, u.ID, pkgtypes.Span{Start: at, End: at}, indent+item+",\n")
}

func pointSpan(u *pkgtypes.SourceUnit, pos token.Pos) pkgtypes.Span {
	off := u.Offset(pos)
	return pkgtypes.Span{Start: off, End: off}
}

// lineStart returns the offset of the start of the line containing offset.
func lineStart(text []byte, offset int) int {
	for offset > 0 && text[offset-1] != '\n' {
		offset--
	}
	return offset
}

// lineEnd returns the offset just past the line break ending the line that
// contains offset, or len(text).
func lineEnd(text []byte, offset int) int {
	if i := bytes.IndexByte(text[offset:], '\n'); i >= 0 {
		return offset + i + 1
	}
	return len(text)
}

// lineIndent returns the leading whitespace of the line containing offset.
func lineIndent(text []byte, offset int) string {
	start := offset
	for start > 0 && text[start-1] != '\n' {
		start--
	}
	end := start
	for end < len(text) && (text[end] == ' ' || text[end] == '\t') {
		end++
	}
	return string(text[start:end])
}
