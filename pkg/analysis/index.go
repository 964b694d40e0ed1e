package analysis

import (
	"context"
	"fmt"
	"go/ast"
	gotypes "go/types"
	"log/slog"
	"sync"

	"golang.org/x/tools/go/ast/inspector"

	"github.com/mamaar/goextract/pkg/types"
)

type indexKey struct{}

// programIndex is the semantic information derived from one snapshot. It is
// built once per snapshot through Program.Derive and never updated.
type programIndex struct {
	prog     *types.Program
	logger   *slog.Logger
	packages []*typedPackage
	byUnit   map[string]*typedPackage
	byPath   map[string]*typedPackage // importable packages only
	importer *programImporter
}

type checkState int

const (
	unchecked checkState = iota
	checking
	checked
)

type typedPackage struct {
	types.TypedPackage

	state   checkState
	inspect *inspector.Inspector

	once  sync.Once
	index *packageIndex
}

// refs returns the package's definition/use index, building it on first use.
func (tp *typedPackage) refs() *packageIndex {
	tp.once.Do(func() {
		tp.index = newPackageIndex(tp.inspect, tp.Types, tp.Info)
	})
	return tp.index
}

// unitOf returns the unit holding file.
func (tp *typedPackage) unitOf(file *ast.File) *types.SourceUnit {
	for i, f := range tp.Files {
		if f == file {
			return tp.Units[i]
		}
	}
	return nil
}

func indexFor(ctx context.Context, prog *types.Program, std gotypes.Importer, logger *slog.Logger) (*programIndex, error) {
	v, err := prog.Derive(ctx, indexKey{}, func(ctx context.Context) (any, error) {
		return buildIndex(ctx, prog, std, logger)
	})
	if err != nil {
		return nil, err
	}
	return v.(*programIndex), nil
}

func buildIndex(ctx context.Context, prog *types.Program, std gotypes.Importer, logger *slog.Logger) (*programIndex, error) {
	ix := &programIndex{
		prog:   prog,
		logger: logger,
		byUnit: make(map[string]*typedPackage),
		byPath: make(map[string]*typedPackage),
	}
	ix.importer = &programImporter{ix: ix, std: std}

	for _, pkg := range prog.Packages() {
		tp := &typedPackage{TypedPackage: types.TypedPackage{Package: pkg}}
		for _, u := range pkg.Units {
			tp.Files = append(tp.Files, u.AST)
			ix.byUnit[u.ID] = tp
		}
		ix.packages = append(ix.packages, tp)
		if !pkg.XTest {
			ix.byPath[pkg.ImportPath] = tp
		}
	}

	for _, tp := range ix.packages {
		if err := ctx.Err(); err != nil {
			return nil, types.ContextError(err)
		}
		if err := ix.check(tp); err != nil {
			logger.Debug("type-checking incomplete", "package", tp.ImportPath, "err", err)
		}
	}
	logger.Debug("program type-checked", "packages", len(ix.packages))
	return ix, nil
}

// check type-checks tp once. Type errors are recorded but do not stop the
// check: go/types still records everything it could resolve, which is what
// the refactorings need.
func (ix *programIndex) check(tp *typedPackage) error {
	switch tp.state {
	case checked:
		return nil
	case checking:
		return fmt.Errorf("import cycle through %s", tp.ImportPath)
	}
	tp.state = checking

	conf := gotypes.Config{
		Importer:    ix.importer,
		FakeImportC: true,
		Error: func(err error) {
			if te, ok := err.(gotypes.Error); ok {
				tp.Errors = append(tp.Errors, te)
			}
		},
	}
	info := &gotypes.Info{
		Types:      make(map[ast.Expr]gotypes.TypeAndValue),
		Instances:  make(map[*ast.Ident]gotypes.Instance),
		Defs:       make(map[*ast.Ident]gotypes.Object),
		Uses:       make(map[*ast.Ident]gotypes.Object),
		Implicits:  make(map[ast.Node]gotypes.Object),
		Selections: make(map[*ast.SelectorExpr]*gotypes.Selection),
		Scopes:     make(map[ast.Node]*gotypes.Scope),
	}

	pkg, err := conf.Check(tp.ImportPath, ix.prog.FileSet, tp.Files, info)
	if pkg == nil {
		pkg = gotypes.NewPackage(tp.ImportPath, tp.Name)
	}
	tp.Types = pkg
	tp.Info = info
	tp.inspect = inspector.New(tp.Files)
	tp.state = checked
	return err
}

// packageOf returns the typed package containing unitID.
func (ix *programIndex) packageOf(unitID string) (*typedPackage, error) {
	tp, ok := ix.byUnit[unitID]
	if !ok {
		return nil, &types.RefactorError{
			Type:    types.SymbolNotFound,
			Message: fmt.Sprintf("source unit not found: %s", unitID),
		}
	}
	return tp, nil
}

// packageOfObject returns the program package declaring obj, or nil for
// objects from outside the program.
func (ix *programIndex) packageOfObject(obj gotypes.Object) *typedPackage {
	if obj == nil || obj.Pkg() == nil {
		return nil
	}
	tp := ix.byPath[obj.Pkg().Path()]
	if tp == nil || tp.Types != obj.Pkg() {
		for _, p := range ix.packages {
			if p.Types == obj.Pkg() {
				return p
			}
		}
		return nil
	}
	return tp
}
