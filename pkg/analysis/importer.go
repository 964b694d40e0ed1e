package analysis

import (
	"fmt"
	"go/importer"
	"go/token"
	gotypes "go/types"
	"sync"
)

// stdImporter resolves packages outside the program from export data,
// falling back to type-checking their source. It is shared by all snapshots
// so that imported packages keep one identity across type checks.
type stdImporter struct {
	mu     sync.Mutex
	fset   *token.FileSet
	gc     gotypes.Importer
	source gotypes.Importer
	cache  map[string]*gotypes.Package
}

func newStdImporter() *stdImporter {
	fset := token.NewFileSet()
	return &stdImporter{
		fset:   fset,
		gc:     importer.Default(),
		source: importer.ForCompiler(fset, "source", nil),
		cache:  make(map[string]*gotypes.Package),
	}
}

func (imp *stdImporter) Import(path string) (*gotypes.Package, error) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	if pkg, ok := imp.cache[path]; ok {
		return pkg, nil
	}
	pkg, err := imp.gc.Import(path)
	if err != nil {
		pkg, err = imp.source.Import(path)
	}
	if err != nil {
		return nil, err
	}
	imp.cache[path] = pkg
	return pkg, nil
}

// programImporter implements go/types.Importer for one snapshot: packages of
// the program are type-checked from the snapshot's units on demand, the rest
// come from the shared std importer.
type programImporter struct {
	ix  *programIndex
	std gotypes.Importer
}

func (imp *programImporter) Import(path string) (*gotypes.Package, error) {
	if tp, ok := imp.ix.byPath[path]; ok {
		// A package with type errors is still usable by its importers;
		// its errors are reported against the package itself.
		if err := imp.ix.check(tp); err != nil && tp.state != checked {
			return nil, err
		}
		return tp.Types, nil
	}
	if imp.std == nil {
		return nil, fmt.Errorf("package %s not found", path)
	}
	return imp.std.Import(path)
}
