package tests_test

import (
	"flag"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

var update = flag.Bool("update", false, "update golden files")

// copyFixture copies a fixture directory to a temp dir, skipping .golden files.
func copyFixture(t *testing.T, fixtureDir string) string {
	t.Helper()
	src := filepath.Join("testdata", fixtureDir)
	dst := t.TempDir()

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, path)
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if strings.HasSuffix(path, ".golden") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		t.Fatalf("copyFixture(%s): %v", fixtureDir, err)
	}
	return dst
}

// compareGoldenFiles walks the fixture dir for *.golden files and compares them
// against actual output in tmpDir. If -update is set, writes actual output to
// golden files for every source file of the fixture.
func compareGoldenFiles(t *testing.T, fixtureDir, tmpDir string) {
	t.Helper()
	srcDir := filepath.Join("testdata", fixtureDir)

	if *update {
		err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || strings.HasSuffix(path, ".golden") || d.Name() == "go.mod" {
				return err
			}
			rel, _ := filepath.Rel(srcDir, path)
			actual, err := os.ReadFile(filepath.Join(tmpDir, rel))
			if err != nil {
				return nil
			}
			if err := os.WriteFile(path+".golden", actual, 0o644); err != nil {
				t.Errorf("failed to update golden file %s: %v", path, err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("walking source files for update: %v", err)
		}
		return
	}

	found := 0
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".golden") {
			return nil
		}
		found++

		rel, _ := filepath.Rel(srcDir, path)
		actualRel := strings.TrimSuffix(rel, ".golden")
		actual, err := os.ReadFile(filepath.Join(tmpDir, actualRel))
		if err != nil {
			t.Errorf("cannot read actual file %s: %v", actualRel, err)
			return nil
		}
		golden, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("cannot read golden file %s: %v", path, err)
			return nil
		}
		if string(actual) != string(golden) {
			t.Errorf("mismatch for %s:\n%s", actualRel, unifiedDiff(string(golden), string(actual)))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking golden files: %v", err)
	}
	if found == 0 {
		t.Fatal("no golden files found")
	}
}

// assertUnchanged fails when any source file of tmpDir differs from the fixture.
func assertUnchanged(t *testing.T, fixtureDir, tmpDir string) {
	t.Helper()
	srcDir := filepath.Join("testdata", fixtureDir)
	filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(path, ".golden") {
			return err
		}
		rel, _ := filepath.Rel(srcDir, path)
		want, _ := os.ReadFile(path)
		got, err := os.ReadFile(filepath.Join(tmpDir, rel))
		if err != nil {
			t.Errorf("cannot read %s: %v", rel, err)
			return nil
		}
		if string(got) != string(want) {
			t.Errorf("%s was modified:\n%s", rel, unifiedDiff(string(want), string(got)))
		}
		return nil
	})
}

func unifiedDiff(expected, actual string) string {
	text, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	return text
}
