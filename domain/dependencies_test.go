package domain_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const module = "github.com/reglet-dev/execsafety/"

// TestDomainHasNoOuterLayerDependencies keeps the domain free of imports
// from application, infrastructure and entry-point packages.
func TestDomainHasNoOuterLayerDependencies(t *testing.T) {
	forbidden := []string{
		module + "application",
		module + "infrastructure",
		module + "catalog",
		module + "cmd",
		module + "internal",
	}

	fset := token.NewFileSet()
	checked := 0
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		require.NoError(t, err, "failed to parse %s", path)
		checked++

		for _, imp := range f.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			for _, prefix := range forbidden {
				assert.False(t, strings.HasPrefix(importPath, prefix),
					"%s imports %s (domain must not depend on outer layers)", path, importPath)
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.NotZero(t, checked, "no domain sources found")
}

// TestEntitiesAreLeaf keeps entities independent of the other domain packages.
func TestEntitiesAreLeaf(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("entities", "*.go"))
	require.NoError(t, err)

	fset := token.NewFileSet()
	for _, file := range files {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range f.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			assert.False(t, strings.HasPrefix(importPath, module),
				"%s imports %s; entities must only use the standard library", file, importPath)
		}
	}
}
