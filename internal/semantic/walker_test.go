package semantic

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_ScopesAndSkips(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, "docs/guide.md", "# Guide")
	writeFile(t, dir, "Makefile", "all:")
	writeFile(t, dir, "image.png", "not indexed")
	writeFile(t, dir, "vendor/x/x.go", "package x")
	writeFile(t, dir, ".cache/y.go", "package y")

	all, truncated, err := discover(dir, ScopeAll, 0, 0)
	require.NoError(t, err)
	assert.False(t, truncated)

	var names []string
	for _, f := range all {
		rel, _ := filepath.Rel(dir, f.Path)
		names = append(names, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"Makefile", "docs/guide.md", "main.go"}, names)

	docs, _, err := discover(dir, ScopeDocs, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "markdown", docs[0].Language)

	code, _, err := discover(dir, ScopeCode, 0, 0)
	require.NoError(t, err)
	assert.Len(t, code, 2)
}

func TestDiscover_Caps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a")
	writeFile(t, dir, "b.go", "package b")
	writeFile(t, dir, "big.go", "package big // padded well beyond the cap")

	files, truncated, err := discover(dir, ScopeAll, 20, 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, files, 2)

	files, truncated, err = discover(dir, ScopeAll, 0, 1)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, files, 1)
}

func TestReadText_RejectsBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.go")
	require.NoError(t, os.WriteFile(path, []byte{'p', 0, 'k'}, 0o644))

	_, ok, err := readText(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManifestHash_ChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a")
	before, _, err := discover(dir, ScopeAll, 0, 0)
	require.NoError(t, err)

	writeFile(t, dir, "a.go", "package a // edited")
	after, _, err := discover(dir, ScopeAll, 0, 0)
	require.NoError(t, err)

	assert.NotEqual(t, manifestHash(before), manifestHash(after))
}
