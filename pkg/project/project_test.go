package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "README.md"), "# demo project")
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"demo","scripts":{"dev":"vite"},"devDependencies":{"vitest":"^2.0.0"}}`)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	writeFile(t, filepath.Join(dir, "index.js"), "")

	ctx, err := Load(filepath.Join(dir, "README.md"))
	require.NoError(t, err)

	assert.Equal(t, dir, ctx.Root)
	assert.Equal(t, "# demo project", ctx.ReadmeText)
	assert.Equal(t, []string{"README.md", "index.js", "package.json", "src/"}, ctx.Listing)
	require.NotNil(t, ctx.Package)
	assert.Equal(t, "demo", ctx.Package.Name)
	assert.Equal(t, "vite", ctx.Package.Scripts["dev"])
	assert.Contains(t, ctx.Package.DevDependencies, "vitest")
}

func TestLoadWithoutPackageJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "README.md"), "# bare")

	_, err := Load(filepath.Join(dir, "README.md"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "package.json not found")
}

func TestLoadMalformedPackageJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "README.md"), "# x")
	writeFile(t, filepath.Join(dir, "package.json"), "{not json")

	_, err := Load(filepath.Join(dir, "README.md"))
	assert.Error(t, err)
}

func TestLoadMissingReadme(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "README.md"))
	assert.Error(t, err)
}
