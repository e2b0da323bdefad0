// Package project loads the build context for a run: the README text, the
// top-level directory listing, and the Node package manifest when present.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Context is the project material handed to the Dockerfile generator.
type Context struct {
	Root       string
	ReadmeText string

	// Listing holds the sorted top-level entries; directories carry a
	// trailing slash so the generator can tell them apart.
	Listing []string

	// Package is the parsed package.json. Load requires the manifest to
	// exist; a nil Package only appears in hand-built test contexts.
	Package *PackageJSON
}

// PackageJSON is the subset of a Node manifest the tool inspects.
type PackageJSON struct {
	Name            string            `json:"name"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Load reads the project context rooted at the README's directory. The
// project must carry a package.json next to the README; without one there
// is nothing to build or test.
func Load(readmePath string) (*Context, error) {
	readme, err := os.ReadFile(readmePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read README %s: %w", readmePath, err)
	}
	root := filepath.Dir(readmePath)

	listing, err := ListDir(root)
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		Root:       root,
		ReadmeText: string(readme),
		Listing:    listing,
	}

	pkgPath := filepath.Join(root, "package.json")
	pkg, err := loadPackageJSON(pkgPath)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, fmt.Errorf("package.json not found next to README: %s", pkgPath)
	}
	ctx.Package = pkg
	return ctx, nil
}

// ListDir returns the sorted top-level entries of dir, directories suffixed
// with a slash.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list project directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// loadPackageJSON parses a Node manifest. A missing file yields nil; a
// malformed one is an error so a bad manifest is surfaced rather than
// silently treated as absent.
func loadPackageJSON(path string) (*PackageJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &pkg, nil
}
