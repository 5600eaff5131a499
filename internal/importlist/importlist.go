// Package importlist reads the JSON file lists accepted by the import
// command:
//
//	{ "files_to_merge": ["a.txt", "/abs/b.go", "../c.md"] }
//
// Relative entries resolve against the directory holding the JSON file.
package importlist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// FilesKey is the one recognized top-level key.
const FilesKey = "files_to_merge"

// Parse extracts the valid file paths from data. sourcePath is the path of
// the JSON document itself. Problems are returned as human-readable
// diagnostics next to whatever paths were still usable.
func Parse(data []byte, sourcePath string) (paths []string, diags []string) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, []string{fmt.Sprintf("JSON Parse Error: %v", err)}
	}
	root, ok := raw.(map[string]any)
	if !ok {
		return nil, []string{"Invalid JSON Format: Root is not an object."}
	}
	entries, ok := root[FilesKey].([]any)
	if !ok {
		return nil, []string{fmt.Sprintf("Invalid JSON Structure: Must contain '%s' key with an array.", FilesKey)}
	}

	baseDir := filepath.Dir(sourcePath)
	if abs, err := filepath.Abs(baseDir); err == nil {
		baseDir = abs
	}

	for _, e := range entries {
		s, ok := e.(string)
		if !ok {
			diags = append(diags, "Skipping non-string entry in file list.")
			continue
		}
		abs := Resolve(baseDir, s)
		info, err := os.Stat(abs)
		if err != nil {
			diags = append(diags, fmt.Sprintf("File not found: %s (resolved from %s)", abs, s))
			continue
		}
		if !info.Mode().IsRegular() {
			diags = append(diags, fmt.Sprintf("Path is not a file: %s (resolved from %s)", abs, s))
			continue
		}
		paths = append(paths, abs)
	}
	return paths, diags
}

// Resolve returns p as a cleaned absolute path, joining relative paths
// onto baseDir.
func Resolve(baseDir, p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}

// Load reads the JSON document at path and parses it.
func Load(path string) ([]string, []string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []string{fmt.Sprintf("Could not read import file %s: %v", path, err)}
	}
	return Parse(data, path)
}
