package selection

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PopulateFromDirectory replaces the tree with the contents of dir. Hidden
// entries are skipped, as are entries that cannot be read and entries that
// are neither directories nor regular files; the latter two are returned as
// diagnostics. A missing dir yields an empty tree.
func (t *Tree) PopulateFromDirectory(dir string) []error {
	var diags []error

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	t.reset(abs)
	defer t.invalidate()

	entries, err := os.ReadDir(abs)
	if err != nil {
		diags = append(diags, fmt.Errorf("selection: read root %s: %w", abs, err))
		return diags
	}
	t.addEntries(0, abs, entries, &diags)
	return diags
}

func (t *Tree) addEntries(parent int, dir string, entries []os.DirEntry, diags *[]error) {
	type item struct {
		name string
		path string
		sub  []os.DirEntry
	}
	var dirs, files []item

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)
		info, err := os.Stat(full)
		if err != nil {
			*diags = append(*diags, fmt.Errorf("selection: stat %s: %w", full, err))
			continue
		}
		if info.IsDir() {
			// Symlinked directories could form cycles.
			if e.Type()&os.ModeSymlink != 0 {
				continue
			}
			sub, err := os.ReadDir(full)
			if err != nil {
				*diags = append(*diags, fmt.Errorf("selection: read dir %s: %w", full, err))
				continue
			}
			dirs = append(dirs, item{name: name, path: full, sub: sub})
			continue
		}
		if !info.Mode().IsRegular() {
			*diags = append(*diags, fmt.Errorf("selection: skipping %s: not a regular file (%s)", full, info.Mode().Type()))
			continue
		}
		files = append(files, item{name: name, path: full})
	}

	less := func(s []item) func(i, j int) bool {
		return func(i, j int) bool { return lessName(s[i].name, s[j].name) }
	}
	sort.Slice(dirs, less(dirs))
	sort.Slice(files, less(files))

	for _, d := range dirs {
		id := t.addNode(parent, d.name, d.path, Folder, Unchecked)
		t.addEntries(id, d.path, d.sub, diags)
	}
	for _, f := range files {
		t.addNode(parent, f.name, f.path, File, Unchecked)
	}
}

// lessName orders names case-insensitively, falling back to byte order so
// the result is deterministic.
func lessName(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// PopulateFromFlatFileList replaces the tree with one checked file node per
// path that names an existing regular file. All nodes are direct children
// of the root; other paths are skipped.
func (t *Tree) PopulateFromFlatFileList(paths []string) {
	t.reset("")
	defer t.invalidate()

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		t.addNode(0, filepath.Base(abs), abs, File, Checked)
	}
	t.nodes[0].state = t.aggregate(0)
}

// PopulateFromListing replaces the tree with the files named by relPaths,
// relative to root. Folders are synthesized from path components and
// ordering follows PopulateFromDirectory.
func (t *Tree) PopulateFromListing(root string, relPaths []string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	t.reset(abs)
	defer t.invalidate()

	folders := map[string]int{"": 0}
	var folderFor func(rel string) int
	folderFor = func(rel string) int {
		if rel == "." || rel == "" {
			return 0
		}
		if id, ok := folders[rel]; ok {
			return id
		}
		parent := folderFor(filepath.Dir(rel))
		id := t.addNode(parent, filepath.Base(rel), filepath.Join(abs, rel), Folder, Unchecked)
		folders[rel] = id
		return id
	}

	seen := make(map[string]struct{}, len(relPaths))
	for _, rel := range relPaths {
		rel = filepath.Clean(rel)
		if rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}
		parent := folderFor(filepath.Dir(rel))
		t.addNode(parent, filepath.Base(rel), filepath.Join(abs, rel), File, Unchecked)
	}
	t.sortChildren(0)
}

// sortChildren applies folders-first, case-insensitive ordering under id.
func (t *Tree) sortChildren(id int) {
	ch := t.nodes[id].children
	sort.SliceStable(ch, func(i, j int) bool {
		a, b := t.nodes[ch[i]], t.nodes[ch[j]]
		if a.kind != b.kind {
			return a.kind == Folder
		}
		return lessName(a.name, b.name)
	})
	for row, c := range ch {
		t.nodes[c].row = row
		if t.nodes[c].kind == Folder {
			t.sortChildren(c)
		}
	}
}
