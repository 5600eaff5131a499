package selection

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// Observer receives change notifications. Calls happen synchronously,
// before the mutating method returns.
type Observer interface {
	// NodesChanged reports the addresses whose state changed.
	NodesChanged(addrs []Address, aspect Aspect)
	// TreeInvalidated reports that every node may have changed.
	TreeInvalidated()
}

// Tree owns the selection arena. It is not safe for concurrent use; a
// single owner drives it.
type Tree struct {
	nodes     []node
	root      string
	logger    *slog.Logger
	observers []Observer
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger used for rejected requests.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(t *Tree) {
		if o != nil {
			t.observers = append(t.observers, o)
		}
	}
}

// New returns an empty tree.
func New(opts ...Option) *Tree {
	t := &Tree{logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	t.reset("")
	return t
}

// AddObserver registers o for change notifications.
func (t *Tree) AddObserver(o Observer) {
	if o != nil {
		t.observers = append(t.observers, o)
	}
}

// Root returns the directory the tree was populated from, or "" when the
// tree came from a flat list.
func (t *Tree) Root() string { return t.root }

func (t *Tree) reset(root string) {
	t.root = root
	t.nodes = t.nodes[:0]
	t.nodes = append(t.nodes, node{kind: Folder, parent: noParent})
}

func (t *Tree) addNode(parent int, name, path string, kind Kind, state CheckState) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, node{
		name:   name,
		path:   path,
		kind:   kind,
		state:  state,
		parent: parent,
		row:    len(t.nodes[parent].children),
	})
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id
}

// resolve maps an address to an arena index.
func (t *Tree) resolve(addr Address) (int, bool) {
	id := 0
	for _, row := range addr {
		ch := t.nodes[id].children
		if row < 0 || row >= len(ch) {
			return 0, false
		}
		id = ch[row]
	}
	return id, true
}

func (t *Tree) addressOf(id int) Address {
	depth := 0
	for n := id; n > 0; n = t.nodes[n].parent {
		depth++
	}
	addr := make(Address, depth)
	for n := id; n > 0; n = t.nodes[n].parent {
		depth--
		addr[depth] = t.nodes[n].row
	}
	return addr
}

// folderOrRoot resolves addr to a folder. Invalid addresses fall back to
// the root. A file address resolves to the folder containing the file.
func (t *Tree) folderOrRoot(addr Address) int {
	id, ok := t.resolve(addr)
	if !ok {
		return 0
	}
	if t.nodes[id].kind == File {
		return t.nodes[id].parent
	}
	return id
}

// aggregate computes a folder's state from its children.
func (t *Tree) aggregate(id int) CheckState {
	children := t.nodes[id].children
	if len(children) == 0 {
		return Unchecked
	}
	var c, u int
	for _, ch := range children {
		switch t.nodes[ch].state {
		case PartiallyChecked:
			return PartiallyChecked
		case Checked:
			c++
		default:
			u++
		}
	}
	switch {
	case c > 0 && u > 0:
		return PartiallyChecked
	case c == len(children):
		return Checked
	default:
		return Unchecked
	}
}

// propagateUp recomputes id and its ancestors, stopping at the first level
// whose stored state already matches.
func (t *Tree) propagateUp(id int, changed []int) []int {
	for id != noParent {
		s := t.aggregate(id)
		if s == t.nodes[id].state {
			break
		}
		t.nodes[id].state = s
		if id != 0 {
			changed = append(changed, id)
		}
		id = t.nodes[id].parent
	}
	return changed
}

// recomputeFolders re-aggregates every folder under id bottom-up. Empty
// folders have nothing to aggregate and keep their stored state.
func (t *Tree) recomputeFolders(id int, changed []int) []int {
	n := &t.nodes[id]
	if n.kind != Folder || len(n.children) == 0 {
		return changed
	}
	for _, ch := range n.children {
		changed = t.recomputeFolders(ch, changed)
	}
	if s := t.aggregate(id); s != t.nodes[id].state {
		t.nodes[id].state = s
		if id != 0 {
			changed = append(changed, id)
		}
	}
	return changed
}

func (t *Tree) notify(changed []int) {
	if len(changed) == 0 || len(t.observers) == 0 {
		return
	}
	addrs := make([]Address, len(changed))
	for i, id := range changed {
		addrs[i] = t.addressOf(id)
	}
	for _, o := range t.observers {
		o.NodesChanged(addrs, AspectCheckState)
	}
}

func (t *Tree) invalidate() {
	for _, o := range t.observers {
		o.TreeInvalidated()
	}
}

// Toggle flips a file, or checks a folder unless it is fully checked.
// Invalid addresses and the root are ignored.
func (t *Tree) Toggle(addr Address) {
	id, ok := t.resolve(addr)
	if !ok || id == 0 {
		return
	}
	target := Checked
	if t.nodes[id].state == Checked {
		target = Unchecked
	}
	t.SetChecked(addr, target)
}

// SetChecked sets a file, or forces every descendant of a folder, to
// target. Descendant folders are forced too, empty ones included; the
// addressed folder then takes the aggregate of its children, so an empty
// folder addressed directly stays Unchecked. PartiallyChecked is treated
// as Checked.
func (t *Tree) SetChecked(addr Address, target CheckState) {
	id, ok := t.resolve(addr)
	if !ok || id == 0 {
		return
	}
	if target == PartiallyChecked {
		target = Checked
	}

	var changed []int
	n := &t.nodes[id]
	if n.kind == File {
		if n.state == target {
			return
		}
		n.state = target
		changed = append(changed, id)
	} else {
		before := n.state
		changed = t.forceDescendants(id, target, changed)
		t.nodes[id].state = t.aggregate(id)
		if t.nodes[id].state != before {
			changed = append(changed, id)
		}
	}
	changed = t.propagateUp(t.nodes[id].parent, changed)
	t.notify(changed)
}

func (t *Tree) forceDescendants(id int, target CheckState, changed []int) []int {
	for _, ch := range t.nodes[id].children {
		if t.nodes[ch].kind == Folder {
			changed = t.forceDescendants(ch, target, changed)
		}
		if t.nodes[ch].state != target {
			t.nodes[ch].state = target
			changed = append(changed, ch)
		}
	}
	return changed
}

// NormalizeExtension trims ext and makes sure it starts with a dot. It
// returns "" for blank input.
func NormalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func hasExtension(name, ext string) bool {
	return strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext))
}

// SelectByExtension checks every direct file child of the folder at addr
// whose name ends with ext, case-insensitively. It never unchecks. A file
// address selects within the file's folder and an invalid address within
// the root.
func (t *Tree) SelectByExtension(addr Address, ext string) {
	norm := NormalizeExtension(ext)
	if norm == "" {
		t.logger.Warn("selection: empty extension ignored")
		return
	}
	folder := t.folderOrRoot(addr)

	var changed []int
	for _, ch := range t.nodes[folder].children {
		n := &t.nodes[ch]
		if n.kind == File && n.state != Checked && hasExtension(n.name, norm) {
			n.state = Checked
			changed = append(changed, ch)
		}
	}
	if len(changed) == 0 {
		return
	}
	changed = t.propagateUp(folder, changed)
	t.notify(changed)
}

// SelectByExtensionRecursive is SelectByExtension applied to every file in
// the subtree at addr. A file address starts at the file's folder and an
// invalid address at the root.
func (t *Tree) SelectByExtensionRecursive(addr Address, ext string) {
	norm := NormalizeExtension(ext)
	if norm == "" {
		t.logger.Warn("selection: empty extension ignored")
		return
	}
	start := t.folderOrRoot(addr)

	changed := t.checkMatching(start, norm, nil)
	if len(changed) == 0 {
		return
	}
	changed = t.recomputeFolders(start, changed)
	if start != 0 {
		changed = t.propagateUp(t.nodes[start].parent, changed)
	}
	t.notify(changed)
}

func (t *Tree) checkMatching(id int, ext string, changed []int) []int {
	for _, ch := range t.nodes[id].children {
		n := &t.nodes[ch]
		if n.kind == Folder {
			changed = t.checkMatching(ch, ext, changed)
			continue
		}
		if n.state != Checked && hasExtension(n.name, ext) {
			n.state = Checked
			changed = append(changed, ch)
		}
	}
	return changed
}

// SetAllStates forces every node below the root to target, folders
// included, and raises a single invalidation. Below each top-level folder
// the result matches SetChecked on that folder.
func (t *Tree) SetAllStates(target CheckState) {
	if target == PartiallyChecked {
		target = Checked
	}
	t.forceDescendants(0, target, nil)
	t.nodes[0].state = t.aggregate(0)
	t.invalidate()
}

// CheckPaths checks every file, and every empty folder, whose absolute path
// is listed, re-aggregates all folders, and raises a single invalidation.
// It returns the number of nodes that matched.
func (t *Tree) CheckPaths(paths []string) int {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[filepath.Clean(p)] = struct{}{}
	}
	matched := 0
	for i := range t.nodes {
		n := &t.nodes[i]
		if i == 0 || (n.kind == Folder && len(n.children) > 0) {
			continue
		}
		if _, ok := want[n.path]; ok {
			n.state = Checked
			matched++
		}
	}
	t.recomputeFolders(0, nil)
	t.invalidate()
	return matched
}

// CheckedFilePaths returns the paths of checked files in depth-first
// pre-order.
func (t *Tree) CheckedFilePaths() []string {
	var out []string
	var walk func(id int)
	walk = func(id int) {
		for _, ch := range t.nodes[id].children {
			n := t.nodes[ch]
			if n.kind == Folder {
				walk(ch)
			} else if n.state == Checked {
				out = append(out, n.path)
			}
		}
	}
	walk(0)
	return out
}

// CheckedEmptyFolders returns the paths of checked folders that have no
// children. Together with CheckedFilePaths it is enough for CheckPaths to
// restore a selection after the tree is rebuilt.
func (t *Tree) CheckedEmptyFolders() []string {
	var out []string
	for i, n := range t.nodes {
		if i != 0 && n.kind == Folder && len(n.children) == 0 && n.state == Checked {
			out = append(out, n.path)
		}
	}
	return out
}

// HasAnyFile reports whether the tree holds at least one file node.
func (t *Tree) HasAnyFile() bool {
	for _, n := range t.nodes {
		if n.kind == File {
			return true
		}
	}
	return false
}

// FileCount returns the number of file nodes.
func (t *Tree) FileCount() int {
	count := 0
	for _, n := range t.nodes {
		if n.kind == File {
			count++
		}
	}
	return count
}

// Extensions lists the distinct lowercased extensions of the direct file
// children of the folder at addr.
func (t *Tree) Extensions(addr Address) []string {
	id, ok := t.resolve(addr)
	if !ok || t.nodes[id].kind != Folder {
		return nil
	}
	seen := make(map[string]struct{})
	for _, ch := range t.nodes[id].children {
		n := t.nodes[ch]
		if n.kind != File {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(n.name)); ext != "" && ext != "." {
			seen[ext] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for ext := range seen {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// State returns the state stored at addr.
func (t *Tree) State(addr Address) (CheckState, bool) {
	id, ok := t.resolve(addr)
	if !ok {
		return Unchecked, false
	}
	return t.nodes[id].state, true
}

// Node returns a view of the subtree at addr.
func (t *Tree) Node(addr Address) (View, bool) {
	id, ok := t.resolve(addr)
	if !ok {
		return View{}, false
	}
	return t.view(id, t.addressOf(id)), true
}

// Snapshot returns a view of the whole tree.
func (t *Tree) Snapshot() View {
	v := t.view(0, Address{})
	v.Path = t.root
	return v
}

func (t *Tree) view(id int, addr Address) View {
	n := t.nodes[id]
	v := View{
		Name:    n.name,
		Path:    n.path,
		Address: addr,
		Kind:    n.kind,
		State:   n.state,
	}
	if len(n.children) > 0 {
		v.Children = make([]View, len(n.children))
		for i, ch := range n.children {
			childAddr := make(Address, len(addr)+1)
			copy(childAddr, addr)
			childAddr[len(addr)] = i
			v.Children[i] = t.view(ch, childAddr)
		}
	}
	return v
}
