package selection

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/collate/internal/testutil"
)

type recorder struct {
	changes     [][]Address
	aspects     []Aspect
	invalidated int
}

func (r *recorder) NodesChanged(addrs []Address, aspect Aspect) {
	r.changes = append(r.changes, addrs)
	r.aspects = append(r.aspects, aspect)
}

func (r *recorder) TreeInvalidated() { r.invalidated++ }

func (r *recorder) reset() {
	r.changes = nil
	r.aspects = nil
	r.invalidated = 0
}

// sampleTree builds:
//
//	docs/
//	  sub/
//	    deep.txt
//	  guide.md
//	  notes.TXT
//	empty/
//	a.txt
//	b.go
func sampleTree(t *testing.T) (*Tree, *recorder, string) {
	t.Helper()
	root := testutil.WriteTree(t, map[string]string{
		"docs/guide.md":     "guide",
		"docs/notes.TXT":    "notes",
		"docs/sub/deep.txt": "deep",
		"empty/":            "",
		"a.txt":             "A",
		"b.go":              "package b",
		".hidden/x.txt":     "hidden",
		".env":              "SECRET=1",
	})
	rec := &recorder{}
	tree := New(WithLogger(testutil.Logger()), WithObserver(rec))
	diags := tree.PopulateFromDirectory(root)
	require.Empty(t, diags)
	rec.reset()
	return tree, rec, root
}

func names(v View) []string {
	out := make([]string, len(v.Children))
	for i, c := range v.Children {
		out[i] = c.Name
	}
	return out
}

func TestPopulateFromDirectory_OrderAndHidden(t *testing.T) {
	tree, _, root := sampleTree(t)
	assert := assert.New(t)

	snap := tree.Snapshot()
	assert.Equal(root, snap.Path)
	assert.Equal([]string{"docs", "empty", "a.txt", "b.go"}, names(snap))
	assert.Equal([]string{"sub", "guide.md", "notes.TXT"}, names(snap.Children[0]))
	assert.Empty(snap.Children[1].Children)
	assert.Equal(Folder, snap.Children[0].Kind)
	assert.Equal(File, snap.Children[2].Kind)
	assert.Equal(filepath.Join(root, "a.txt"), snap.Children[2].Path)
	assert.True(tree.HasAnyFile())
	assert.Equal(5, tree.FileCount())
}

func TestPopulateFromDirectory_CaseInsensitiveOrder(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"b.txt": "", "A.txt": "", "c.txt": "", "Zeta/": "", "alpha/": "",
	})
	tree := New()
	tree.PopulateFromDirectory(root)
	assert.Equal(t, []string{"alpha", "Zeta", "A.txt", "b.txt", "c.txt"}, names(tree.Snapshot()))
}

func TestPopulateFromDirectory_MissingRoot(t *testing.T) {
	tree := New(WithLogger(testutil.Logger()))
	diags := tree.PopulateFromDirectory(filepath.Join(t.TempDir(), "nope"))
	assert.Len(t, diags, 1)
	assert.False(t, tree.HasAnyFile())
	assert.Empty(t, tree.Snapshot().Children)
}

func TestPopulateInvalidates(t *testing.T) {
	rec := &recorder{}
	tree := New(WithObserver(rec))
	tree.PopulateFromDirectory(t.TempDir())
	assert.Equal(t, 1, rec.invalidated)
}

func TestToggleFile(t *testing.T) {
	tree, rec, root := sampleTree(t)

	tree.Toggle(Address{2})
	assert.Equal(t, []string{filepath.Join(root, "a.txt")}, tree.CheckedFilePaths())
	require.Len(t, rec.changes, 1)
	assert.Equal(t, []Address{{2}}, rec.changes[0])
	assert.Equal(t, AspectCheckState, rec.aspects[0])

	tree.Toggle(Address{2})
	assert.Empty(t, tree.CheckedFilePaths())
}

func TestToggleFolderChecksDescendants(t *testing.T) {
	tree, rec, _ := sampleTree(t)

	tree.Toggle(Address{0})
	st, _ := tree.State(Address{0})
	assert.Equal(t, Checked, st)
	st, _ = tree.State(Address{0, 0, 0})
	assert.Equal(t, Checked, st)
	assert.Len(t, tree.CheckedFilePaths(), 3)
	require.Len(t, rec.changes, 1)
	assert.Contains(t, rec.changes[0], Address{0})
	assert.Contains(t, rec.changes[0], Address{0, 0, 0})

	tree.Toggle(Address{0})
	assert.Empty(t, tree.CheckedFilePaths())
}

func TestTogglePartialFolderBecomesChecked(t *testing.T) {
	tree, _, _ := sampleTree(t)

	tree.Toggle(Address{0, 1})
	st, _ := tree.State(Address{0})
	require.Equal(t, PartiallyChecked, st)

	tree.Toggle(Address{0})
	st, _ = tree.State(Address{0})
	assert.Equal(t, Checked, st)
	assert.Len(t, tree.CheckedFilePaths(), 3)
}

func TestAggregationPropagatesToAncestors(t *testing.T) {
	tree, rec, _ := sampleTree(t)

	tree.SetChecked(Address{0, 0, 0}, Checked)
	st, _ := tree.State(Address{0, 0})
	assert.Equal(t, Checked, st)
	st, _ = tree.State(Address{0})
	assert.Equal(t, PartiallyChecked, st)
	require.Len(t, rec.changes, 1)
	assert.Equal(t, []Address{{0, 0, 0}, {0, 0}, {0}}, rec.changes[0])
}

func TestPropagationShortCircuits(t *testing.T) {
	tree, rec, _ := sampleTree(t)

	tree.SetChecked(Address{0, 1}, Checked)
	rec.reset()

	// docs is already partial; checking another leaf below keeps it partial.
	tree.SetChecked(Address{0, 0, 0}, Checked)
	require.Len(t, rec.changes, 1)
	assert.Equal(t, []Address{{0, 0, 0}, {0, 0}}, rec.changes[0])
}

func TestSetCheckedPartialNormalizes(t *testing.T) {
	tree, _, _ := sampleTree(t)
	tree.SetChecked(Address{3}, PartiallyChecked)
	st, _ := tree.State(Address{3})
	assert.Equal(t, Checked, st)
}

func TestSetCheckedEmptyFolderStaysUnchecked(t *testing.T) {
	tree, rec, _ := sampleTree(t)
	tree.SetChecked(Address{1}, Checked)
	st, _ := tree.State(Address{1})
	assert.Equal(t, Unchecked, st)
	assert.Empty(t, rec.changes)
}

func TestInvalidAddressIsNoop(t *testing.T) {
	tree, rec, _ := sampleTree(t)
	before := tree.Snapshot()

	tree.Toggle(Address{9})
	tree.Toggle(Address{0, 7, 1})
	tree.SetChecked(Address{-1}, Checked)
	tree.Toggle(Address{})

	assert.Equal(t, before, tree.Snapshot())
	assert.Empty(t, rec.changes)
}

func TestSameStateIsSilent(t *testing.T) {
	tree, rec, _ := sampleTree(t)
	tree.SetChecked(Address{2}, Unchecked)
	assert.Empty(t, rec.changes)
}

func TestSelectByExtensionCaseInsensitive(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"dir/a.TXT": "", "dir/b.txt": "", "dir/c.md": "",
	})
	tree := New()
	tree.PopulateFromDirectory(root)

	tree.SelectByExtension(Address{0}, ".txt")
	assert.Equal(t, []string{
		filepath.Join(root, "dir", "a.TXT"),
		filepath.Join(root, "dir", "b.txt"),
	}, tree.CheckedFilePaths())
	st, _ := tree.State(Address{0})
	assert.Equal(t, PartiallyChecked, st)
}

func TestSelectByExtensionDirectChildrenOnly(t *testing.T) {
	tree, rec, root := sampleTree(t)

	tree.SelectByExtension(Address{0}, "txt")
	assert.Equal(t, []string{filepath.Join(root, "docs", "notes.TXT")}, tree.CheckedFilePaths())
	require.Len(t, rec.changes, 1)
	assert.Equal(t, []Address{{0, 2}, {0}}, rec.changes[0])
}

func TestSelectByExtensionInvalidAddressUsesRoot(t *testing.T) {
	tree, _, root := sampleTree(t)
	tree.SelectByExtension(Address{42}, ".txt")
	assert.Equal(t, []string{filepath.Join(root, "a.txt")}, tree.CheckedFilePaths())
}

func TestSelectByExtensionFileAddressUsesParent(t *testing.T) {
	tree, _, root := sampleTree(t)
	// docs/guide.md selects within docs/.
	tree.SelectByExtension(Address{0, 1}, ".txt")
	assert.Equal(t, []string{filepath.Join(root, "docs", "notes.TXT")}, tree.CheckedFilePaths())

	tree.SetAllStates(Unchecked)
	tree.SelectByExtensionRecursive(Address{0, 1}, ".txt")
	assert.Equal(t, []string{
		filepath.Join(root, "docs", "sub", "deep.txt"),
		filepath.Join(root, "docs", "notes.TXT"),
	}, tree.CheckedFilePaths())
}

func TestSelectByExtensionNeverUnchecks(t *testing.T) {
	tree, _, root := sampleTree(t)
	tree.SetChecked(Address{3}, Checked)
	tree.SelectByExtension(nil, ".txt")
	assert.Equal(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "b.go"),
	}, tree.CheckedFilePaths())
}

func TestSelectByExtensionEmptyIgnored(t *testing.T) {
	tree, rec, _ := sampleTree(t)
	tree.SelectByExtension(nil, "  ")
	tree.SelectByExtensionRecursive(nil, "")
	assert.Empty(t, tree.CheckedFilePaths())
	assert.Empty(t, rec.changes)
}

func TestSelectByExtensionRecursive(t *testing.T) {
	tree, rec, root := sampleTree(t)

	tree.SelectByExtensionRecursive(nil, ".TXT")
	assert.Equal(t, []string{
		filepath.Join(root, "docs", "sub", "deep.txt"),
		filepath.Join(root, "docs", "notes.TXT"),
		filepath.Join(root, "a.txt"),
	}, tree.CheckedFilePaths())

	st, _ := tree.State(Address{0, 0})
	assert.Equal(t, Checked, st)
	st, _ = tree.State(Address{0})
	assert.Equal(t, PartiallyChecked, st)
	require.Len(t, rec.changes, 1)
	assert.Contains(t, rec.changes[0], Address{0, 0})
	assert.Contains(t, rec.changes[0], Address{0})
}

func TestSelectByExtensionRecursiveSubtreeOnly(t *testing.T) {
	tree, _, root := sampleTree(t)
	tree.SelectByExtensionRecursive(Address{0, 0}, "txt")
	assert.Equal(t, []string{filepath.Join(root, "docs", "sub", "deep.txt")}, tree.CheckedFilePaths())
	st, _ := tree.State(Address{0})
	assert.Equal(t, PartiallyChecked, st)
}

func TestSetAllStates(t *testing.T) {
	tree, rec, _ := sampleTree(t)

	tree.SetAllStates(Checked)
	assert.Len(t, tree.CheckedFilePaths(), 5)
	assert.Equal(t, 1, rec.invalidated)
	assert.Empty(t, rec.changes)
	st, _ := tree.State(Address{0})
	assert.Equal(t, Checked, st)
	st, _ = tree.State(Address{1})
	assert.Equal(t, Checked, st, "bulk check forces empty folders too")
	assert.Equal(t, Checked, tree.Snapshot().State)

	tree.SetAllStates(Unchecked)
	assert.Empty(t, tree.CheckedFilePaths())
	assert.Equal(t, 2, rec.invalidated)
	st, _ = tree.State(Address{1})
	assert.Equal(t, Unchecked, st)
}

// nestedEmptyTree builds p/{e/, f.txt}.
func nestedEmptyTree(t *testing.T) *Tree {
	t.Helper()
	root := testutil.WriteTree(t, map[string]string{
		"p/e/":    "",
		"p/f.txt": "f",
	})
	tree := New(WithLogger(testutil.Logger()))
	require.Empty(t, tree.PopulateFromDirectory(root))
	return tree
}

func TestForcingAgreesOnEmptySubfolder(t *testing.T) {
	p, e, f := Address{0}, Address{0, 0}, Address{0, 1}

	viaFolder := nestedEmptyTree(t)
	viaFolder.SetChecked(p, Checked)

	viaBulk := nestedEmptyTree(t)
	viaBulk.SetAllStates(Checked)

	for name, tree := range map[string]*Tree{"set checked": viaFolder, "set all": viaBulk} {
		st, _ := tree.State(e)
		assert.Equal(t, Checked, st, "%s: empty subfolder", name)
		st, _ = tree.State(p)
		assert.Equal(t, Checked, st, "%s: folder", name)
	}
	assert.True(t, equalStates(viaFolder.Snapshot(), viaBulk.Snapshot()))

	// Re-aggregation from below must not undo the forced empty folder.
	for _, tree := range []*Tree{viaFolder, viaBulk} {
		tree.Toggle(f)
		tree.Toggle(f)
		tree.SelectByExtensionRecursive(p, ".txt")
		st, _ := tree.State(p)
		assert.Equal(t, Checked, st)
		st, _ = tree.State(e)
		assert.Equal(t, Checked, st)
	}

	viaFolder.SetChecked(p, Unchecked)
	viaBulk.SetAllStates(Unchecked)
	assert.True(t, equalStates(viaFolder.Snapshot(), viaBulk.Snapshot()))
	st, _ := viaBulk.State(e)
	assert.Equal(t, Unchecked, st)
}

func TestCheckPathsRestoresEmptyFolders(t *testing.T) {
	before := nestedEmptyTree(t)
	before.SetAllStates(Checked)
	prev := append(before.CheckedFilePaths(), before.CheckedEmptyFolders()...)
	require.Len(t, before.CheckedEmptyFolders(), 1)

	after := New(WithLogger(testutil.Logger()))
	after.PopulateFromDirectory(before.Root())
	assert.Equal(t, 2, after.CheckPaths(prev))

	st, _ := after.State(Address{0})
	assert.Equal(t, Checked, st)
	assert.Equal(t, before.Snapshot(), after.Snapshot())
}

func TestCheckPaths(t *testing.T) {
	tree, rec, root := sampleTree(t)

	n := tree.CheckPaths([]string{
		filepath.Join(root, "docs", "guide.md"),
		filepath.Join(root, "missing.txt"),
	})
	assert.Equal(t, 1, n)
	st, _ := tree.State(Address{0})
	assert.Equal(t, PartiallyChecked, st)
	assert.Equal(t, 1, rec.invalidated)
}

func TestCheckedFilePathsPreOrder(t *testing.T) {
	tree, _, root := sampleTree(t)
	tree.SetAllStates(Checked)
	assert.Equal(t, []string{
		filepath.Join(root, "docs", "sub", "deep.txt"),
		filepath.Join(root, "docs", "guide.md"),
		filepath.Join(root, "docs", "notes.TXT"),
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "b.go"),
	}, tree.CheckedFilePaths())
}

func TestExtensions(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"a.TXT": "", "b.txt": "", "c.Go": "", "Makefile": "", "sub/d.md": "",
	})
	tree := New()
	tree.PopulateFromDirectory(root)

	assert.Equal(t, []string{".go", ".txt"}, tree.Extensions(nil))
	assert.Equal(t, []string{".md"}, tree.Extensions(Address{0}))
	assert.Nil(t, tree.Extensions(Address{1}), "files have no extension list")
	assert.Nil(t, tree.Extensions(Address{99}))
}

func TestPopulateFromFlatFileList(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"x/one.txt": "1", "two.txt": "2", "dir/": "",
	})
	rec := &recorder{}
	tree := New(WithObserver(rec))
	tree.PopulateFromFlatFileList([]string{
		filepath.Join(root, "x", "one.txt"),
		filepath.Join(root, "missing.txt"),
		filepath.Join(root, "dir"),
		filepath.Join(root, "two.txt"),
	})

	snap := tree.Snapshot()
	assert.Equal(t, []string{"one.txt", "two.txt"}, names(snap))
	assert.Equal(t, Checked, snap.State)
	assert.Equal(t, "", tree.Root())
	assert.Equal(t, []string{
		filepath.Join(root, "x", "one.txt"),
		filepath.Join(root, "two.txt"),
	}, tree.CheckedFilePaths())
	assert.Equal(t, 1, rec.invalidated)
}

func TestPopulateFromListing(t *testing.T) {
	root := t.TempDir()
	tree := New()
	tree.PopulateFromListing(root, []string{
		"b.txt",
		filepath.Join("src", "main.go"),
		filepath.Join("src", "Alpha", "x.go"),
		"A.md",
		"../escape.txt",
		"b.txt",
	})

	snap := tree.Snapshot()
	assert.Equal(t, []string{"src", "A.md", "b.txt"}, names(snap))
	assert.Equal(t, []string{"Alpha", "main.go"}, names(snap.Children[0]))
	assert.Equal(t, filepath.Join(root, "src", "Alpha", "x.go"), snap.Children[0].Children[0].Children[0].Path)

	tree.Toggle(Address{0, 0})
	assert.Equal(t, []string{filepath.Join(root, "src", "Alpha", "x.go")}, tree.CheckedFilePaths())
}

func TestNodeView(t *testing.T) {
	tree, _, _ := sampleTree(t)
	v, ok := tree.Node(Address{0, 0})
	require.True(t, ok)
	assert.Equal(t, "sub", v.Name)
	assert.Equal(t, Address{0, 0}, v.Address)
	assert.Equal(t, Address{0, 0, 0}, v.Children[0].Address)

	_, ok = tree.Node(Address{5})
	assert.False(t, ok)
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0/3/1")
	require.NoError(t, err)
	assert.Equal(t, Address{0, 3, 1}, a)
	assert.Equal(t, "0/3/1", a.String())

	a, err = ParseAddress("")
	require.NoError(t, err)
	assert.Empty(t, a)

	_, err = ParseAddress("0/x")
	assert.Error(t, err)
	_, err = ParseAddress("-1")
	assert.Error(t, err)
}

func TestCheckStateText(t *testing.T) {
	var s CheckState
	require.NoError(t, s.UnmarshalText([]byte("Checked")))
	assert.Equal(t, Checked, s)
	require.NoError(t, s.UnmarshalText([]byte("partial")))
	assert.Equal(t, PartiallyChecked, s)
	assert.Error(t, s.UnmarshalText([]byte("maybe")))
}

func TestNormalizeExtension(t *testing.T) {
	assert.Equal(t, ".txt", NormalizeExtension("txt"))
	assert.Equal(t, ".txt", NormalizeExtension(" .txt "))
	assert.Equal(t, "", NormalizeExtension("."))
	assert.Equal(t, "", NormalizeExtension(""))
}
