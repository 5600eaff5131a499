//go:build unix

package selection

import (
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/collate/internal/testutil"
)

func TestPopulateFromDirectory_SkipsNonRegularFiles(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"a.txt":     "A",
		"sub/b.txt": "B",
	})
	require.NoError(t, syscall.Mkfifo(filepath.Join(root, "pipe"), 0o644))
	require.NoError(t, syscall.Mkfifo(filepath.Join(root, "sub", "queue"), 0o644))

	tree := New(WithLogger(testutil.Logger()))
	diags := tree.PopulateFromDirectory(root)

	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Contains(t, d.Error(), "not a regular file")
	}
	assert.Equal(t, 2, tree.FileCount())
	assert.Equal(t, []string{"sub", "a.txt"}, names(tree.Snapshot()))

	tree.SetAllStates(Checked)
	assert.Equal(t, []string{
		filepath.Join(root, "sub", "b.txt"),
		filepath.Join(root, "a.txt"),
	}, tree.CheckedFilePaths())
}
