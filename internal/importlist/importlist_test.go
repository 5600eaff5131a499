package importlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/collate/internal/testutil"
)

func fixture(t *testing.T) string {
	t.Helper()
	return testutil.WriteTree(t, map[string]string{
		"testfile1.txt":        "content",
		"another file.log":     "log data",
		"subfolder/nested.dat": "nested",
		"config_dir/.keep":     "",
	})
}

func TestValidAbsolutePaths(t *testing.T) {
	dir := fixture(t)
	f1 := filepath.Join(dir, "testfile1.txt")
	f2 := filepath.Join(dir, "another file.log")
	doc := `{ "files_to_merge": [` + quote(f1) + `, ` + quote(f2) + `] }`

	paths, diags := Parse([]byte(doc), filepath.Join(dir, "test.json"))
	assert.Empty(t, diags)
	assert.Equal(t, []string{f1, f2}, paths)
}

func TestRelativePaths(t *testing.T) {
	dir := fixture(t)
	doc := `{ "files_to_merge": ["testfile1.txt", "subfolder/nested.dat", "./another file.log"] }`

	paths, diags := Parse([]byte(doc), filepath.Join(dir, "myconfig.json"))
	assert.Empty(t, diags)
	assert.Equal(t, []string{
		filepath.Join(dir, "testfile1.txt"),
		filepath.Join(dir, "subfolder", "nested.dat"),
		filepath.Join(dir, "another file.log"),
	}, paths)
}

func TestPathNormalization(t *testing.T) {
	dir := fixture(t)
	doc := `{ "files_to_merge": ["../testfile1.txt"] }`

	paths, diags := Parse([]byte(doc), filepath.Join(dir, "config_dir", "myconfig.json"))
	assert.Empty(t, diags)
	assert.Equal(t, []string{filepath.Join(dir, "testfile1.txt")}, paths)
}

func TestNonExistentFile(t *testing.T) {
	dir := fixture(t)
	ghost := filepath.Join(dir, "ghost.txt")
	doc := `{ "files_to_merge": [` + quote(filepath.Join(dir, "testfile1.txt")) + `, ` + quote(ghost) + `] }`

	paths, diags := Parse([]byte(doc), filepath.Join(dir, "test.json"))
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0], "File not found")
	assert.Contains(t, diags[0], ghost)
	assert.Len(t, paths, 1)
}

func TestInvalidEntries(t *testing.T) {
	dir := fixture(t)
	sub := filepath.Join(dir, "subfolder")
	doc := `{ "files_to_merge": [123, ` + quote(filepath.Join(dir, "testfile1.txt")) + `, {"obj": "x"}, ` + quote(sub) + `] }`

	paths, diags := Parse([]byte(doc), filepath.Join(dir, "test.json"))
	assert.Equal(t, []string{filepath.Join(dir, "testfile1.txt")}, paths)
	require.Len(t, diags, 3)
	assert.Equal(t, 2, countContaining(diags, "Skipping non-string entry"))
	assert.Equal(t, 1, countContaining(diags, "Path is not a file"))
	assert.Equal(t, 1, countContaining(diags, sub))
}

func TestMissingKey(t *testing.T) {
	paths, diags := Parse([]byte(`{ "another_key": ["path/to/file.txt"] }`), "test.json")
	require.NotEmpty(t, diags)
	assert.Contains(t, diags[0], "Invalid JSON Structure")
	assert.Contains(t, diags[0], FilesKey)
	assert.Empty(t, paths)
}

func TestWrongType(t *testing.T) {
	_, diags := Parse([]byte(`{ "files_to_merge": "not-an-array" }`), "test.json")
	require.Len(t, diags, 1)
	assert.Equal(t, "Invalid JSON Structure: Must contain 'files_to_merge' key with an array.", diags[0])
}

func TestRootNotObject(t *testing.T) {
	_, diags := Parse([]byte(`["a.txt"]`), "test.json")
	require.Len(t, diags, 1)
	assert.Equal(t, "Invalid JSON Format: Root is not an object.", diags[0])
}

func TestMalformed(t *testing.T) {
	paths, diags := Parse([]byte(`{ "files_to_merge": ["file1.txt", ]`), "test.json")
	require.NotEmpty(t, diags)
	assert.True(t, strings.HasPrefix(diags[0], "JSON Parse Error"))
	assert.Empty(t, paths)
}

func TestEmptyArray(t *testing.T) {
	paths, diags := Parse([]byte(`{ "files_to_merge": [] }`), "test.json")
	assert.Empty(t, diags)
	assert.Empty(t, paths)
}

func TestLoad(t *testing.T) {
	dir := fixture(t)
	jsonPath := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"files_to_merge":["testfile1.txt"]}`), 0o644))

	paths, diags := Load(jsonPath)
	assert.Empty(t, diags)
	assert.Equal(t, []string{filepath.Join(dir, "testfile1.txt")}, paths)

	_, diags = Load(filepath.Join(dir, "absent.json"))
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0], "Could not read import file")
}

func quote(s string) string {
	// Backslashes in Windows paths must be escaped inside JSON strings.
	return `"` + strings.ReplaceAll(s, `\`, `\\`) + `"`
}

func countContaining(list []string, sub string) int {
	n := 0
	for _, s := range list {
		if strings.Contains(s, sub) {
			n++
		}
	}
	return n
}
