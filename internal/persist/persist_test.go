package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFiles_CreatesNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	err := WriteFiles(dir, []FileEntry{
		{Path: "pkg/a.py", Content: "x = 1\n"},
		{Path: "b.py", Content: "y = 2\n"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "pkg", "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))
}

func TestDeleteFiles_IgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFiles(dir, []FileEntry{{Path: "a.py", Content: "x = 1\n"}}))

	DeleteFiles(dir, []FileEntry{
		{Path: "a.py"},
		{Path: "does/not/exist.py"},
	})

	_, err := os.Stat(filepath.Join(dir, "a.py"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteJSON_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tmp_files", "architecture_1.json")
	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, WriteJSON(path, payload{Name: "core"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name": "core"`)
}

func TestAppendJSONL_AppendsOneLinePerCall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tmp_files", "generated_code_1.jsonl")
	require.NoError(t, AppendJSONL(path, map[string]string{"path": "a.py"}))
	require.NoError(t, AppendJSONL(path, map[string]string{"path": "b.py"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "a.py")
	assert.Contains(t, lines[1], "b.py")
}

func TestAppendTestLog_AppendsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_log.log")
	require.NoError(t, AppendTestLog(path, "repo-a: passed 3 of 3"))
	require.NoError(t, AppendTestLog(path, "repo-b: passed 1 of 2"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	require.Len(t, lines, 2)
	assert.Equal(t, "repo-a: passed 3 of 3", lines[0])
	assert.Equal(t, "repo-b: passed 1 of 2", lines[1])
}

func TestSnapshotPaths_AreNamespacedUnderTmpFiles(t *testing.T) {
	root := "/out/widget"
	assert.Equal(t, "/out/widget/tmp_files/architecture_2.json", ArchitectureSnapshotPath(root, 2))
	assert.Equal(t, "/out/widget/tmp_files/skeleton_3.json", SkeletonSnapshotPath(root, 3))
	assert.Equal(t, "/out/widget/tmp_files/generated_code_1.jsonl", GeneratedCodeSnapshotPath(root, 1))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	return lines
}
