// Package persist materializes generator output onto disk: skeleton and
// code records under a repository's output directory, the per-iteration
// tmp_files snapshots, and the shared test_log.log (§6 "Persisted state per
// repository"). It knows nothing about the pipeline's state machine; it
// only writes and removes plain files, so the pipeline packages can call it
// without an import cycle.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"genforge/internal/logging"
)

// FileEntry is one path+content pair to materialize under an output
// directory. Path is always project-relative and uses forward slashes.
type FileEntry struct {
	Path    string
	Content string
}

// WriteFiles writes every entry under dir, creating parent directories as
// needed. On the first failure it returns immediately without attempting to
// clean up partially written files; callers that need an all-or-nothing
// write should call DeleteFiles themselves on error.
func WriteFiles(dir string, files []FileEntry) error {
	for _, f := range files {
		target := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("persist: creating directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0644); err != nil {
			return fmt.Errorf("persist: writing %s: %w", f.Path, err)
		}
	}
	logging.PipelineDebug("wrote %d files under %s", len(files), dir)
	return nil
}

// DeleteFiles removes every entry's materialized file under dir. Missing
// files are not an error: the skeleton judge calls this after a compile
// check that may have already observed (but not removed) the files.
func DeleteFiles(dir string, files []FileEntry) {
	for _, f := range files {
		target := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			logging.PipelineError("removing %s: %v", target, err)
		}
	}
}

// WriteJSON marshals v as indented JSON to path, creating parent
// directories as needed. Used for the tmp_files/architecture_N.json,
// tmp_files/skeleton_N.json snapshots.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshaling %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("persist: creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("persist: writing %s: %w", path, err)
	}
	return nil
}

// AppendJSONL appends v as a single JSON line to path, creating the file and
// parent directories if needed. Used for tmp_files/generated_code_N.jsonl,
// one line per code record written this step.
func AppendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist: marshaling %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("persist: creating directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("persist: opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("persist: appending to %s: %w", path, err)
	}
	return nil
}

// AppendTestLog appends a block of text to the dataset-output-root-level
// test_log.log shared across every repository's runs in the dataset.
func AppendTestLog(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("persist: creating directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("persist: opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(text + "\n"); err != nil {
		return fmt.Errorf("persist: appending to %s: %w", path, err)
	}
	return nil
}

// TmpFilesDir returns the tmp_files directory for a repository output dir.
func TmpFilesDir(repoOutputDir string) string {
	return filepath.Join(repoOutputDir, "tmp_files")
}

// ArchitectureSnapshotPath returns the path for the Nth architect iteration snapshot.
func ArchitectureSnapshotPath(repoOutputDir string, n int) string {
	return filepath.Join(TmpFilesDir(repoOutputDir), fmt.Sprintf("architecture_%d.json", n))
}

// SkeletonSnapshotPath returns the path for the Nth skeleton iteration snapshot.
func SkeletonSnapshotPath(repoOutputDir string, n int) string {
	return filepath.Join(TmpFilesDir(repoOutputDir), fmt.Sprintf("skeleton_%d.json", n))
}

// GeneratedCodeSnapshotPath returns the path for the Nth code iteration snapshot.
func GeneratedCodeSnapshotPath(repoOutputDir string, n int) string {
	return filepath.Join(TmpFilesDir(repoOutputDir), fmt.Sprintf("generated_code_%d.jsonl", n))
}
