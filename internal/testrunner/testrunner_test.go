package testrunner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genforge/internal/dataset"
)

func TestParseSummary_PrefersCollectedCount(t *testing.T) {
	raw := "collected 5 items\n\n3 passed, 2 failed in 0.12s\n"
	passed, total := parseSummary(raw)
	assert.Equal(t, 3, passed)
	assert.Equal(t, 5, total)
}

func TestParseSummary_FallsBackToPassedFailedSkipped(t *testing.T) {
	raw := "2 passed, 1 failed, 1 skipped\n"
	passed, total := parseSummary(raw)
	assert.Equal(t, 2, passed)
	assert.Equal(t, 4, total)
}

func TestParseSummary_NoMatchesYieldsZero(t *testing.T) {
	passed, total := parseSummary("nothing useful here")
	assert.Equal(t, 0, passed)
	assert.Equal(t, 0, total)
}

func TestCopyFixtures_CopiesRequiredFilesAndCheckTestsDir(t *testing.T) {
	repoDir := t.TempDir()
	outputDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "helper.py"), []byte("x = 1\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(repoDir, "tests"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "tests", "test_x.py"), []byte("def test_x(): pass\n"), 0644))

	repo := dataset.Repo{
		Dir: repoDir,
		Config: dataset.RepoConfig{
			RequiredFiles: []string{"helper.py"},
			CheckTestsDir: "tests",
		},
	}

	require.NoError(t, copyFixtures(repo, outputDir))

	helperData, err := os.ReadFile(filepath.Join(outputDir, "helper.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(helperData))

	testData, err := os.ReadFile(filepath.Join(outputDir, "tests", "test_x.py"))
	require.NoError(t, err)
	assert.Equal(t, "def test_x(): pass\n", string(testData))
}

func TestRun_ParsesSummaryFromConfiguredCommand(t *testing.T) {
	repoDir := t.TempDir()
	outputDir := t.TempDir()
	repo := dataset.Repo{
		Name: "widget",
		Dir:  repoDir,
		Config: dataset.RepoConfig{
			TestCommand: []string{"sh", "-c", "echo 'collected 2 items'; echo '2 passed in 0.01s'"},
		},
	}

	result, err := Run(context.Background(), repo, outputDir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 2, result.Total)
	assert.Contains(t, result.RawText, "collected 2 items")
}

func TestRun_NonZeroExitStillParsesSummary(t *testing.T) {
	repoDir := t.TempDir()
	outputDir := t.TempDir()
	repo := dataset.Repo{
		Name: "widget",
		Dir:  repoDir,
		Config: dataset.RepoConfig{
			TestCommand: []string{"sh", "-c", "echo 'collected 2 items'; echo '1 passed, 1 failed'; exit 1"},
		},
	}

	result, err := Run(context.Background(), repo, outputDir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Total)
}
