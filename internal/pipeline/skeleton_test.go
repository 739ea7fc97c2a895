package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fenced(code string) string {
	return "```python\n" + code + "\n```"
}

func oneFileSSAT(path string) SSAT {
	return SSAT{
		{Name: "core", Files: []File{{Name: path, Path: path}}},
	}
}

func TestSkeleton_S3_CompileFailThenRecover(t *testing.T) {
	dir := t.TempDir()
	client := &stubClient{responses: []string{
		fenced("def f(:"),
		fenced("def f(): pass"),
		"Final Score: 9",
	}}
	loop := NewSkeletonLoop(testWrapper(client), dir, 3, 8, 5)
	ctx := context.Background()

	s := State{LatestArch: oneFileSSAT("a.py")}

	s, err := loop.Generate(ctx, s)
	require.NoError(t, err)
	require.Len(t, s.LatestSkeleton, 1)

	s, err = loop.Judge(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Reject, s.SkeletonDecision)
	assert.Contains(t, s.SkeletonFeedback, "a.py")

	s, err = loop.Generate(ctx, s)
	require.NoError(t, err)

	s, err = loop.Judge(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Accept, s.SkeletonDecision)
}

func TestSkeleton_PersistFailureOnEmptyRecords(t *testing.T) {
	dir := t.TempDir()
	client := &stubClient{}
	loop := NewSkeletonLoop(testWrapper(client), dir, 3, 8, 5)
	ctx := context.Background()

	s := State{LatestSkeleton: nil}
	s, err := loop.Judge(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Reject, s.SkeletonDecision)
	assert.Equal(t, "Skeleton JSON parsing failed.", s.SkeletonFeedback)
}

func TestSkeleton_CapForcesAccept(t *testing.T) {
	dir := t.TempDir()
	// Every generation is valid syntax but the judge always scores low.
	client := &stubClient{responses: []string{
		fenced("def f(): pass"), "Final Score: 2",
		fenced("def f(): pass"), "Final Score: 2",
		fenced("def f(): pass"), "Final Score: 2",
	}}
	loop := NewSkeletonLoop(testWrapper(client), dir, 3, 8, 5)
	ctx := context.Background()

	s := State{LatestArch: oneFileSSAT("a.py")}
	for i := 0; i < 3; i++ {
		var err error
		s, err = loop.Generate(ctx, s)
		require.NoError(t, err)
		s, err = loop.Judge(ctx, s)
		require.NoError(t, err)
	}
	assert.Equal(t, ForceAccept, s.SkeletonDecision)
	assert.Equal(t, 3, s.SkeletonSteps)
	assert.Contains(t, s.SkeletonFeedback, "Maximum skeleton iterations reached")
}

func TestSkeleton_FilesDeletedAfterJudging(t *testing.T) {
	dir := t.TempDir()
	client := &stubClient{responses: []string{fenced("def f(): pass"), "Final Score: 9"}}
	loop := NewSkeletonLoop(testWrapper(client), dir, 3, 8, 5)
	ctx := context.Background()

	s := State{LatestArch: oneFileSSAT("a.py")}
	s, err := loop.Generate(ctx, s)
	require.NoError(t, err)
	s, err = loop.Judge(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Accept, s.SkeletonDecision)

	_, statErr := os.Stat(dir + "/a.py")
	assert.Error(t, statErr, "skeleton judge must delete files it wrote before returning")
}
