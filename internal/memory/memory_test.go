package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func save(m *Memory, step int, feedback, result string) {
	inputs := map[string]any{"feedback": feedback}
	outputs := map[string]any{"result": result}
	m.SaveContext(inputs, outputs)
}

func TestLoadHistory_UnderK_ReturnsVerbatim(t *testing.T) {
	m := New(VariantStandard)
	save(m, 1, "", "artifact v1")
	save(m, 2, "needs more tests", "artifact v2")

	got := m.LoadHistory("tests", 5)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Step)
	assert.Equal(t, 2, got[1].Step)
}

func TestLoadHistory_SelectsSubsequenceAndInsertsLeadingPlaceholder(t *testing.T) {
	m := New(VariantStandard)
	save(m, 1, "unrelated noise", "v1")
	save(m, 2, "tests failing on add function", "v2")
	save(m, 3, "tests failing on subtract function", "v3")
	save(m, 4, "irrelevant chatter about styling", "v4")

	got := m.LoadHistory("tests failing add subtract", 2)

	// Real (non-placeholder) messages must be a step-ordered subsequence.
	var realSteps []int
	for _, msg := range got {
		if msg.Step != -1 {
			realSteps = append(realSteps, msg.Step)
		}
	}
	require.Len(t, realSteps, 2)
	assert.Less(t, realSteps[0], realSteps[1])

	if realSteps[0] > 1 {
		assert.Contains(t, got[0].Content, "skipping steps 1 to")
	}
}

func TestLoadHistory_InternalGapPlaceholder(t *testing.T) {
	m := New(VariantStandard)
	for i := 1; i <= 5; i++ {
		save(m, i, "feedback text mentioning widgets", "v")
	}
	// A gapped selection is built by hand here, so the gap detection logic
	// in insertPlaceholders is checked directly.
	selected := []Message{{Step: 1}, {Step: 3}}
	out := insertPlaceholders(selected)
	require.Len(t, out, 3)
	assert.Equal(t, -1, out[1].Step)
	assert.Contains(t, out[1].Content, "skipping steps 2 to 2")
}

func TestLoadHistory_SkeletonVariantAlwaysKeepsLast(t *testing.T) {
	m := New(VariantSkeleton)
	save(m, 1, "unrelated", "v1")
	save(m, 2, "totally unrelated to query", "v2")
	save(m, 3, "also unrelated", "v3")

	got := m.LoadHistory("completely different topic", 1)
	// k=1 with skeleton variant: top-(k-1)=0 from middle, plus last message
	// always; step 3 > 1, so a leading "skipping steps 1 to 2" placeholder
	// precedes it.
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[len(got)-1].Step)
}

func TestSaveContext_Step1UsesArtifactVerbatim(t *testing.T) {
	m := New(VariantStandard)
	save(m, 1, "", "initial artifact body")
	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "initial artifact body", msgs[0].Content)
}

func TestSaveContext_StepNIncludesFeedbackAndDiff(t *testing.T) {
	m := New(VariantStandard)
	save(m, 1, "", "def add(a, b):\n    pass")
	save(m, 2, "implement the body", "def add(a, b):\n    return a + b")

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "Feedback of step 1: implement the body")
	assert.Contains(t, msgs[1].Content, "Diff vs previous:")
}

func TestFullHistoryUnbounded(t *testing.T) {
	m := New(VariantStandard)
	for i := 0; i < 20; i++ {
		save(m, i, "f", "v")
	}
	assert.Len(t, m.FullHistory(), 20)
}
