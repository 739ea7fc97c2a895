package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFencedCode(t *testing.T) {
	text := "here you go:\n```python\ndef f():\n    pass\n```\nthanks"
	assert.Equal(t, "def f():\n    pass", FencedCode(text))
}

func TestFencedCode_NoBlock(t *testing.T) {
	assert.Equal(t, "", FencedCode("no code here"))
}

func TestFencedJSON_Strict(t *testing.T) {
	text := "```json\n[{\"path\": \"a.py\"}]\n```"
	val, ok := FencedJSON(text)
	require.True(t, ok)
	arr, ok := val.([]any)
	require.True(t, ok)
	require.Len(t, arr, 1)
}

func TestFencedJSON_RepairsTrailingComma(t *testing.T) {
	text := "```json\n[{\"path\": \"a.py\",}]\n```"
	val, ok := FencedJSON(text)
	require.True(t, ok)
	arr := val.([]any)
	require.Len(t, arr, 1)
}

func TestFencedJSON_RepairsUnclosedBrackets(t *testing.T) {
	text := "```json\n[{\"path\": \"a.py\"\n```"
	_, ok := FencedJSON(text)
	assert.True(t, ok)
}

func TestFencedJSON_TotalOnGarbage(t *testing.T) {
	// Must never panic regardless of input.
	inputs := []string{"", "```json```", "}{][", "\x00\x01binary", "```json\nnot json at all\n```"}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			FencedJSON(in)
		})
	}
}

func TestFirstJSONArray(t *testing.T) {
	text := "thoughts...\n[\"a.py\", \"b.py\"]\nmore text"
	arr := FirstJSONArray(text)
	require.Len(t, arr, 2)
	assert.Equal(t, "a.py", arr[0])
}

func TestFirstJSONArray_Empty(t *testing.T) {
	assert.Nil(t, FirstJSONArray("no array at all"))
}

func TestParseCritique(t *testing.T) {
	text := "Requirement Coverage: good\nFinal Score: **9**"
	c := ParseCritique(text, map[string]string{
		"requirement_coverage": "Requirement Coverage",
		"consistency":          "Consistency",
	})
	assert.Equal(t, "good", c.Feedback["requirement_coverage"])
	assert.Equal(t, "", c.Feedback["consistency"])
	assert.Equal(t, 9, c.FinalScore)
}

func TestParseCritique_MissingScoreDefaultsZero(t *testing.T) {
	c := ParseCritique("no score line here", map[string]string{"x": "X"})
	assert.Equal(t, 0, c.FinalScore)
}

func TestParseCritique_TotalOnGarbage(t *testing.T) {
	assert.NotPanics(t, func() {
		ParseCritique("\x00\x01\x02", map[string]string{"x": "X"})
	})
}
