// Package memory implements per-stage memory (C3): an append-only turn log
// plus a compact summary log used for retrieval. Retrieval ranks summaries
// against the current judge feedback with BM25 (Okapi) lexical scoring, the
// same scheme the reference memory managers use, and fills any gap between
// selected steps with a synthetic "[...skipping steps A to B...]"
// placeholder so the generator can see it was given a partial view.
package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"genforge/internal/diff"
	"genforge/internal/logging"
)

// Turn is one raw (input, output) record for a stage, in save order.
type Turn struct {
	Step    int
	Inputs  map[string]any
	Outputs map[string]any
}

// Message is the compact, retrievable summary derived from a Turn.
type Message struct {
	Step         int
	FeedbackText string
	Content      string
}

// Memory holds the full turn history and the compact message log for one
// stage session. It is not safe for concurrent use by design: stage memory
// is an in-process, single-threaded-per-run structure scoped to one stage of
// one repository: each loop owns its own Memory, and the CLI builds fresh
// loops for every repository.
type Memory struct {
	Variant     Variant
	fullHistory []Turn
	messages    []Message
	step        int
}

// Variant selects the stage-specific retrieval rule. Skeleton memory always
// retains its most recent message and draws BM25 top-(k-1) from the rest;
// architect and code memory draw BM25 top-k from the whole set.
type Variant int

const (
	VariantStandard Variant = iota
	VariantSkeleton
)

// New creates an empty memory for the given variant.
func New(variant Variant) *Memory {
	return &Memory{Variant: variant}
}

// SaveContext appends a new turn and derives its summary message.
//
// Step 1's content is the rendered initial artifact (outputs["result"]
// rendered via renderArtifact). Step > 1's content combines the prior
// feedback with a diff against the previous artifact; if both the previous
// and current test status are present (code loop only), a test-status
// transition line is appended.
func (m *Memory) SaveContext(inputs, outputs map[string]any) {
	m.step++
	m.fullHistory = append(m.fullHistory, Turn{Step: m.step, Inputs: inputs, Outputs: outputs})

	var content string
	feedback, _ := inputs["feedback"].(string)

	if m.step == 1 {
		content = renderArtifact(outputs["result"])
	} else {
		prevArtifact := renderArtifact(previousResult(m.fullHistory))
		curArtifact := renderArtifact(outputs["result"])
		d := diff.UnifiedDiff(fmt.Sprintf("step_%d", m.step), prevArtifact, curArtifact)

		var b strings.Builder
		fmt.Fprintf(&b, "Feedback of step %d: %s\n", m.step-1, feedback)
		fmt.Fprintf(&b, "Diff vs previous: %s", d)

		if prevStatus, curStatus, ok := testStatusTransition(inputs, outputs); ok {
			fmt.Fprintf(&b, "\nTest pass status changed from %s to %s", prevStatus, curStatus)
		}
		content = b.String()
	}

	m.messages = append(m.messages, Message{Step: m.step, FeedbackText: feedback, Content: content})
	logging.MemoryDebug("saved turn step=%d feedback_len=%d content_len=%d", m.step, len(feedback), len(content))
}

func previousResult(history []Turn) any {
	if len(history) < 2 {
		return nil
	}
	return history[len(history)-2].Outputs["result"]
}

func testStatusTransition(inputs, outputs map[string]any) (prev, cur string, ok bool) {
	prevStatus, _ := inputs["test_status"].(string)
	curStatus, _ := outputs["test_status"].(string)
	if prevStatus == "" || curStatus == "" {
		return "", "", false
	}
	return prevStatus, curStatus, true
}

func renderArtifact(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// LoadHistory returns at most k real messages (plus synthetic gap
// placeholders) relevant to queryFeedback. When len(messages) <= k, the
// entire message log is returned verbatim with no placeholders.
func (m *Memory) LoadHistory(queryFeedback string, k int) []Message {
	if len(m.messages) <= k {
		return append([]Message(nil), m.messages...)
	}

	var selected []Message
	if m.Variant == VariantSkeleton {
		last := m.messages[len(m.messages)-1]
		middle := m.messages[:len(m.messages)-1]
		top := bm25Top(middle, queryFeedback, k-1)
		selected = append(top, last)
	} else {
		selected = bm25Top(m.messages, queryFeedback, k)
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].Step < selected[j].Step })
	return insertPlaceholders(selected)
}

// insertPlaceholders adds a synthetic "[...skipping steps A to B...]"
// message wherever consecutive selected steps have a gap, including a
// leading placeholder when the first selected step is greater than 1.
func insertPlaceholders(selected []Message) []Message {
	if len(selected) == 0 {
		return selected
	}
	var out []Message
	if selected[0].Step > 1 {
		out = append(out, placeholder(1, selected[0].Step-1))
	}
	out = append(out, selected[0])
	for i := 1; i < len(selected); i++ {
		prevStep := selected[i-1].Step
		step := selected[i].Step
		if step-prevStep > 1 {
			out = append(out, placeholder(prevStep+1, step-1))
		}
		out = append(out, selected[i])
	}
	return out
}

func placeholder(from, to int) Message {
	return Message{Step: -1, Content: fmt.Sprintf("[...skipping steps %d to %d...]", from, to)}
}

// FullHistory returns the unbounded raw turn log.
func (m *Memory) FullHistory() []Turn { return append([]Turn(nil), m.fullHistory...) }

// Messages returns the compact summary log, unfiltered.
func (m *Memory) Messages() []Message { return append([]Message(nil), m.messages...) }

// bm25Top scores candidates against query with Okapi BM25 over their
// FeedbackText and returns the top n by score, original relative order
// preserved for ties.
func bm25Top(candidates []Message, query string, n int) []Message {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	docs := make([][]string, len(candidates))
	var totalLen float64
	for i, c := range candidates {
		docs[i] = tokenize(c.FeedbackText)
		totalLen += float64(len(docs[i]))
	}
	avgLen := totalLen / float64(len(candidates))
	queryTerms := tokenize(query)

	df := make(map[string]int)
	for _, d := range docs {
		seen := make(map[string]bool)
		for _, term := range d {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	const k1 = 1.5
	const b = 0.75
	N := float64(len(docs))

	type scored struct {
		idx   int
		score float64
	}
	results := make([]scored, len(candidates))
	for i, d := range docs {
		freq := make(map[string]int)
		for _, term := range d {
			freq[term]++
		}
		var score float64
		for _, qt := range queryTerms {
			f := float64(freq[qt])
			if f == 0 {
				continue
			}
			n := float64(df[qt])
			idf := math.Log((N-n+0.5)/(n+0.5) + 1)
			denom := f + k1*(1-b+b*float64(len(d))/avgLen)
			score += idf * (f * (k1 + 1)) / denom
		}
		results[i] = scored{idx: i, score: score}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if n > len(results) {
		n = len(results)
	}
	out := make([]Message, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[results[i].idx]
	}
	return out
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}
