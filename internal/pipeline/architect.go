package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"genforge/internal/extract"
	"genforge/internal/llm"
	"genforge/internal/logging"
	"genforge/internal/memory"
	"genforge/internal/prompt"
)

// archJudgeFieldLabels maps the architect judge's four feedback dimensions
// to the section headers its critique text uses.
var archJudgeFieldLabels = map[string]string{
	"requirement_coverage":                 "Requirement Coverage",
	"consistency_with_provided_information": "Consistency With Provided Information",
	"interface_consistency":                "Interface Consistency",
	"dependency_relations":                 "Dependency Relations",
}

// ArchitectLoop runs the generate-critique-refine cycle that produces an
// SSAT (C5). It owns its own stage memory, independent of the skeleton and
// code loops.
type ArchitectLoop struct {
	wrapper   *llm.Wrapper
	memory    *memory.Memory
	maxIter   int
	passScore int
	memoryTopK int
}

// NewArchitectLoop builds an architect loop bound to one LLM wrapper.
// memoryTopK non-positive falls back to 5, matching the other loops' default.
func NewArchitectLoop(wrapper *llm.Wrapper, maxIter, passScore, memoryTopK int) *ArchitectLoop {
	if memoryTopK <= 0 {
		memoryTopK = 5
	}
	return &ArchitectLoop{
		wrapper:    wrapper,
		memory:     memory.New(memory.VariantStandard),
		maxIter:    maxIter,
		passScore:  passScore,
		memoryTopK: memoryTopK,
	}
}

// Generate runs one architect generator step. Step 1 renders ssat_initial
// from the raw requirement documents; subsequent steps render ssat_refine
// against the prior SSAT, judge feedback, and retrieved stage-memory
// history.
func (l *ArchitectLoop) Generate(ctx context.Context, s State) (State, error) {
	s.ArchSteps++
	logging.Architect("generating architecture, step=%d", s.ArchSteps)

	var templateID string
	vars := map[string]any{
		"prd":       s.PRD,
		"uml_class": s.UMLClass,
		"uml_seq":   s.UMLSeq,
		"arch_doc":  s.ArchDoc,
		"step":      s.ArchSteps,
	}

	if s.ArchSteps == 1 {
		templateID = prompt.SSATInitial
	} else {
		templateID = prompt.SSATRefine
		vars["latest_arch"] = s.LatestArch
		vars["feedback"] = s.ArchFeedback
		history := l.memory.LoadHistory(s.ArchFeedback, l.memoryTopK)
		vars["history"] = renderHistory(history)
	}

	raw, err := l.wrapper.Invoke(ctx, templateID, vars)
	if err != nil {
		logging.ArchitectDebug("architect generate: llm call failed at step %d: %v", s.ArchSteps, err)
		raw = ""
	}

	ssat, ok := parseSSAT(raw)
	if !ok {
		logging.ArchitectDebug("architect output unparsable at step %d", s.ArchSteps)
		ssat = nil
	}

	l.memory.SaveContext(
		map[string]any{"feedback": s.ArchFeedback},
		map[string]any{"result": raw},
	)

	s.LatestArch = ssat
	return s, nil
}

// Judge runs one architect judge step and applies the iteration-cap
// forced-accept rule: an empty or unparsable SSAT always fails regardless
// of remaining iterations; otherwise, once ArchSteps reaches maxIter the
// decision is coerced to ForceAccept so the controller can proceed.
func (l *ArchitectLoop) Judge(ctx context.Context, s State) (State, error) {
	if len(s.LatestArch) == 0 {
		s.ArchDecision = Reject
		s.ArchFeedback = "The architecture output was empty or could not be parsed as valid JSON."
		return s, nil
	}

	if dupes := s.LatestArch.DuplicatePaths(); len(dupes) > 0 {
		s.ArchDecision = Reject
		s.ArchFeedback = fmt.Sprintf("Duplicate file paths in architecture output: %s", strings.Join(dupes, ", "))
		return s, nil
	}

	vars := map[string]any{
		"prd":       s.PRD,
		"uml_class": s.UMLClass,
		"uml_seq":   s.UMLSeq,
		"arch_doc":  s.ArchDoc,
		"arch":      s.LatestArch,
		"step":      s.ArchSteps,
	}
	raw, err := l.wrapper.Invoke(ctx, prompt.ArchJudge, vars)
	if err != nil {
		logging.ArchitectDebug("architect judge: llm call failed at step %d: %v", s.ArchSteps, err)
		raw = ""
	}

	critique := extract.ParseCritique(raw, archJudgeFieldLabels)
	feedback := renderFeedback(critique.Feedback)

	if critique.FinalScore >= l.passScore {
		s.ArchDecision = Accept
	} else if s.ArchSteps >= l.maxIter {
		s.ArchDecision = ForceAccept
	} else {
		s.ArchDecision = Reject
	}
	s.ArchFeedback = capArchFeedback(s.ArchDecision, feedback)

	logging.Architect("judged step=%d score=%d decision=%s", s.ArchSteps, critique.FinalScore, s.ArchDecision)
	return s, nil
}

// capArchFeedback prepends the forced-approval sentinel when the iteration
// cap fired (§4.5, §7 "Iteration cap exceeded").
func capArchFeedback(decision Decision, feedback string) string {
	if decision == ForceAccept {
		return "Maximum architecture iterations reached, forcing approval. " + feedback
	}
	return feedback
}

func parseSSAT(raw string) (SSAT, bool) {
	value, found := extract.FencedJSON(raw)
	if !found {
		return nil, false
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	var ssat SSAT
	if err := json.Unmarshal(data, &ssat); err != nil {
		return nil, false
	}
	return ssat, true
}

func renderHistory(messages []memory.Message) string {
	var out string
	for _, m := range messages {
		out += m.Content + "\n"
	}
	return out
}
