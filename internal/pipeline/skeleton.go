package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"genforge/internal/extract"
	"genforge/internal/llm"
	"genforge/internal/logging"
	"genforge/internal/memory"
	"genforge/internal/persist"
	"genforge/internal/prompt"
)

var skeletonJudgeFieldLabels = map[string]string{
	"directory_structure_matching":            "Directory Structure Matching",
	"interface_and_call_relationship_matching": "Interface And Call Relationship Matching",
}

// SkeletonLoop runs the generate-critique-refine cycle that turns an SSAT
// into per-file stub code (C6).
type SkeletonLoop struct {
	wrapper    *llm.Wrapper
	memory     *memory.Memory
	outputDir  string
	maxIter    int
	passScore  int
	memoryTopK int
}

// NewSkeletonLoop builds a skeleton loop bound to one LLM wrapper and the
// repository's materialized output directory. memoryTopK non-positive falls
// back to 5.
func NewSkeletonLoop(wrapper *llm.Wrapper, outputDir string, maxIter, passScore, memoryTopK int) *SkeletonLoop {
	if memoryTopK <= 0 {
		memoryTopK = 5
	}
	return &SkeletonLoop{
		wrapper:    wrapper,
		memory:     memory.New(memory.VariantSkeleton),
		outputDir:  outputDir,
		maxIter:    maxIter,
		passScore:  passScore,
		memoryTopK: memoryTopK,
	}
}

// flattenSSAT returns every File in the SSAT, in module-then-file order.
func flattenSSAT(ssat SSAT) []File {
	var files []File
	for _, mod := range ssat {
		files = append(files, mod.Files...)
	}
	return files
}

// Generate runs one skeleton generator step: for each file in the SSAT, in
// order, render a per-file prompt that includes every skeleton emitted
// earlier in this same step as context, extract the fenced code block, and
// append it to the step's skeleton record.
func (l *SkeletonLoop) Generate(ctx context.Context, s State) (State, error) {
	s.SkeletonSteps++
	logging.Skeleton("generating skeleton, step=%d", s.SkeletonSteps)

	files := flattenSSAT(s.LatestArch)
	var records []SkeletonRecord

	var history []memory.Message
	if s.SkeletonSteps > 1 {
		history = l.memory.LoadHistory(s.SkeletonFeedback, l.memoryTopK)
	}

	for _, f := range files {
		vars := map[string]any{
			"file":    f,
			"ssat":    s.LatestArch,
			"context": renderSkeletonContext(records),
			"step":    s.SkeletonSteps,
		}

		templateID := prompt.SkeletonInitial
		if s.SkeletonSteps > 1 {
			templateID = prompt.SkeletonRefine
			vars["previous_skeleton"] = s.LatestSkeleton
			vars["feedback"] = s.SkeletonFeedback
			vars["history"] = renderHistory(history)
		}

		raw, err := l.wrapper.Invoke(ctx, templateID, vars)
		var code string
		if err != nil {
			logging.SkeletonDebug("skeleton generate %s: llm call failed at step %d: %v", f.Path, s.SkeletonSteps, err)
		} else {
			code = extract.FencedCode(raw)
		}
		records = append(records, SkeletonRecord{Path: f.Path, Skeleton: code})
	}

	l.memory.SaveContext(
		map[string]any{"feedback": s.SkeletonFeedback},
		map[string]any{"result": renderSkeletonRecords(records)},
	)

	s.LatestSkeleton = records
	return s, nil
}

// Judge runs the three gates in order (§4.6): persistable, compile, score.
// Each gate returns immediately on failure with its feedback; the score
// gate always cleans up the files it wrote before returning.
func (l *SkeletonLoop) Judge(ctx context.Context, s State) (State, error) {
	entries := toFileEntries(s.LatestSkeleton)

	if !persistable(s.LatestSkeleton) {
		s.SkeletonDecision = l.decide(s.SkeletonSteps, false)
		s.SkeletonFeedback = capFeedback(s.SkeletonSteps, l.maxIter, s.SkeletonDecision, "Skeleton JSON parsing failed.")
		return s, nil
	}

	if err := persist.WriteFiles(l.outputDir, entries); err != nil {
		s.SkeletonDecision = l.decide(s.SkeletonSteps, false)
		s.SkeletonFeedback = capFeedback(s.SkeletonSteps, l.maxIter, s.SkeletonDecision, "Skeleton JSON parsing failed.")
		return s, nil
	}

	if compileErrs := compileCheck(l.outputDir, s.LatestSkeleton); compileErrs != "" {
		persist.DeleteFiles(l.outputDir, entries)
		s.SkeletonDecision = l.decide(s.SkeletonSteps, false)
		s.SkeletonFeedback = capFeedback(s.SkeletonSteps, l.maxIter, s.SkeletonDecision, compileErrs)
		return s, nil
	}

	persist.DeleteFiles(l.outputDir, entries)

	vars := map[string]any{
		"ssat":     s.LatestArch,
		"skeleton": s.LatestSkeleton,
		"step":     s.SkeletonSteps,
	}
	raw, err := l.wrapper.Invoke(ctx, prompt.SkeletonJudge, vars)
	if err != nil {
		logging.SkeletonDebug("skeleton judge: llm call failed at step %d: %v", s.SkeletonSteps, err)
		raw = ""
	}

	critique := extract.ParseCritique(raw, skeletonJudgeFieldLabels)
	s.SkeletonFeedback = renderFeedback(critique.Feedback)

	accept := critique.FinalScore >= l.passScore
	s.SkeletonDecision = l.decide(s.SkeletonSteps, accept)
	s.SkeletonFeedback = capFeedback(s.SkeletonSteps, l.maxIter, s.SkeletonDecision, s.SkeletonFeedback)

	logging.Skeleton("judged step=%d score=%d decision=%s", s.SkeletonSteps, critique.FinalScore, s.SkeletonDecision)
	return s, nil
}

func (l *SkeletonLoop) decide(step int, accept bool) Decision {
	if accept {
		return Accept
	}
	if step >= l.maxIter {
		return ForceAccept
	}
	return Reject
}

func capFeedback(step, maxIter int, decision Decision, feedback string) string {
	if decision == ForceAccept {
		return "Maximum skeleton iterations reached, forcing approval. " + feedback
	}
	return feedback
}

func persistable(records []SkeletonRecord) bool {
	if len(records) == 0 {
		return false
	}
	for _, r := range records {
		if strings.TrimSpace(r.Path) == "" {
			return false
		}
	}
	return true
}

func toFileEntries(records []SkeletonRecord) []persist.FileEntry {
	entries := make([]persist.FileEntry, len(records))
	for i, r := range records {
		entries[i] = persist.FileEntry{Path: r.Path, Content: r.Skeleton}
	}
	return entries
}

// compileCheck walks every written .py skeleton record and attempts to parse
// it with the target language's grammar, standing in for a true byte-compile
// step (§4.6 gate 2; see the domain-stack table in SPEC_FULL.md, where
// tree-sitter syntax validity substitutes for the target compiler API). Returns a concatenated error
// report, or "" if every file parses clean.
func compileCheck(outputDir string, records []SkeletonRecord) string {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	var errs []string
	for _, r := range records {
		if !strings.HasSuffix(r.Path, ".py") {
			continue
		}
		target := filepath.Join(outputDir, filepath.FromSlash(r.Path))
		data, err := os.ReadFile(target)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: could not read written file: %v", r.Path, err))
			continue
		}
		tree, err := parser.ParseCtx(context.Background(), nil, data)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: parse error: %v", r.Path, err))
			continue
		}
		if tree.RootNode().HasError() {
			errs = append(errs, fmt.Sprintf("%s: syntax error near line %d", r.Path, firstErrorLine(tree.RootNode())))
		}
		tree.Close()
	}
	return strings.Join(errs, "\n")
}

func firstErrorLine(node *sitter.Node) int {
	if node.HasError() && node.ChildCount() == 0 {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		if c.HasError() {
			return firstErrorLine(c)
		}
	}
	return int(node.StartPoint().Row) + 1
}

func renderSkeletonContext(records []SkeletonRecord) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "# %s\n%s\n\n", r.Path, r.Skeleton)
	}
	return b.String()
}

func renderSkeletonRecords(records []SkeletonRecord) string {
	return renderSkeletonContext(records)
}
