package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"genforge/internal/astextract"
	"genforge/internal/diff"
	"genforge/internal/extract"
	"genforge/internal/llm"
	"genforge/internal/logging"
	"genforge/internal/memory"
	"genforge/internal/persist"
	"genforge/internal/prompt"
	"genforge/internal/schedule"
	"genforge/internal/testrunner"
)

// contextTailSize is the number of most-recently emitted files kept in full
// in a code-generation step's context; everything before that is replaced
// with an API-only extract (§4.7).
const contextTailSize = 5

// TestRunner is the external test-runner collaborator the code judge
// invokes (§6). Implemented by internal/testrunner against a real
// subprocess; tests substitute a stub.
type TestRunner interface {
	Run(ctx context.Context, outputDir string) (testrunner.Result, error)
}

// CodeLoop runs the generate-critique-refine cycle that turns ordered
// skeleton records into full file implementations (C7).
type CodeLoop struct {
	wrapper    *llm.Wrapper
	memory     *memory.Memory
	extractor  astextract.Extractor
	runner     TestRunner
	outputDir  string
	maxIter    int
	memoryTopK int
}

// NewCodeLoop builds a code loop bound to one LLM wrapper, API extractor,
// test runner, and the repository's output directory. memoryTopK non-positive
// falls back to 5.
func NewCodeLoop(wrapper *llm.Wrapper, extractor astextract.Extractor, runner TestRunner, outputDir string, maxIter, memoryTopK int) *CodeLoop {
	if memoryTopK <= 0 {
		memoryTopK = 5
	}
	return &CodeLoop{
		wrapper:    wrapper,
		memory:     memory.New(memory.VariantStandard),
		extractor:  extractor,
		runner:     runner,
		outputDir:  outputDir,
		maxIter:    maxIter,
		memoryTopK: memoryTopK,
	}
}

// Generate runs one code generator step. Step 1 produces a full file-by-file
// pass over the topologically scheduled skeleton; steps after that select a
// subset of files to regenerate from the prior feedback and leave the rest
// untouched.
func (l *CodeLoop) Generate(ctx context.Context, s State) (State, error) {
	s.CodeSteps++
	logging.Code("generating code, step=%d", s.CodeSteps)

	if s.CodeSteps == 1 {
		return l.generateInitial(ctx, s)
	}
	return l.generateRefine(ctx, s)
}

func (l *CodeLoop) generateInitial(ctx context.Context, s State) (State, error) {
	ordered := schedule.Order(s.LatestSkeleton)

	var fullCode []CodeRecord
	for _, skel := range ordered {
		ctxText := l.buildContext(fullCode)
		vars := map[string]any{
			"file":    skel,
			"context": ctxText,
			"step":    s.CodeSteps,
		}
		raw, err := l.wrapper.Invoke(ctx, prompt.CodeInitial, vars)
		var code string
		if err != nil {
			logging.CodeDebug("code generate %s: llm call failed at step %d: %v", skel.Path, s.CodeSteps, err)
		} else {
			code = extract.FencedCode(raw)
		}
		fullCode = append(fullCode, CodeRecord{Path: skel.Path, Code: code})
	}

	l.memory.SaveContext(
		map[string]any{"feedback": s.CodeFeedback},
		map[string]any{"result": renderCodeRecords(fullCode)},
	)

	s.LatestCode = fullCode
	return s, nil
}

func (l *CodeLoop) generateRefine(ctx context.Context, s State) (State, error) {
	updateSet, err := l.selectFilesToUpdate(ctx, s)
	if err != nil {
		return s, err
	}

	history := l.memory.LoadHistory(s.CodeFeedback, l.memoryTopK)

	var fullCode []CodeRecord
	var diffs []string
	for _, prev := range s.LatestCode {
		if !updateSet[prev.Path] {
			fullCode = append(fullCode, prev)
			continue
		}

		ctxText := l.buildContextExcluding(s.LatestCode, prev.Path)
		vars := map[string]any{
			"file":     prev,
			"feedback": s.CodeFeedback,
			"context":  ctxText,
			"history":  renderHistory(history),
			"step":     s.CodeSteps,
		}
		raw, err := l.wrapper.Invoke(ctx, prompt.CodeRefine, vars)
		if err != nil {
			logging.CodeDebug("code refine %s: llm call failed at step %d: %v", prev.Path, s.CodeSteps, err)
			raw = ""
		}

		updated := parseCodeRefineResult(raw, prev)
		d := diff.UnifiedDiff(updated.Path, prev.Code, updated.Code)
		diffs = append(diffs, d)
		fullCode = append(fullCode, updated)
	}

	prevStepStatus := s.TestStatus[fmt.Sprintf("step_%d", s.CodeSteps-2)]
	curStepStatus := s.TestStatus[fmt.Sprintf("step_%d", s.CodeSteps-1)]

	l.memory.SaveContext(
		map[string]any{"feedback": s.CodeFeedback, "test_status": prevStepStatus},
		map[string]any{
			"result":      renderCodeRecords(fullCode),
			"diff_code":   diffs,
			"test_status": curStepStatus,
		},
	)

	s.LatestCode = fullCode
	return s, nil
}

// selectFilesToUpdate renders the files-to-update prompt and extracts the
// first JSON array of paths from the reply. An empty list means no file is
// regenerated this step; the loop still re-submits the unchanged code to
// the judge (§9 open question: rely on the iteration cap, not an error).
func (l *CodeLoop) selectFilesToUpdate(ctx context.Context, s State) (map[string]bool, error) {
	vars := map[string]any{
		"feedback": s.CodeFeedback,
		"code":     s.LatestCode,
		"step":     s.CodeSteps,
	}
	raw, err := l.wrapper.Invoke(ctx, prompt.FilesToUpdate, vars)
	if err != nil {
		logging.CodeDebug("code file selector: llm call failed at step %d: %v", s.CodeSteps, err)
		raw = ""
	}

	items := extract.FirstJSONArray(raw)
	set := make(map[string]bool, len(items))
	for _, v := range items {
		if p, ok := v.(string); ok {
			set[p] = true
		}
	}
	return set, nil
}

// buildContext renders previously emitted files for the step-1 generator:
// everything before the trailing contextTailSize entries is API-only.
func (l *CodeLoop) buildContext(emitted []CodeRecord) string {
	return l.render(emitted, len(emitted)-contextTailSize)
}

// buildContextExcluding renders every file in latestCode except the one
// currently being regenerated, applying the same API-only compression past
// the trailing window.
func (l *CodeLoop) buildContextExcluding(latestCode []CodeRecord, exclude string) string {
	var others []CodeRecord
	for _, r := range latestCode {
		if r.Path != exclude {
			others = append(others, r)
		}
	}
	return l.render(others, len(others)-contextTailSize)
}

func (l *CodeLoop) render(records []CodeRecord, apiOnlyCount int) string {
	var b strings.Builder
	for i, r := range records {
		if i < apiOnlyCount {
			summary, err := l.extractor.Extract(r.Path, r.Code)
			if err != nil {
				logging.CodeDebug("api extract failed for %s: %v, falling back to raw", r.Path, err)
				summary = r.Code
			}
			fmt.Fprintf(&b, "# %s (interface only)\n%s\n\n", r.Path, summary)
		} else {
			fmt.Fprintf(&b, "# %s\n%s\n\n", r.Path, r.Code)
		}
	}
	return b.String()
}

// parseCodeRefineResult extracts a JSON array whose first element is
// {path, code} from the iterative-refinement reply. On any failure, the
// prior version of the file is kept unchanged rather than discarding it.
func parseCodeRefineResult(raw string, prev CodeRecord) CodeRecord {
	items := extract.FirstJSONArray(raw)
	if len(items) == 0 {
		return prev
	}
	data, err := json.Marshal(items[0])
	if err != nil {
		return prev
	}
	var rec CodeRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Path == "" {
		return prev
	}
	return rec
}

// Judge runs the code judge: persist, invoke the external test runner,
// record the step's test status, and accept, request an LLM-generated fix
// plan, or force-accept per the iteration cap.
func (l *CodeLoop) Judge(ctx context.Context, s State) (State, error) {
	entries := toCodeFileEntries(s.LatestCode)
	if len(entries) == 0 {
		s.CodeDecision = l.decide(s.CodeSteps, false)
		s.CodeFeedback = capCodeFeedback(s.CodeSteps, l.maxIter, s.CodeDecision, "Code JSON parsing failed.")
		return s, nil
	}
	if err := persist.WriteFiles(l.outputDir, entries); err != nil {
		s.CodeDecision = l.decide(s.CodeSteps, false)
		s.CodeFeedback = capCodeFeedback(s.CodeSteps, l.maxIter, s.CodeDecision, "Code JSON parsing failed.")
		return s, nil
	}

	result, err := l.runner.Run(ctx, l.outputDir)
	if err != nil {
		return s, fmt.Errorf("code judge: running tests: %w", err)
	}

	if s.TestStatus == nil {
		s.TestStatus = make(map[string]string)
	}
	stepKey := fmt.Sprintf("step_%d", s.CodeSteps)
	s.TestStatus[stepKey] = fmt.Sprintf("passed %d out of %d", result.Passed, result.Total)

	if result.Total > 0 && result.Passed == result.Total {
		s.CodeDecision = Accept
		s.CodeFeedback = "All unit tests passed."
		logging.Code("judged step=%d: all tests passed", s.CodeSteps)
		return s, nil
	}

	fixPlan, err := l.analyzeFailure(ctx, s, result.RawText)
	if err != nil {
		return s, err
	}

	s.CodeDecision = l.decide(s.CodeSteps, false)
	s.CodeFeedback = capCodeFeedback(s.CodeSteps, l.maxIter, s.CodeDecision, fixPlan)
	logging.Code("judged step=%d: %d/%d passed, decision=%s", s.CodeSteps, result.Passed, result.Total, s.CodeDecision)
	return s, nil
}

// analysisItem is one entry of the judge's structured fix plan.
type analysisItem struct {
	Summary      string `json:"summary"`
	LikelyCause  string `json:"likely_cause"`
	SuggestedFix string `json:"suggested_fix"`
}

func (l *CodeLoop) analyzeFailure(ctx context.Context, s State, testOutput string) (string, error) {
	vars := map[string]any{
		"test_output": testOutput,
		"code":        s.LatestCode,
		"step":        s.CodeSteps,
	}
	raw, err := l.wrapper.Invoke(ctx, prompt.CodeJudge, vars)
	if err != nil {
		logging.CodeDebug("code judge analysis: llm call failed at step %d: %v", s.CodeSteps, err)
		raw = ""
	}

	items := extract.FirstJSONArray(raw)
	var analyses []analysisItem
	for _, v := range items {
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		var a analysisItem
		if err := json.Unmarshal(data, &a); err == nil {
			analyses = append(analyses, a)
		}
	}

	var b strings.Builder
	b.WriteString(testOutput)
	for _, a := range analyses {
		fmt.Fprintf(&b, "\n\nSummary: %s\nLikely cause: %s\nSuggested fix: %s", a.Summary, a.LikelyCause, a.SuggestedFix)
	}
	return b.String(), nil
}

func (l *CodeLoop) decide(step int, accept bool) Decision {
	if accept {
		return Accept
	}
	if step >= l.maxIter {
		return ForceAccept
	}
	return Reject
}

func capCodeFeedback(step, maxIter int, decision Decision, feedback string) string {
	if decision == ForceAccept {
		return "Maximum code iterations reached, forcing approval. " + feedback
	}
	return feedback
}

func toCodeFileEntries(records []CodeRecord) []persist.FileEntry {
	entries := make([]persist.FileEntry, len(records))
	for i, r := range records {
		entries[i] = persist.FileEntry{Path: r.Path, Content: r.Code}
	}
	return entries
}

func renderCodeRecords(records []CodeRecord) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "# %s\n%s\n\n", r.Path, r.Code)
	}
	return b.String()
}
