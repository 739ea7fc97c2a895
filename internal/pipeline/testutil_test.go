package pipeline

import (
	"context"

	"genforge/internal/llm"
	"genforge/internal/prompt"
	"genforge/internal/testrunner"
)

// stubClient replays a fixed queue of responses, one per Complete call, in
// order. Tests construct the queue to match the exact sequence of generator
// and judge invocations a scenario exercises.
type stubClient struct {
	responses []string
	calls     int
}

func (s *stubClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.calls >= len(s.responses) {
		return "", nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

// funcClient lets a test compute a response dynamically from the rendered
// prompt text, for scenarios where the reply must vary by call site (e.g.
// echoing back which file is being generated).
type funcClient struct {
	fn func(systemPrompt, userPrompt string, call int) string
	n  int
}

func (f *funcClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp := f.fn(systemPrompt, userPrompt, f.n)
	f.n++
	return resp, nil
}

func testRegistry() *prompt.Registry {
	passthrough := prompt.Template{System: "sys", User: "{{.step}}"}
	return prompt.NewRegistry(map[string]prompt.Template{
		prompt.SSATInitial:     passthrough,
		prompt.SSATRefine:      passthrough,
		prompt.ArchJudge:       passthrough,
		prompt.SkeletonInitial: passthrough,
		prompt.SkeletonRefine:  passthrough,
		prompt.SkeletonJudge:   passthrough,
		prompt.CodeInitial:     passthrough,
		prompt.CodeRefine:      passthrough,
		prompt.CodeJudge:       passthrough,
		prompt.FilesToUpdate:   passthrough,
	})
}

func testWrapper(client llm.Client) *llm.Wrapper {
	return llm.New(client, testRegistry())
}

// stubExtractor returns a fixed "# api-only: <path>" line instead of a real
// summary, avoiding a dependency on real Python parsing in code-loop tests.
type stubExtractor struct{}

func (stubExtractor) Extract(path, source string) (string, error) {
	return "# api-only: " + path, nil
}

// stubRunner replays a fixed queue of test results, one per Run call.
type stubRunner struct {
	results []testrunner.Result
	calls   int
}

func (r *stubRunner) Run(ctx context.Context, outputDir string) (testrunner.Result, error) {
	if r.calls >= len(r.results) {
		return testrunner.Result{}, nil
	}
	res := r.results[r.calls]
	r.calls++
	return res, nil
}
