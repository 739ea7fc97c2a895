package pipeline

import (
	"context"
	"fmt"

	"genforge/internal/logging"
	"genforge/internal/persist"
)

// node identifies one state in the controller's state machine.
type node int

const (
	nodeArchitect node = iota
	nodeArchitectJudge
	nodeSkeleton
	nodeSkeletonJudge
	nodeCode
	nodeCodeJudge
	nodeEnd
)

// ErrRecursionLimit is returned when the controller's total node-visit
// budget is exhausted without the code loop ever accepting — the recursion
// guard described in §4.8, distinct from any single loop's own iteration
// cap.
type ErrRecursionLimit struct{ Visits int }

func (e *ErrRecursionLimit) Error() string {
	return fmt.Sprintf("pipeline: controller exceeded %d node visits without completing", e.Visits)
}

// Controller drives the architect, skeleton, and code loops in sequence per
// §4.8:
//
//	architect -> architect_judge -> {skeleton if accept, architect if reject}
//	skeleton  -> skeleton_judge  -> {code     if accept, skeleton  if reject}
//	code      -> code_judge      -> {END      if accept, code      if reject}
type Controller struct {
	Architect *ArchitectLoop
	Skeleton  *SkeletonLoop
	Code      *CodeLoop

	// MaxVisits caps the total number of node transitions across the whole
	// run, guarding against a runaway loop if an iteration cap somehow
	// fails to fire.
	MaxVisits int

	outputDir string
}

// NewController builds a controller over the three loops, bound to the
// repository's output directory for per-step persistence.
func NewController(architect *ArchitectLoop, skeleton *SkeletonLoop, code *CodeLoop, outputDir string, maxVisits int) *Controller {
	if maxVisits <= 0 {
		maxVisits = 50
	}
	return &Controller{
		Architect: architect,
		Skeleton:  skeleton,
		Code:      code,
		MaxVisits: maxVisits,
		outputDir: outputDir,
	}
}

// Run drives the pipeline to completion, returning the final state once the
// code loop accepts (or force-accepts). It returns ErrRecursionLimit if the
// node-visit budget is exhausted first.
func (c *Controller) Run(ctx context.Context, initial State) (State, error) {
	s := initial
	current := nodeArchitect
	visits := 0

	for current != nodeEnd {
		visits++
		if visits > c.MaxVisits {
			return s, &ErrRecursionLimit{Visits: c.MaxVisits}
		}

		var err error
		s, current, err = c.step(ctx, s, current)
		if err != nil {
			return s, err
		}
	}

	logging.Pipeline("run complete for %s after %d node visits", s.RepoName, visits)
	return s, nil
}

func (c *Controller) step(ctx context.Context, s State, current node) (State, node, error) {
	switch current {
	case nodeArchitect:
		next, err := c.Architect.Generate(ctx, s)
		if err != nil {
			return s, current, err
		}
		return next, nodeArchitectJudge, nil

	case nodeArchitectJudge:
		next, err := c.Architect.Judge(ctx, s)
		if err != nil {
			return s, current, err
		}
		c.snapshotArchitecture(next)
		if next.ArchDecision.Accepted() {
			return next, nodeSkeleton, nil
		}
		return next, nodeArchitect, nil

	case nodeSkeleton:
		next, err := c.Skeleton.Generate(ctx, s)
		if err != nil {
			return s, current, err
		}
		return next, nodeSkeletonJudge, nil

	case nodeSkeletonJudge:
		next, err := c.Skeleton.Judge(ctx, s)
		if err != nil {
			return s, current, err
		}
		c.snapshotSkeleton(next)
		if next.SkeletonDecision.Accepted() {
			return next, nodeCode, nil
		}
		return next, nodeSkeleton, nil

	case nodeCode:
		next, err := c.Code.Generate(ctx, s)
		if err != nil {
			return s, current, err
		}
		return next, nodeCodeJudge, nil

	case nodeCodeJudge:
		next, err := c.Code.Judge(ctx, s)
		if err != nil {
			return s, current, err
		}
		c.snapshotCode(next)
		if next.CodeDecision.Accepted() {
			return next, nodeEnd, nil
		}
		return next, nodeCode, nil

	default:
		return s, nodeEnd, fmt.Errorf("pipeline: unknown node %d", current)
	}
}

func (c *Controller) snapshotArchitecture(s State) {
	if s.ArchSteps == 0 {
		return
	}
	path := persist.ArchitectureSnapshotPath(c.outputDir, s.ArchSteps)
	if err := persist.WriteJSON(path, s.LatestArch); err != nil {
		logging.PipelineError("snapshotting architecture: %v", err)
	}
}

func (c *Controller) snapshotSkeleton(s State) {
	if s.SkeletonSteps == 0 {
		return
	}
	path := persist.SkeletonSnapshotPath(c.outputDir, s.SkeletonSteps)
	if err := persist.WriteJSON(path, s.LatestSkeleton); err != nil {
		logging.PipelineError("snapshotting skeleton: %v", err)
	}
}

func (c *Controller) snapshotCode(s State) {
	if s.CodeSteps == 0 {
		return
	}
	path := persist.GeneratedCodeSnapshotPath(c.outputDir, s.CodeSteps)
	for _, r := range s.LatestCode {
		if err := persist.AppendJSONL(path, r); err != nil {
			logging.PipelineError("snapshotting code: %v", err)
		}
	}
}
