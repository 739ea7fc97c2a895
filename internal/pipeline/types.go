// Package pipeline implements the iterative multi-agent orchestration engine:
// the architect, skeleton, and code generate-critique-refine loops plus the
// controller state machine that drives them in sequence.
package pipeline

import "genforge/internal/model"

// The pipeline's data model lives in internal/model so the topological
// scheduler (C4) can depend on the record shapes the loops produce without
// creating an import cycle back into this package. Everything here is a
// direct alias so callers write pipeline.SSAT, pipeline.State, etc. exactly
// as if the types were declared in this package.
type (
	SSAT           = model.SSAT
	Module         = model.Module
	File           = model.File
	Class          = model.Class
	Function       = model.Function
	Parameter      = model.Parameter
	SkeletonRecord = model.SkeletonRecord
	CodeRecord     = model.CodeRecord
	Decision       = model.Decision
	State          = model.State
)

const (
	Reject      = model.Reject
	Accept      = model.Accept
	ForceAccept = model.ForceAccept
)

// UniquePaths reports whether every record's path appears exactly once.
func UniquePaths[T interface{ GetPath() string }](records []T) bool {
	return model.UniquePaths(records)
}
