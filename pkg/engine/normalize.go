package engine

import (
	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

// resultFromError converts a pre-execution failure into the uniform result
// shape, so callers never have to distinguish "rejected before running" from
// "ran and failed".
func resultFromError(err error) *skill.ExecutionResult {
	return &skill.ExecutionResult{
		Success: false,
		Error: &skill.ResultError{
			Kind:    skill.ClassifyError(err),
			Message: err.Error(),
		},
	}
}

func internalError(err error) *skill.ExecutionResult {
	return &skill.ExecutionResult{
		Success: false,
		Error: &skill.ResultError{
			Kind:    skill.ErrKindInternal,
			Message: err.Error(),
		},
	}
}
