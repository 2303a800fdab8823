package pipeline

import (
	"errors"
	"fmt"
)

// Phase 标识入库运行中的阶段。
type Phase string

const (
	PhaseExtraction Phase = "extraction"
	PhaseIndexSetup Phase = "index setup"
	PhaseEmbedding  Phase = "embedding"
	PhaseSnapshot   Phase = "snapshot"
	PhaseBulkWrite  Phase = "bulk write"
)

// PhaseError 是导致整个运行中止的错误，记录失败发生的阶段。
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

func phaseError(phase Phase, err error) error {
	return &PhaseError{Phase: phase, Err: err}
}

// PhaseOf 返回 err 对应的失败阶段。
func PhaseOf(err error) (Phase, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return "", false
}
