package backend

import (
	"github.com/pkg/errors"
)

// Phase is the per-invocation lifecycle state. Every invocation moves
// Pending -> Validating -> Binding -> Executing and terminates in exactly one
// of Completed, Failed or TimedOut. All failure exits converge on the result
// normalizer; there is no retry inside the engine.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseValidating Phase = "validating"
	PhaseBinding    Phase = "binding"
	PhaseExecuting  Phase = "executing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
	PhaseTimedOut   Phase = "timed_out"
)

var transitions = map[Phase][]Phase{
	PhasePending:    {PhaseValidating},
	PhaseValidating: {PhaseBinding, PhaseFailed},
	PhaseBinding:    {PhaseExecuting, PhaseFailed},
	PhaseExecuting:  {PhaseCompleted, PhaseFailed, PhaseTimedOut},
}

// Lifecycle tracks one invocation's phase. An invalid transition is an engine
// invariant violation, not a caller error.
type Lifecycle struct {
	phase Phase
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{phase: PhasePending}
}

func (l *Lifecycle) Phase() Phase {
	return l.phase
}

// Terminal reports whether the invocation has reached a final phase.
func (l *Lifecycle) Terminal() bool {
	switch l.phase {
	case PhaseCompleted, PhaseFailed, PhaseTimedOut:
		return true
	}
	return false
}

// To advances the lifecycle or reports an invariant violation.
func (l *Lifecycle) To(next Phase) error {
	for _, allowed := range transitions[l.phase] {
		if allowed == next {
			l.phase = next
			return nil
		}
	}
	return errors.Errorf("invalid invocation transition %s -> %s", l.phase, next)
}
