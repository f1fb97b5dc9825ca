// Package backend runs validated tool invocations. Two backends sit behind
// one interface: ProcessBackend executes allowlisted programs directly, and
// WasmBackend instantiates sandboxed WebAssembly modules. Both enforce the
// caller's timeout and the configured output cap, and both report failures on
// the result rather than as host faults.
package backend

import (
	"context"
	"time"

	"github.com/skillrun-dev/skillrun/pkg/capability"
	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

// Invocation is the fully validated input to a backend: capability checks,
// binding and substitution have all passed before one is constructed.
type Invocation struct {
	Definition *skill.Definition
	Tool       *skill.Tool
	Args       skill.BoundArguments
	// Argv is the substituted argument vector, set for NativeCommand skills.
	Argv []string
	// Grants are the compiled capability grants, set for SandboxedModule skills.
	Grants  *capability.Grants
	Timeout time.Duration
}

// Backend executes one invocation. Implementations block for the duration of
// the call and must resolve to TimedOut once the timeout elapses, with the
// subprocess or module instance no longer running afterwards.
type Backend interface {
	Execute(ctx context.Context, inv *Invocation) *skill.ExecutionResult
}

// cappedWriter collects output up to a fixed cap and flags truncation. Writes
// past the cap are swallowed so a chatty tool cannot balloon host memory.
type cappedWriter struct {
	buf       []byte
	limit     int
	truncated bool
}

func newCappedWriter(limit int) *cappedWriter {
	return &cappedWriter{limit: limit}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - len(w.buf)
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf = append(w.buf, p[:remaining]...)
		w.truncated = true
		return len(p), nil
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *cappedWriter) String() string {
	return string(w.buf)
}

func timedOut(timeout time.Duration, elapsed time.Duration) *skill.ExecutionResult {
	err := &skill.TimeoutError{Timeout: timeout}
	return &skill.ExecutionResult{
		Success:  false,
		Duration: elapsed,
		Error:    &skill.ResultError{Kind: skill.ErrKindTimeout, Message: err.Error()},
	}
}
