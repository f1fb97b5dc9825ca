package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/skillrun-dev/skillrun/pkg/logger"
	"github.com/skillrun-dev/skillrun/pkg/types/skill"
	"github.com/skillrun-dev/skillrun/pkg/wasmskill"
)

// WasmBackend executes sandboxed-module tools. Every invocation gets a fresh
// module instance; no state survives between calls, so concurrent invocations
// of the same skill need no locks. Compilation is content-hash-cached inside
// the wasmskill runtime with single-flight semantics.
type WasmBackend struct {
	runtime   *wasmskill.Runtime
	maxOutput int
}

// NewWasmBackend creates a backend over the shared module runtime.
func NewWasmBackend(runtime *wasmskill.Runtime, maxOutput int) *WasmBackend {
	return &WasmBackend{runtime: runtime, maxOutput: maxOutput}
}

// moduleResult is the structured result shape the tool-execution entry point
// returns: {success, output, errorMessage}.
type moduleResult struct {
	Success      bool    `json:"success"`
	Output       string  `json:"output"`
	ErrorMessage *string `json:"errorMessage"`
}

// Execute instantiates the module with exactly the declared grants, invokes
// the tool-execution entry point with the bound arguments as JSON, and tears
// the instance down.
func (b *WasmBackend) Execute(ctx context.Context, inv *Invocation) *skill.ExecutionResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, inv.Timeout)
	defer cancel()

	result, err := b.invoke(ctx, inv)
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return timedOut(inv.Timeout, elapsed)
	}
	if err != nil {
		return &skill.ExecutionResult{
			Success:  false,
			Duration: elapsed,
			Error:    &skill.ResultError{Kind: skill.ErrKindExecution, Message: err.Error()},
		}
	}

	result.Duration = elapsed
	return result
}

func (b *WasmBackend) invoke(ctx context.Context, inv *Invocation) (*skill.ExecutionResult, error) {
	compiled, err := b.runtime.Compile(ctx, inv.Definition.Hash, inv.Definition.Module)
	if err != nil {
		return nil, err
	}

	stdout := newCappedWriter(b.maxOutput)
	stderr := newCappedWriter(b.maxOutput)

	inst, err := b.runtime.Instantiate(ctx, compiled, wasmskill.InstanceOptions{
		Grants: inv.Grants,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		// Close with a fresh context: the call context may already be done,
		// and the instance must not outlive the invocation.
		if err := inst.Close(context.WithoutCancel(ctx)); err != nil {
			logger.G(ctx).WithError(err).Debug("failed to close module instance")
		}
	}()

	argsJSON, err := inv.Args.JSON()
	if err != nil {
		return nil, err
	}

	resultJSON, err := inst.ExecuteTool(ctx, inv.Tool.Name, argsJSON)
	if err != nil {
		return nil, err
	}

	var mr moduleResult
	if err := json.Unmarshal([]byte(resultJSON), &mr); err != nil {
		return nil, errors.Wrap(err, "module returned an invalid result payload")
	}

	output := mr.Output
	truncated := false
	if len(output) > b.maxOutput {
		output = output[:b.maxOutput]
		truncated = true
	}

	result := &skill.ExecutionResult{
		Success:   mr.Success,
		Output:    output,
		Truncated: truncated,
	}
	if mr.ErrorMessage != nil {
		result.Error = &skill.ResultError{Kind: skill.ErrKindExecution, Message: *mr.ErrorMessage}
	}
	return result, nil
}
