package backend

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/skillrun-dev/skillrun/pkg/logger"
	"github.com/skillrun-dev/skillrun/pkg/osutil"
	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

// runFunc executes an argument vector and returns its exit code. The
// indirection exists so tests can count spawns with a spy without creating
// processes.
type runFunc func(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error)

// ProcessBackend runs allowlisted executables directly, never through a
// shell: the argument vector is handed to the OS as-is, so nothing re-parses
// the command and caller values cannot split into extra tokens.
type ProcessBackend struct {
	maxOutput int
	run       runFunc
}

// NewProcessBackend creates a backend with the given per-stream output cap.
func NewProcessBackend(maxOutput int) *ProcessBackend {
	return &ProcessBackend{maxOutput: maxOutput, run: runCommand}
}

// Execute runs the invocation's argument vector with a bounded timeout.
// A non-zero exit is not a host error: it resolves to success=false with the
// captured stderr as context, and the caller interprets domain exit codes.
func (b *ProcessBackend) Execute(ctx context.Context, inv *Invocation) *skill.ExecutionResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, inv.Timeout)
	defer cancel()

	stdout := newCappedWriter(b.maxOutput)
	stderr := newCappedWriter(b.maxOutput)

	exitCode, err := b.run(ctx, inv.Argv, stdout, stderr)
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return timedOut(inv.Timeout, elapsed)
	}

	if err != nil {
		execErr := &skill.ExecutionError{Message: err.Error()}
		return &skill.ExecutionResult{
			Success:   false,
			Output:    stdout.String(),
			Truncated: stdout.truncated,
			Duration:  elapsed,
			Error:     &skill.ResultError{Kind: skill.ErrKindExecution, Message: execErr.Error()},
		}
	}

	if exitCode != 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("command exited with status %d", exitCode)
		}
		return &skill.ExecutionResult{
			Success:   false,
			Output:    stdout.String(),
			Truncated: stdout.truncated || stderr.truncated,
			Duration:  elapsed,
			Error:     &skill.ResultError{Kind: skill.ErrKindExecution, Message: msg},
		}
	}

	return &skill.ExecutionResult{
		Success:   true,
		Output:    stdout.String(),
		Truncated: stdout.truncated,
		Duration:  elapsed,
	}
}

// runCommand is the real runner. It invokes the executable directly with the
// argument vector; there is no intermediate shell.
func runCommand(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 3 * time.Second
	osutil.SetProcessGroup(cmd)
	cmd.Cancel = func() error {
		killDescendants(ctx, cmd.Process.Pid)
		if err := osutil.KillProcessGroup(cmd.Process.Pid); err == nil {
			return nil
		}
		return cmd.Process.Kill()
	}

	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// killDescendants tears down the whole process tree on timeout so no orphaned
// child outlives the invocation.
func killDescendants(ctx context.Context, pid int) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	children, err := proc.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		killDescendants(ctx, int(child.Pid))
		if err := child.Kill(); err != nil {
			logger.G(ctx).WithError(err).WithField("pid", child.Pid).Debug("failed to kill child process")
		}
	}
}
