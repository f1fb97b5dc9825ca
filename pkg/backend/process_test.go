package backend

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

func invocation(argv []string, timeout time.Duration) *Invocation {
	return &Invocation{
		Definition: &skill.Definition{Name: "test-skill", Kind: skill.NativeCommand},
		Tool:       &skill.Tool{Name: "test-tool"},
		Argv:       argv,
		Timeout:    timeout,
	}
}

func TestProcessBackendExecute(t *testing.T) {
	b := NewProcessBackend(1024)

	result := b.Execute(context.Background(), invocation([]string{"echo", "hello", "world"}, 5*time.Second))

	assert.True(t, result.Success)
	assert.Equal(t, "hello world\n", result.Output)
	assert.False(t, result.Truncated)
	assert.Nil(t, result.Error)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestProcessBackendArgvIsNotShellParsed(t *testing.T) {
	b := NewProcessBackend(1024)

	// The metacharacters reach echo as literal arguments.
	result := b.Execute(context.Background(), invocation([]string{"echo", "a; rm -rf /", "&&", "id"}, 5*time.Second))

	require.True(t, result.Success)
	assert.Equal(t, "a; rm -rf / && id\n", result.Output)
}

func TestProcessBackendNonZeroExit(t *testing.T) {
	b := NewProcessBackend(1024)

	result := b.Execute(context.Background(), invocation([]string{"sh", "-c", "echo partial; echo oops >&2; exit 3"}, 5*time.Second))

	assert.False(t, result.Success)
	assert.Equal(t, "partial\n", result.Output)
	require.NotNil(t, result.Error)
	assert.Equal(t, skill.ErrKindExecution, result.Error.Kind)
	assert.Contains(t, result.Error.Message, "oops")
}

func TestProcessBackendNonZeroExitEmptyStderr(t *testing.T) {
	b := NewProcessBackend(1024)

	result := b.Execute(context.Background(), invocation([]string{"sh", "-c", "exit 7"}, 5*time.Second))

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Message, "status 7")
}

func TestProcessBackendMissingExecutable(t *testing.T) {
	b := NewProcessBackend(1024)

	result := b.Execute(context.Background(), invocation([]string{"definitely-not-a-real-binary-12345"}, 5*time.Second))

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, skill.ErrKindExecution, result.Error.Kind)
}

func TestProcessBackendTimeout(t *testing.T) {
	b := NewProcessBackend(1024)

	start := time.Now()
	result := b.Execute(context.Background(), invocation([]string{"sleep", "30"}, 200*time.Millisecond))
	elapsed := time.Since(start)

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, skill.ErrKindTimeout, result.Error.Kind)
	// The subprocess is killed, not awaited to completion.
	assert.Less(t, elapsed, 10*time.Second)
}

func TestProcessBackendOutputCap(t *testing.T) {
	b := NewProcessBackend(16)

	result := b.Execute(context.Background(), invocation([]string{"sh", "-c", "yes skillrun | head -n 100"}, 5*time.Second))

	require.True(t, result.Success)
	assert.True(t, result.Truncated)
	assert.Len(t, result.Output, 16)
}

func TestProcessBackendSpy(t *testing.T) {
	spawns := 0
	b := &ProcessBackend{
		maxOutput: 1024,
		run: func(_ context.Context, argv []string, stdout, _ io.Writer) (int, error) {
			spawns++
			io.WriteString(stdout, strings.Join(argv, " "))
			return 0, nil
		},
	}

	result := b.Execute(context.Background(), invocation([]string{"echo", "hi"}, time.Second))

	assert.True(t, result.Success)
	assert.Equal(t, "echo hi", result.Output)
	assert.Equal(t, 1, spawns)
}
