// Package engine is the collaborator-facing surface of the skill runtime. A
// collaborator resolves a skill source, loads it into a cached definition,
// and executes named tools with raw argument maps; the engine validates
// capabilities, binds arguments, substitutes templates and dispatches to the
// right backend, returning one uniform result shape.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillrun-dev/skillrun/pkg/backend"
	"github.com/skillrun-dev/skillrun/pkg/binder"
	"github.com/skillrun-dev/skillrun/pkg/capability"
	"github.com/skillrun-dev/skillrun/pkg/cmdtemplate"
	"github.com/skillrun-dev/skillrun/pkg/logger"
	"github.com/skillrun-dev/skillrun/pkg/skillmd"
	"github.com/skillrun-dev/skillrun/pkg/telemetry"
	"github.com/skillrun-dev/skillrun/pkg/types/skill"
	"github.com/skillrun-dev/skillrun/pkg/wasmskill"
)

var tracer = telemetry.Tracer("skillrun.engine")

// Config holds the engine's tunables.
type Config struct {
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	MaxOutputSize int           `mapstructure:"max_output_size" json:"max_output_size" yaml:"max_output_size"`
}

// DefaultConfig returns the built-in defaults: 30s timeout, 100KB output cap.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		MaxOutputSize: 102400,
	}
}

// LoadConfig reads the engine section from Viper, falling back to defaults.
func LoadConfig(ctx context.Context) Config {
	config := DefaultConfig()
	if viper.IsSet("engine") {
		if err := viper.UnmarshalKey("engine", &config); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to load engine config, using defaults")
		}
	}
	return config
}

// Engine executes skill tools. It is safe for concurrent use; the definition
// and compiled-module caches are its only shared mutable state.
type Engine struct {
	cfg  Config
	defs definitionCache

	process backend.Backend

	wasmOnce sync.Once
	wasmRT   *wasmskill.Runtime
	wasmBE   backend.Backend
	wasmErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithProcessBackend substitutes the process backend, used by tests to spy on
// subprocess spawns.
func WithProcessBackend(b backend.Backend) Option {
	return func(e *Engine) {
		e.process = b
	}
}

// New creates an engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	if e.process == nil {
		e.process = backend.NewProcessBackend(e.cfg.MaxOutputSize)
	}
	return e
}

// Close releases the sandbox runtime, if one was ever started.
func (e *Engine) Close(ctx context.Context) error {
	if e.wasmRT != nil {
		return e.wasmRT.Close(ctx)
	}
	return nil
}

// LoadDefinition parses raw skill source of the given kind into a cached,
// immutable definition. Identical bytes always hit the same cache entry.
func (e *Engine) LoadDefinition(ctx context.Context, source []byte, kind skill.Kind) (*skill.Definition, error) {
	hash := skill.HashSource(source)

	return e.defs.get(hash, func() (*skill.Definition, error) {
		switch kind {
		case skill.NativeCommand:
			return skillmd.Parse(source)
		case skill.SandboxedModule:
			rt, err := e.moduleRuntime(ctx)
			if err != nil {
				return nil, err
			}
			return wasmskill.BuildDefinition(ctx, rt, source)
		default:
			return nil, &skill.ParseError{Message: fmt.Sprintf("unknown skill kind: %s", kind)}
		}
	})
}

// EvictDefinition drops a cached definition and, for sandboxed skills, its
// compiled module. Collaborators call this when a source hash no longer
// matches what they resolved.
func (e *Engine) EvictDefinition(ctx context.Context, hash string) {
	e.defs.evict(hash)
	if e.wasmRT != nil {
		e.wasmRT.Evict(ctx, hash)
	}
}

// ValidateCapabilities authorizes a tool invocation without executing
// anything, exposed separately for pre-flight checks by CLI and agent layers.
func (e *Engine) ValidateCapabilities(def *skill.Definition, toolName string) error {
	return capability.Validate(def, toolName)
}

// Execute runs one tool invocation end to end. It never panics out and never
// aborts the calling process: every failure, including a malformed or
// malicious definition, comes back as a structured result.
func (e *Engine) Execute(ctx context.Context, def *skill.Definition, toolName string, args map[string]any, timeout time.Duration) (result *skill.ExecutionResult) {
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	invocationID := uuid.NewString()
	log := logger.G(ctx).WithFields(map[string]any{
		"invocation": invocationID,
		"skill":      def.Name,
		"tool":       toolName,
	})
	ctx = logger.WithLogger(ctx, log)

	ctx, span := tracer.Start(ctx, "engine.execute",
		trace.WithAttributes(
			attribute.String("skill.name", def.Name),
			attribute.String("skill.kind", string(def.Kind)),
			attribute.String("tool.name", toolName),
			attribute.String("invocation.id", invocationID),
		))
	defer span.End()

	lc := backend.NewLifecycle()

	defer func() {
		if r := recover(); r != nil {
			// An engine invariant violation, not a skill failure. Logged as a
			// defect and surfaced as a generic internal error.
			log.WithField("panic", r).Error("engine invariant violation during execution")
			result = internalError(errors.Errorf("internal engine error: %v", r))
		}
		finishSpan(span, result)
	}()

	start := time.Now()

	if err := lc.To(backend.PhaseValidating); err != nil {
		return internalError(err)
	}
	if err := capability.Validate(def, toolName); err != nil {
		failed(lc)
		log.WithError(err).Warn("capability validation rejected invocation")
		return resultFromError(err)
	}
	tool, _ := def.Tool(toolName)

	if err := lc.To(backend.PhaseBinding); err != nil {
		return internalError(err)
	}
	bound, err := binder.Bind(tool, args)
	if err != nil {
		failed(lc)
		return resultFromError(err)
	}

	inv := &backend.Invocation{
		Definition: def,
		Tool:       tool,
		Args:       bound,
		Timeout:    timeout,
	}

	var be backend.Backend
	switch def.Kind {
	case skill.NativeCommand:
		// Substitution runs before any process starts; an unresolved token
		// means a broken definition and nothing is executed.
		argv, err := cmdtemplate.Expand(tool, bound)
		if err != nil {
			failed(lc)
			return resultFromError(err)
		}
		inv.Argv = argv
		be = e.process
	case skill.SandboxedModule:
		grants, err := capability.CompileGrants(def.Capabilities)
		if err != nil {
			failed(lc)
			return resultFromError(err)
		}
		inv.Grants = grants
		if _, err := e.moduleRuntime(ctx); err != nil {
			failed(lc)
			return resultFromError(err)
		}
		be = e.wasmBE
	default:
		return internalError(errors.Errorf("unknown skill kind %q", def.Kind))
	}

	if err := lc.To(backend.PhaseExecuting); err != nil {
		return internalError(err)
	}

	log.WithField("timeout", timeout).Debug("executing tool")
	result = be.Execute(ctx, inv)

	terminal := backend.PhaseCompleted
	if !result.Success {
		terminal = backend.PhaseFailed
		if result.Error != nil && result.Error.Kind == skill.ErrKindTimeout {
			terminal = backend.PhaseTimedOut
		}
	}
	if err := lc.To(terminal); err != nil {
		return internalError(err)
	}

	log.WithFields(map[string]any{
		"success":  result.Success,
		"phase":    lc.Phase(),
		"duration": time.Since(start),
	}).Info("tool execution finished")

	return result
}

// ValidateConfig invokes a sandboxed skill's optional configuration
// validation entry point. Skills without the export accept any configuration.
func (e *Engine) ValidateConfig(ctx context.Context, def *skill.Definition, configJSON string) error {
	if def.Kind != skill.SandboxedModule {
		return errors.New("configuration validation is only defined for sandboxed skills")
	}
	return telemetry.WithSpan(ctx, "engine.validate_config", func(ctx context.Context) error {
		return e.validateModuleConfig(ctx, def, configJSON)
	}, attribute.String("skill.name", def.Name))
}

func (e *Engine) validateModuleConfig(ctx context.Context, def *skill.Definition, configJSON string) error {
	rt, err := e.moduleRuntime(ctx)
	if err != nil {
		return err
	}

	compiled, err := rt.Compile(ctx, def.Hash, def.Module)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	inst, err := rt.Instantiate(ctx, compiled, wasmskill.InstanceOptions{})
	if err != nil {
		return err
	}
	defer inst.Close(context.WithoutCancel(ctx))

	if !inst.HasValidateConfig() {
		return nil
	}

	resp, err := inst.ValidateConfig(ctx, configJSON)
	if err != nil {
		return err
	}

	var verdict struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(resp), &verdict); err != nil {
		return errors.Wrap(err, "module returned an invalid validation payload")
	}
	if !verdict.OK {
		return errors.Errorf("configuration rejected: %s", verdict.Error)
	}
	return nil
}

// moduleRuntime lazily starts the sandbox runtime; native-only deployments
// never pay for it.
func (e *Engine) moduleRuntime(ctx context.Context) (*wasmskill.Runtime, error) {
	e.wasmOnce.Do(func() {
		rt, err := wasmskill.NewRuntime(context.WithoutCancel(ctx))
		if err != nil {
			e.wasmErr = err
			return
		}
		e.wasmRT = rt
		e.wasmBE = backend.NewWasmBackend(rt, e.cfg.MaxOutputSize)
	})
	return e.wasmRT, e.wasmErr
}

func failed(lc *backend.Lifecycle) {
	_ = lc.To(backend.PhaseFailed)
}

func finishSpan(span trace.Span, result *skill.ExecutionResult) {
	if result == nil {
		return
	}
	if result.Success {
		span.SetStatus(codes.Ok, "")
		return
	}
	msg := "execution failed"
	if result.Error != nil {
		msg = result.Error.Message
		span.SetAttributes(attribute.String("error.kind", string(result.Error.Kind)))
	}
	span.SetStatus(codes.Error, msg)
}
