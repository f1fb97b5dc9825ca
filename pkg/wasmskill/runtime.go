package wasmskill

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"golang.org/x/sync/singleflight"

	"github.com/skillrun-dev/skillrun/pkg/capability"
	"github.com/skillrun-dev/skillrun/pkg/logger"
)

// Runtime owns the wazero runtime and the compiled-module cache. Compilation
// is keyed by content hash with single-flight semantics: if two concurrent
// requests need the same uncompiled source, one compiles while the other
// waits on the in-flight result.
type Runtime struct {
	rt       wazero.Runtime
	group    singleflight.Group
	compiled sync.Map // content hash -> wazero.CompiledModule
	compiles atomic.Int64
}

// NewRuntime builds a runtime with WASI support and the host module
// installed. Guest execution is interrupted when the call context is done,
// which is how invocation timeouts reach long-running module code.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	if err := instantiateHostModule(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(err, "failed to install host module")
	}

	return &Runtime{rt: rt}, nil
}

// Close releases the runtime and all compiled modules.
func (r *Runtime) Close(ctx context.Context) error {
	return r.rt.Close(ctx)
}

// CompileCount reports how many real compilations have run, used to verify
// the at-most-one-concurrent-build-per-key property.
func (r *Runtime) CompileCount() int64 {
	return r.compiles.Load()
}

// Compile returns the compiled module for the given source, compiling at most
// once per content hash.
func (r *Runtime) Compile(ctx context.Context, hash string, source []byte) (wazero.CompiledModule, error) {
	if cached, ok := r.compiled.Load(hash); ok {
		return cached.(wazero.CompiledModule), nil
	}

	compiled, err, _ := r.group.Do(hash, func() (any, error) {
		if cached, ok := r.compiled.Load(hash); ok {
			return cached.(wazero.CompiledModule), nil
		}
		logger.G(ctx).WithField("hash", hash[:12]).Debug("compiling skill module")
		r.compiles.Add(1)
		mod, err := r.rt.CompileModule(ctx, source)
		if err != nil {
			return nil, errors.Wrap(err, "module compilation failed")
		}
		r.compiled.Store(hash, mod)
		return mod, nil
	})
	if err != nil {
		return nil, err
	}
	return compiled.(wazero.CompiledModule), nil
}

// Evict drops a compiled module, e.g. after its source hash changed.
func (r *Runtime) Evict(ctx context.Context, hash string) {
	if cached, ok := r.compiled.LoadAndDelete(hash); ok {
		_ = cached.(wazero.CompiledModule).Close(ctx)
	}
}

// InstanceOptions configure one module instantiation. A nil Grants means a
// capability-free instance: no filesystem view, every network destination
// denied.
type InstanceOptions struct {
	Grants *capability.Grants
	Stdout io.Writer
	Stderr io.Writer
	Env    map[string]string
}

// Instantiate creates a fresh instance of a compiled module. Instances hold no
// state between invocations; callers must Close them after the call.
func (r *Runtime) Instantiate(ctx context.Context, compiled wazero.CompiledModule, opts InstanceOptions) (*Instance, error) {
	cfg := wazero.NewModuleConfig().
		// An anonymous name lets unrelated requests instantiate concurrently.
		WithName("")

	if opts.Stdout != nil {
		cfg = cfg.WithStdout(opts.Stdout)
	}
	if opts.Stderr != nil {
		cfg = cfg.WithStderr(opts.Stderr)
	}
	for k, v := range opts.Env {
		cfg = cfg.WithEnv(k, v)
	}

	if opts.Grants != nil {
		fsCfg := wazero.NewFSConfig()
		for _, prefix := range opts.Grants.FilesystemPrefixes() {
			fsCfg = fsCfg.WithDirMount(prefix, prefix)
		}
		cfg = cfg.WithFSConfig(fsCfg)
	}

	mod, err := r.rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "module instantiation failed")
	}

	return &Instance{mod: mod, grants: opts.Grants}, nil
}
