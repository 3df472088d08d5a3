package host

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/hostfuncs"
	wazeroadapter "github.com/reglet-dev/wasmbridge/infrastructure/wazero"
	"github.com/reglet-dev/wasmbridge/log"
	"github.com/reglet-dev/wasmbridge/memory"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// HeapBaseExport is the global a guest exports to mark the end of its static
// data. The host arena starts there.
const HeapBaseExport = "__heap_base"

// Executor owns a wazero runtime with the host functions linked in.
type Executor struct {
	runtime  wazero.Runtime
	registry *hostfuncs.HandlerRegistry
	logger   *zap.Logger
	codec    wireformat.Codec
	diag     io.Writer
	budget   *time.Duration
	cfg      Config
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	e := &Executor{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}

	if e.budget != nil {
		e.cfg.CallBudget = *e.budget
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	e.logger = log.Or(e.logger)

	if e.codec == nil {
		c, err := wireformat.CodecByName(e.cfg.Codec)
		if err != nil {
			return nil, err
		}
		e.codec = c
	}

	// Default registry if not provided
	if e.registry == nil {
		reg, err := hostfuncs.NewRegistry(
			hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
			hostfuncs.WithBundle(hostfuncs.CoreBundle(e.diag)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create default registry: %w", err)
		}
		e.registry = reg
	}

	rtCfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasi: %w", err)
	}

	if err := wazeroadapter.RegisterWithRuntime(ctx, rt, e.registry,
		wazeroadapter.WithModuleName(e.cfg.ModuleName),
		wazeroadapter.WithMaxRequestSize(e.cfg.MaxRequestSize),
		wazeroadapter.WithLogger(e.logger),
	); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}
	e.runtime = rt

	e.logger.Debug("executor ready",
		zap.String("host_module", e.cfg.ModuleName),
		zap.String("codec", e.codec.Name()),
		zap.Duration("call_budget", e.cfg.CallBudget),
		zap.Strings("host_functions", e.registry.Names()),
	)
	return e, nil
}

// Close releases resources held by the executor, including every instance.
func (e *Executor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Codec returns the codec values are exchanged with.
func (e *Executor) Codec() wireformat.Codec {
	return e.codec
}

// Registry returns the linked host functions.
func (e *Executor) Registry() *hostfuncs.HandlerRegistry {
	return e.registry
}

// Module is a compiled guest. It can be instantiated any number of times.
type Module struct {
	exec     *Executor
	compiled wazero.CompiledModule
	name     string
}

// Compile validates and compiles a guest binary. Imports are resolved against
// the linked host functions when an instance is created.
func (e *Executor) Compile(ctx context.Context, wasm []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrapf(errors.KindRuntime, err, "failed to compile guest")
	}
	name := compiled.Name()
	if name == "" {
		name = "guest"
	}
	return &Module{exec: e, compiled: compiled, name: name}, nil
}

// Name returns the guest's name from its name section, or "guest".
func (m *Module) Name() string {
	return m.name
}

// Instantiate creates an isolated instance with its own linear memory and arena.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	cfg := wazero.NewModuleConfig().WithName("")
	mod, err := m.exec.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, errors.Wrapf(errors.KindRuntime, err, "failed to instantiate %s", m.name)
	}

	// Initialize if needed (reactor modules export _initialize)
	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, errors.Wrapf(errors.KindRuntime, err, "failed to call _initialize")
		}
	}

	mem := mod.Memory()
	if mem == nil {
		_ = mod.Close(ctx)
		return nil, errors.Newf(errors.KindMemory, "%s has no linear memory", m.name)
	}

	opts := []memory.Option{memory.WithMaxPages(m.exec.cfg.MemoryLimitPages)}
	if g := mod.ExportedGlobal(HeapBaseExport); g != nil && g.Type() == api.ValueTypeI32 {
		opts = append(opts, memory.WithBase(api.DecodeU32(g.Get())))
	}

	return &Instance{
		module: m,
		mod:    mod,
		mem:    memory.NewManager(mem, opts...),
		logger: m.exec.logger.With(zap.String("guest", m.name)),
	}, nil
}
