package wazero

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/hostfuncs"
	"github.com/reglet-dev/wasmbridge/log"
	"github.com/reglet-dev/wasmbridge/memory"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// DefaultModuleName is the import module guests link host functions from.
const DefaultModuleName = "env"

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// Logger receives adapter diagnostics. Defaults to the process logger.
	Logger *zap.Logger

	// ModuleName is the host module name (default: "env").
	ModuleName string

	// CustomHandlers allows adding additional wazero-specific handlers that
	// don't fit the pair or scalar signatures.
	CustomHandlers []CustomHandler

	// MaxRequestSize limits the size of incoming requests from guest memory.
	// Default is 1MB.
	MaxRequestSize uint32
}

// CustomHandler represents a custom wazero handler that doesn't use the pair
// or scalar signatures.
type CustomHandler struct {
	// Handler is the wazero GoModuleFunc implementation.
	Handler api.GoModuleFunc

	// Name is the exported function name.
	Name string

	// ParamTypes are the WASM parameter types.
	ParamTypes []api.ValueType

	// ResultTypes are the WASM result types.
	ResultTypes []api.ValueType
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "env").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxRequestSize sets the maximum request size from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

// WithCustomHandler adds a custom wazero handler.
func WithCustomHandler(h CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h)
	}
}

// WithLogger sets the adapter's logger.
func WithLogger(l *zap.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		c.Logger = l
	}
}

// defaultAdapterConfig returns the default adapter configuration.
func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName:     DefaultModuleName,
		MaxRequestSize: hostfuncs.DefaultMaxRequestSize,
	}
}

var (
	pairParams   = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	pairResults  = []api.ValueType{api.ValueTypeI64}
	scalarParams = []api.ValueType{api.ValueTypeI32}
)

// RegisterWithRuntime registers all handlers from a HandlerRegistry with a wazero runtime.
// This creates a host module with the configured name (default: "env") and
// exports every function of the registry under its own name.
//
// Pair functions are exported as (i32 ptr, i32 len) -> i64. Each one:
//   - reads the request bytes the guest placed at (ptr, len)
//   - invokes the handler with the call's HostContext
//   - writes the response envelope into the calling instance's arena
//   - returns the packed ptr+len of the response
//
// A terminal outcome (short-circuit or abort) is recorded in the call's
// hostfuncs.CallState and the guest is unwound.
//
// Scalar functions are exported as (i32) -> i32 or (i32) -> i64.
//
// A name claimed both by the registry and a custom handler is an error.
//
// Example:
//
//	registry, _ := hostfuncs.NewRegistry(
//	    hostfuncs.WithBundle(hostfuncs.CoreBundle(os.Stderr)),
//	)
//	err := wazero.RegisterWithRuntime(ctx, runtime, registry)
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Logger = log.Or(cfg.Logger).With(zap.String("host_module", cfg.ModuleName))

	seen := make(map[string]bool, len(cfg.CustomHandlers))
	for _, ch := range cfg.CustomHandlers {
		if registry.Has(ch.Name) {
			return errors.Newf(errors.KindHost, "host function %q is claimed by both the registry and a custom handler", ch.Name)
		}
		if seen[ch.Name] {
			return errors.Newf(errors.KindHost, "duplicate custom handler %q", ch.Name)
		}
		seen[ch.Name] = true
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)
	direct := newDirectArenas()

	for _, name := range registry.Names() {
		fn, _ := registry.Lookup(name)
		if fn.IsScalar() {
			results := []api.ValueType{api.ValueTypeI32}
			if fn.Width == hostfuncs.Scalar64 {
				results = []api.ValueType{api.ValueTypeI64}
			}
			builder.NewFunctionBuilder().
				WithGoModuleFunction(scalarFunc(registry, name, fn.Width, cfg, direct), scalarParams, results).
				Export(name)
			continue
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(pairFunc(registry, name, cfg, direct), pairParams, pairResults).
			Export(name)
	}

	for _, ch := range cfg.CustomHandlers {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(ch.Handler, ch.ParamTypes, ch.ResultTypes).
			Export(ch.Name)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("failed to instantiate host module %q: %w", cfg.ModuleName, err)
	}
	return nil
}

func pairFunc(registry *hostfuncs.HandlerRegistry, name string, cfg AdapterConfig, direct *directArenas) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		ctx, state := direct.callState(ctx, mod, true, cfg.Logger)
		ptr, length := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])

		if length > cfg.MaxRequestSize {
			werr := errors.Newf(errors.KindHost, "request size %d exceeds maximum %d bytes", length, cfg.MaxRequestSize)
			stack[0] = respond(ctx, mod, state, name, hostfuncs.Fail(state.Codec(), werr), cfg.Logger)
			return
		}

		payload, err := state.Memory().Read(ptr, length)
		if err != nil {
			terminate(ctx, mod, state, name, hostfuncs.Abort(errors.Wrap(errors.KindMemory, err)), cfg.Logger)
		}

		out := registry.Invoke(ctx, name, payload)
		stack[0] = respond(ctx, mod, state, name, out, cfg.Logger)
	}
}

func scalarFunc(registry *hostfuncs.HandlerRegistry, name string, width hostfuncs.ScalarWidth, cfg AdapterConfig, direct *directArenas) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		ctx, state := direct.callState(ctx, mod, width == hostfuncs.Scalar64, cfg.Logger)
		v, err := registry.InvokeScalar(ctx, name, api.DecodeU32(stack[0]))
		if err != nil {
			terminate(ctx, mod, state, name, hostfuncs.Abort(errors.Wrap(errors.KindHost, err)), cfg.Logger)
		}
		if width == hostfuncs.Scalar32 {
			stack[0] = api.EncodeU32(uint32(v)) //nolint:gosec // G115: i32 results are 32-bit by contract
			return
		}
		stack[0] = v
	}
}

// respond writes a Return outcome into guest memory, or unwinds the guest for a
// terminal one.
func respond(ctx context.Context, mod api.Module, state *hostfuncs.CallState, name string, out hostfuncs.Outcome, logger *zap.Logger) uint64 {
	if out.Terminal() {
		terminate(ctx, mod, state, name, out, logger)
	}
	packed, err := memory.WriteBytes(state.Memory(), out.Data)
	if err != nil {
		terminate(ctx, mod, state, name, hostfuncs.Abort(errors.Wrap(errors.KindMemory, err)), logger)
	}
	return packed
}

// terminate records out and unwinds the guest. It never returns.
func terminate(ctx context.Context, mod api.Module, state *hostfuncs.CallState, name string, out hostfuncs.Outcome, logger *zap.Logger) {
	recorded := state.Terminate(out)
	if ce := logger.Check(zap.DebugLevel, "host function ended guest call"); ce != nil {
		ce.Write(
			zap.String("guest", GetGuestName(ctx, mod)),
			zap.String("function", name),
			zap.Stringer("outcome", out.Kind),
			zap.Bool("recorded", recorded),
		)
	}
	if out.Err != nil {
		panic(fmt.Errorf("%w: %w", hostfuncs.ErrCallTerminated, out.Err))
	}
	panic(hostfuncs.ErrCallTerminated)
}

// directArenas holds one arena per instance for guests driven directly through
// wazero, outside the dispatcher. Such calls have no end the host can observe,
// so the arena is rewound at every host call that answers with a packed range
// instead. A request the guest built in the arena is read before the rewound
// arena is written; older responses and buffers are invalid after the call.
type directArenas struct {
	mu     sync.Mutex
	arenas map[api.Module]*memory.Manager
}

func newDirectArenas() *directArenas {
	return &directArenas{arenas: make(map[api.Module]*memory.Manager)}
}

// arena returns mod's arena, creating it on first use. Arenas of closed
// instances are dropped.
func (d *directArenas) arena(mod api.Module) *memory.Manager {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m, ok := d.arenas[mod]; ok {
		return m
	}
	for other := range d.arenas {
		if other.IsClosed() {
			delete(d.arenas, other)
		}
	}
	m := memory.NewManager(mod.Memory())
	d.arenas[mod] = m
	return m
}

// callState returns the dispatcher's CallState, or a transient one over mod's
// direct arena. rewind releases that arena first.
func (d *directArenas) callState(ctx context.Context, mod api.Module, rewind bool, logger *zap.Logger) (context.Context, *hostfuncs.CallState) {
	if state, ok := hostfuncs.CallStateFrom(ctx); ok {
		return ctx, state
	}
	logger.Debug("host function called without a call state", zap.String("guest", GetGuestName(ctx, mod)))
	if mod.Memory() == nil {
		panic(errors.New(errors.KindMemory, "guest has no linear memory"))
	}
	m := d.arena(mod)
	if rewind {
		m.Release()
	}
	state := hostfuncs.NewCallState(m, wireformat.JSON)
	return hostfuncs.WithCallState(ctx, state), state
}
