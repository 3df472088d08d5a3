package hostfuncs

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/log"
	"github.com/reglet-dev/wasmbridge/memory"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// Names of the built-in host functions.
const (
	FuncAllocate     = "__allocate"
	FuncPages        = "__pages"
	FuncDebug        = "__debug"
	FuncRuntimeError = "__runtime_error"
)

// HostFuncBundle is a pre-configured set of related host functions.
// Bundles allow registering multiple handlers at once for common use cases.
type HostFuncBundle interface {
	// Functions returns the bundle's host functions keyed by name.
	Functions() map[string]Function
}

// staticBundle implements HostFuncBundle with a fixed set of functions.
type staticBundle struct {
	functions map[string]Function
}

func (b *staticBundle) Functions() map[string]Function {
	return b.functions
}

// NewBundle creates a bundle from the given functions.
func NewBundle(functions map[string]Function) HostFuncBundle {
	return &staticBundle{functions: functions}
}

// CoreBundle returns the built-in host functions every guest links against:
// __allocate, __pages, __debug and __runtime_error. __debug writes to diag;
// a nil diag discards.
func CoreBundle(diag io.Writer) HostFuncBundle {
	if diag == nil {
		diag = io.Discard
	}
	return &staticBundle{
		functions: map[string]Function{
			FuncAllocate:     {Scalar: allocate, Width: Scalar32},
			FuncPages:        {Scalar: pages, Width: Scalar32},
			FuncDebug:        {Scalar: debug(diag), Width: Scalar64},
			FuncRuntimeError: {Pair: runtimeError},
		},
	}
}

func callMemory(hc HostContext) (*memory.Manager, error) {
	m := hc.Memory()
	if m == nil {
		return nil, errors.Newf(errors.KindHost, "%s called outside a guest call", hc.FunctionName())
	}
	return m, nil
}

// allocate reserves guest memory on behalf of the guest. The guest never moves
// the arena itself, so every live pointer stays valid.
func allocate(hc HostContext, length uint32) (uint64, error) {
	m, err := callMemory(hc)
	if err != nil {
		return 0, err
	}
	ptr, err := m.Allocate(length)
	if err != nil {
		return 0, err
	}
	return uint64(ptr), nil
}

// pages reports the current memory size in pages. It has no side effects.
func pages(hc HostContext, _ uint32) (uint64, error) {
	m, err := callMemory(hc)
	if err != nil {
		return 0, err
	}
	return uint64(m.Pages()), nil
}

func debug(diag io.Writer) ScalarHandler {
	return func(hc HostContext, v uint32) (uint64, error) {
		m, err := callMemory(hc)
		if err != nil {
			return 0, err
		}
		if _, err := fmt.Fprintf(diag, "debug %d\n", v); err != nil {
			log.L().Warn("diagnostic sink write failed", zap.Error(err))
		}
		log.L().Debug("guest debug", zap.Uint32("value", v))
		return memory.WriteResult(m, hc.Codec(), wireformat.Unit{})
	}
}

// runtimeError lets a guest raise a WasmError. The call aborts with that exact
// error so its origin survives to the caller.
func runtimeError(hc HostContext, payload []byte) Outcome {
	werr, err := wireformat.Decode[*errors.WasmError](hc.Codec(), payload)
	if err != nil {
		return Abort(errors.Wrap(errors.KindDeserialize, err))
	}
	if werr == nil {
		return Abort(errors.New(errors.KindDeserialize, "guest raised an empty error"))
	}
	return Abort(werr)
}

// compositeBundle combines multiple bundles into one.
type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Functions() map[string]Function {
	result := make(map[string]Function)
	for _, bundle := range b.bundles {
		for name, fn := range bundle.Functions() {
			result[name] = fn
		}
	}
	return result
}

// Combine returns a bundle containing the functions of all given bundles.
// Functions merges them with later bundles winning, but registering the
// combination through WithBundle reports any name defined by two bundles.
func Combine(bundles ...HostFuncBundle) HostFuncBundle {
	return &compositeBundle{bundles: bundles}
}

// WithBundle registers all functions from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		b.addBundle(bundle)
	}
}

func (b *registryBuilder) addBundle(bundle HostFuncBundle) {
	if cb, ok := bundle.(*compositeBundle); ok {
		for _, part := range cb.bundles {
			b.addBundle(part)
		}
		return
	}
	for name, fn := range bundle.Functions() {
		b.add(name, fn)
	}
}
