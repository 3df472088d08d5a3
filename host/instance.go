package host

import (
	"context"
	stdErrors "errors"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/hostfuncs"
	wazeroadapter "github.com/reglet-dev/wasmbridge/infrastructure/wazero"
	"github.com/reglet-dev/wasmbridge/internal/abi"
	"github.com/reglet-dev/wasmbridge/memory"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// ErrInstanceFaulted is returned for calls on an instance an earlier call
// faulted. Its memory may be inconsistent, so it is never reused.
var ErrInstanceFaulted = stdErrors.New("instance faulted")

// Instance is one isolated guest instance. Calls on it are serialized.
type Instance struct {
	module *Module
	mod    api.Module
	mem    *memory.Manager
	logger *zap.Logger
	fault  error
	mu     sync.Mutex
}

// Faulted reports whether an engine fault has retired the instance.
func (i *Instance) Faulted() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fault != nil
}

// Pages returns the instance's memory size in pages.
func (i *Instance) Pages() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mem.Pages()
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}

// callForm is how an export receives its argument pair.
type callForm int

const (
	formPair   callForm = iota // (i32 ptr, i32 len)
	formPacked                 // (i64 packed)
)

// decodeFunc turns the final bytes of a call into the caller's value. direct is
// set for short-circuit payloads, which carry the bare value.
type decodeFunc func(c wireformat.Codec, data []byte, direct bool) error

// Call invokes export with args and decodes its result as R.
//
// args is encoded into the instance's arena before the export runs; failing to
// encode is a Serialize error and the export is never invoked. The export must
// take (i32 ptr, i32 len) or a single packed i64 and return a packed i64 naming
// a result envelope. A host function that short-circuits supplies the result
// instead. Engine faults, including an exhausted call budget, are Runtime
// errors and retire the instance.
func Call[R any](ctx context.Context, inst *Instance, export string, args any) (R, error) {
	var out R
	err := inst.call(ctx, export, args, func(c wireformat.Codec, data []byte, direct bool) error {
		var err error
		if direct {
			out, err = wireformat.Decode[R](c, data)
		} else {
			out, err = wireformat.DecodeEnvelope[R](c, data)
		}
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

func (i *Instance) call(ctx context.Context, export string, args any, decode decodeFunc) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	fn, err := i.lookup(export)
	if err != nil {
		return err
	}
	form, err := pairForm(export, fn.Definition())
	if err != nil {
		return err
	}

	defer i.mem.Release()
	c := i.module.exec.codec

	packed, err := memory.WriteValue(i.mem, c, args)
	if err != nil {
		return err
	}

	params := []uint64{packed}
	if form == formPair {
		ptr, length := abi.UnpackPtrLen(packed)
		params = []uint64{api.EncodeU32(ptr), api.EncodeU32(length)}
	}

	state, results, callErr := i.invoke(ctx, export, fn, params)
	if out, ok := state.Outcome(); ok {
		switch out.Kind {
		case hostfuncs.OutcomeShortCircuit:
			return decode(c, out.Data, true)
		case hostfuncs.OutcomeAbort:
			return out.Err
		}
	}
	if callErr != nil {
		return i.retire(export, callErr)
	}

	data, err := memory.ReadBytes(i.mem, results[0])
	if err != nil {
		return err
	}
	return decode(c, data, false)
}

// CallScalar invokes an export that takes and returns plain integers.
// Host functions still see the instance's memory during the call.
func (i *Instance) CallScalar(ctx context.Context, export string, params ...uint64) ([]uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	fn, err := i.lookup(export)
	if err != nil {
		return nil, err
	}
	defer i.mem.Release()

	state, results, callErr := i.invoke(ctx, export, fn, params)
	if out, ok := state.Outcome(); ok {
		if out.Kind == hostfuncs.OutcomeAbort {
			return nil, out.Err
		}
		return nil, errors.Newf(errors.KindHost, "host function short-circuited scalar export %s", export)
	}
	if callErr != nil {
		return nil, i.retire(export, callErr)
	}
	return results, nil
}

func (i *Instance) lookup(export string) (api.Function, error) {
	if i.fault != nil {
		return nil, errors.Wrapf(errors.KindRuntime, ErrInstanceFaulted, "cannot call %s", export)
	}
	if !i.module.exec.cfg.Allowed(export) {
		return nil, errors.Newf(errors.KindHost, "export %s is not allowed", export)
	}
	fn := i.mod.ExportedFunction(export)
	if fn == nil {
		return nil, errors.Newf(errors.KindHost, "export %s not found", export)
	}
	return fn, nil
}

// invoke runs fn under the call budget with a fresh CallState.
func (i *Instance) invoke(ctx context.Context, export string, fn api.Function, params []uint64) (*hostfuncs.CallState, []uint64, error) {
	state := hostfuncs.NewCallState(i.mem, i.module.exec.codec)
	callCtx := hostfuncs.WithCallState(ctx, state)
	callCtx = wazeroadapter.WithGuestName(callCtx, i.module.name)

	if budget := i.module.exec.cfg.CallBudget; budget > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, budget)
		defer cancel()
	}

	results, err := fn.Call(callCtx, params...)
	if ce := i.logger.Check(zap.DebugLevel, "guest call finished"); ce != nil {
		ce.Write(zap.String("export", export), zap.Error(err))
	}
	return state, results, err
}

// retire marks the instance faulted after an engine fault and closes it.
func (i *Instance) retire(export string, cause error) error {
	werr := errors.Wrapf(errors.KindRuntime, cause, "guest call %s failed", export)
	i.fault = werr
	i.logger.Warn("instance faulted", zap.String("export", export), zap.Error(cause))
	_ = i.mod.Close(context.Background())
	return werr
}

func pairForm(export string, def api.FunctionDefinition) (callForm, error) {
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(results) == 1 && results[0] == api.ValueTypeI64 {
		switch {
		case len(params) == 2 && params[0] == api.ValueTypeI32 && params[1] == api.ValueTypeI32:
			return formPair, nil
		case len(params) == 1 && params[0] == api.ValueTypeI64:
			return formPacked, nil
		}
	}
	return 0, errors.Newf(errors.KindHost,
		"export %s has signature %v -> %v, want (i32, i32) -> i64 or (i64) -> i64",
		export, valueTypeNames(params), valueTypeNames(results))
}

func valueTypeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for n, t := range types {
		names[n] = api.ValueTypeName(t)
	}
	return names
}
