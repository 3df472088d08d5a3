// Package wazero binds a hostfuncs.HandlerRegistry to the wazero runtime.
//
// It handles:
//
//   - Exporting pair functions as (i32 ptr, i32 len) -> i64 and scalar functions
//     as (i32) -> i32 or (i32) -> i64
//   - Reading request data from guest memory
//   - Writing response envelopes into the calling instance's arena
//   - Unwinding the guest when a host function short-circuits or aborts the call
//
// # Basic Usage
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithBundle(hostfuncs.CoreBundle(os.Stderr)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	runtime := wazero.NewRuntime(ctx)
//	err = wazero.RegisterWithRuntime(ctx, runtime, registry)
//
// # Custom Handlers
//
// For functions that don't fit either signature use WithCustomHandler:
//
//	wazero.RegisterWithRuntime(ctx, runtime, registry,
//	    wazero.WithCustomHandler(wazero.CustomHandler{
//	        Name:        "tick",
//	        Handler:     tickHandler,
//	        ParamTypes:  []api.ValueType{},
//	        ResultTypes: []api.ValueType{},
//	    }),
//	)
package wazero
