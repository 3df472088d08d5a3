// Package host calls into wasm guests across a scalar-only ABI.
//
// An Executor owns a wazero runtime with the host functions linked in. A
// compiled Module is instantiated into isolated Instances, each with its own
// linear memory and a host-managed arena. Call encodes a typed argument into
// the arena, invokes a guest export with its (ptr, len) pair and decodes the
// result envelope the guest returns, or the value a host function
// short-circuited with. Fanout spreads calls over a pool of instances.
//
// Failures are *errors.WasmError values. Engine faults, including an exhausted
// call budget, retire the instance they happened on.
package host
