// Package hostfuncs defines the host call surface offered to guests.
//
// Host functions come in two shapes. Pair handlers receive the bytes a guest
// placed at (ptr, len) and answer with an Outcome: an encoded result envelope
// handed back to the guest, or a terminal short-circuit or abort that ends the
// guest call. Scalar handlers take and return plain integers.
//
// Nothing here depends on a wasm engine; infrastructure/wazero binds a
// HandlerRegistry to wazero host modules.
package hostfuncs
