package testguest

import (
	"fmt"

	"github.com/wippyai/wasm-runtime/wat"

	"github.com/reglet-dev/wasmbridge/internal/abi"
)

const garbage = "not an envelope"

// OutOfBounds is the packed result out_of_bounds_result returns. Its range
// starts far past any memory the guest can have.
var OutOfBounds = abi.PackPtrLen(0x7fff0000, 16)

const packedWAT = `(module
  (import %[1]q %[2]q (func $process_string (param i32 i32) (result i64)))
  (memory (export "memory") 1)
  (data (i32.const 1024) %[3]q)

  (func (export "process_packed") (param i64) (result i64)
    (call $process_string
      (i32.wrap_i64 (i64.shr_u (local.get 0) (i64.const 32)))
      (i32.wrap_i64 (local.get 0))))

  (func (export "garbage_result") (param i32 i32) (result i64)
    (i64.const %[4]d))

  (func (export "out_of_bounds_result") (param i32 i32) (result i64)
    (i64.const %[5]d)))
`

// Packed compiles a guest from WAT whose exports exercise the edges of the
// calling convention rather than a codec:
//
//	process_packed        takes one packed i64 and forwards it to the host's
//	                      __test_process_string
//	garbage_result        returns bytes that are no envelope in any codec
//	out_of_bounds_result  returns OutOfBounds
func Packed() ([]byte, error) {
	src := fmt.Sprintf(packedWAT,
		ImportModule, FuncProcessString, garbage,
		abi.PackPtrLen(1024, uint32(len(garbage))), OutOfBounds)
	wasm, err := wat.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile packed guest: %w", err)
	}
	return wasm, nil
}

// MustPacked is Packed for tests.
func MustPacked() []byte {
	b, err := Packed()
	if err != nil {
		panic(err)
	}
	return b
}
