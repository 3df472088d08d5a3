// Package abi implements the scalar encoding used to pass byte ranges across the
// wasm boundary. A guest pointer and a length are packed into one uint64 so that a
// single i64 parameter or result can describe any contiguous region of linear memory.
package abi

// PtrHighBits is the shift applied to the pointer half of a packed value.
const PtrHighBits = 32

// PackPtrLen packs a pointer and length into a single uint64.
// Pointer is stored in the high 32 bits, length in the low 32 bits.
func PackPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << PtrHighBits) | uint64(length)
}

// UnpackPtrLen unpacks a uint64 into its original pointer and length.
// It is pure arithmetic: a decoded pair says nothing about whether the
// referenced bytes exist, that is checked when they are read.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> PtrHighBits) //nolint:gosec // G115: packed format stores 32-bit values
	length = uint32(packed)             //nolint:gosec // G115: packed format stores 32-bit values
	return ptr, length
}

// SplitParams unpacks a packed pair into the two i32 stack values used by
// (ptr, len) function signatures.
func SplitParams(packed uint64) (ptrParam, lenParam uint64) {
	ptr, length := UnpackPtrLen(packed)
	return uint64(ptr), uint64(length)
}
