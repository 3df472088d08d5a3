package memory

import (
	"math"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/internal/abi"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// WriteBytes allocates room for data, copies it in and returns the packed pair.
func WriteBytes(m *Manager, data []byte) (uint64, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return 0, errors.Newf(errors.KindMemory, "buffer of %d bytes does not fit a 32-bit length", len(data))
	}
	length := uint32(len(data)) //nolint:gosec // G115: checked above
	ptr, err := m.Allocate(length)
	if err != nil {
		return 0, err
	}
	if err := m.Write(ptr, data); err != nil {
		return 0, err
	}
	return abi.PackPtrLen(ptr, length), nil
}

// ReadBytes reads the byte range described by a packed pair.
func ReadBytes(m *Manager, packed uint64) ([]byte, error) {
	ptr, length := abi.UnpackPtrLen(packed)
	return m.Read(ptr, length)
}

// WriteValue serializes v with c and places it in guest memory.
func WriteValue[T any](m *Manager, c wireformat.Codec, v T) (uint64, error) {
	data, err := wireformat.Encode(c, v)
	if err != nil {
		return 0, err
	}
	return WriteBytes(m, data)
}

// ReadValue reads and deserializes the T described by a packed pair.
func ReadValue[T any](m *Manager, c wireformat.Codec, packed uint64) (T, error) {
	data, err := ReadBytes(m, packed)
	if err != nil {
		var zero T
		return zero, err
	}
	return wireformat.Decode[T](c, data)
}

// WriteResult places v in guest memory wrapped in a success envelope.
func WriteResult[T any](m *Manager, c wireformat.Codec, v T) (uint64, error) {
	data, err := wireformat.EncodeOk(c, v)
	if err != nil {
		return 0, err
	}
	return WriteBytes(m, data)
}

// WriteError places a failure envelope in guest memory.
func WriteError(m *Manager, c wireformat.Codec, werr *errors.WasmError) (uint64, error) {
	data, err := wireformat.EncodeErr(c, werr)
	if err != nil {
		return 0, err
	}
	return WriteBytes(m, data)
}

// ReadResult reads an envelope and unwraps it into the value or its WasmError.
func ReadResult[T any](m *Manager, c wireformat.Codec, packed uint64) (T, error) {
	data, err := ReadBytes(m, packed)
	if err != nil {
		var zero T
		return zero, err
	}
	return wireformat.DecodeEnvelope[T](c, data)
}
