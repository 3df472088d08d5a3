package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CapturesCallerLocation(t *testing.T) {
	_, _, line, _ := runtime.Caller(0)
	err := New(KindMemory, "out of bounds")

	assert.Equal(t, "errors/errors_test.go", err.File)
	assert.Equal(t, uint32(line+1), err.Line)
	assert.Equal(t, KindMemory, err.Kind)
	assert.Equal(t, "out of bounds", err.Message)
}

func TestNewf(t *testing.T) {
	err := Newf(KindHost, "unknown host function: %s", "__nope")
	assert.Equal(t, "unknown host function: __nope", err.Message)
	assert.True(t, strings.HasSuffix(err.File, "errors_test.go"))
}

func TestWasmError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *WasmError
		want string
	}{
		{
			name: "guest error with location",
			err:  At("src/wasm.rs", 132, KindGuest, "it fails!: ()"),
			want: "Guest error: it fails!: () (src/wasm.rs:132)",
		},
		{
			name: "no message",
			err:  At("memory/manager.go", 10, KindMemory, ""),
			want: "Memory error (memory/manager.go:10)",
		},
		{
			name: "no location",
			err:  &WasmError{Kind: KindRuntime, Message: "trap"},
			want: "Runtime error: trap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWasmError_NilError(t *testing.T) {
	var err *WasmError
	assert.Equal(t, "", err.Error())
}

func TestWasmError_IsKindSentinel(t *testing.T) {
	err := New(KindDeserialize, "bad bytes")
	wrapped := fmt.Errorf("call failed: %w", err)

	assert.True(t, errors.Is(err, ErrDeserialize))
	assert.True(t, errors.Is(wrapped, ErrDeserialize))
	assert.False(t, errors.Is(wrapped, ErrSerialize))
	assert.False(t, errors.Is(err, At("x.go", 1, KindDeserialize, "bad bytes")))
}

func TestWrap_PreservesExistingWasmError(t *testing.T) {
	original := At("src/wasm.rs", 103, KindGuest, "oh no!")
	wrapped := fmt.Errorf("layer: %w", original)

	got := Wrap(KindRuntime, wrapped)
	require.Same(t, original, got)
	assert.Equal(t, KindGuest, got.Kind)
	assert.Equal(t, uint32(103), got.Line)
}

func TestWrap_ForeignError(t *testing.T) {
	base := errors.New("engine trap")
	got := Wrap(KindRuntime, base)

	assert.Equal(t, KindRuntime, got.Kind)
	assert.Equal(t, "engine trap", got.Message)
	assert.True(t, errors.Is(got, base))
	assert.Equal(t, "errors/errors_test.go", got.File)
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(KindHost, nil))
	assert.Nil(t, Wrapf(KindHost, nil, "ignored"))
}

func TestWrapf(t *testing.T) {
	got := Wrapf(KindSerialize, errors.New("unsupported value: NaN"), "encode %s", "float64")
	assert.Equal(t, "encode float64: unsupported value: NaN", got.Message)
	assert.Equal(t, KindSerialize, got.Kind)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindGuest, KindOf(fmt.Errorf("x: %w", New(KindGuest, "boom"))))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.True(t, IsGuest(New(KindGuest, "boom")))
	assert.False(t, IsGuest(New(KindRuntime, "trap")))
}

func TestWasmError_Equal(t *testing.T) {
	a := At("src/wasm.rs", 132, KindGuest, "it fails!: ()")
	b := At("src/wasm.rs", 132, KindGuest, "it fails!: ()")
	c := At("src/wasm.rs", 133, KindGuest, "it fails!: ()")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
	var nilErr *WasmError
	assert.True(t, nilErr.Equal(nil))
}
