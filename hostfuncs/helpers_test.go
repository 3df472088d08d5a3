package hostfuncs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/wasmbridge/memory"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// callContext returns a HostContext bound to a fresh one-page memory.
func callContext(t *testing.T, name string, c wireformat.Codec) (HostContext, *CallState) {
	t.Helper()
	state := NewCallState(memory.NewManager(memory.NewSliceMemory(1, 16)), c)
	return NewHostContext(WithCallState(context.Background(), state), name), state
}

func encode(t *testing.T, c wireformat.Codec, v any) []byte {
	t.Helper()
	data, err := wireformat.Encode(c, v)
	require.NoError(t, err)
	return data
}

func decodeReturn[T any](t *testing.T, c wireformat.Codec, out Outcome) (T, error) {
	t.Helper()
	require.Equal(t, OutcomeReturn, out.Kind, "expected an envelope for the guest")
	return wireformat.DecodeEnvelope[T](c, out.Data)
}
