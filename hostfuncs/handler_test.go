package hostfuncs

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

type greetRequest struct {
	Name string `json:"name" msgpack:"name" validate:"required"`
}

type greetResponse struct {
	Greeting string `json:"greeting" msgpack:"greeting"`
}

func greet(_ HostContext, req greetRequest) (greetResponse, error) {
	return greetResponse{Greeting: "hello " + req.Name}, nil
}

func TestNewHandler(t *testing.T) {
	for _, c := range []wireformat.Codec{wireformat.JSON, wireformat.Msgpack} {
		t.Run(c.Name(), func(t *testing.T) {
			handler := NewHandler(greet)

			t.Run("success", func(t *testing.T) {
				hc, _ := callContext(t, "greet", c)
				out := handler(hc, encode(t, c, greetRequest{Name: "wasm"}))

				resp, err := decodeReturn[greetResponse](t, c, out)
				require.NoError(t, err)
				assert.Equal(t, "hello wasm", resp.Greeting)
			})

			t.Run("malformed request returns Deserialize envelope", func(t *testing.T) {
				hc, _ := callContext(t, "greet", c)
				out := handler(hc, []byte{0xc1, '{'})

				_, err := decodeReturn[greetResponse](t, c, out)
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrDeserialize)
			})

			t.Run("validation failure returns Deserialize envelope", func(t *testing.T) {
				hc, _ := callContext(t, "greet", c)
				out := handler(hc, encode(t, c, greetRequest{}))

				_, err := decodeReturn[greetResponse](t, c, out)
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrDeserialize)
				assert.Contains(t, err.Error(), "invalid greet request")
			})
		})
	}
}

func TestNewHandler_HostFailure(t *testing.T) {
	t.Run("plain error becomes Host", func(t *testing.T) {
		handler := NewHandler(func(HostContext, string) (string, error) {
			return "", fmt.Errorf("backend unavailable")
		})
		hc, _ := callContext(t, "lookup", wireformat.JSON)

		_, err := decodeReturn[string](t, wireformat.JSON, handler(hc, []byte(`"key"`)))
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrHost)
		assert.Contains(t, err.Error(), "backend unavailable")
	})

	t.Run("WasmError keeps its origin", func(t *testing.T) {
		raised := errors.At("src/lib.rs", 7, errors.KindGuest, "nope")
		handler := NewHandler(func(HostContext, string) (string, error) {
			return "", raised
		})
		hc, _ := callContext(t, "lookup", wireformat.JSON)

		_, err := decodeReturn[string](t, wireformat.JSON, handler(hc, []byte(`"key"`)))
		var got *errors.WasmError
		require.ErrorAs(t, err, &got)
		assert.True(t, got.Equal(raised))
	})

	t.Run("unencodable response becomes Serialize", func(t *testing.T) {
		handler := NewHandler(func(HostContext, string) (float64, error) {
			return math.NaN(), nil
		})
		hc, _ := callContext(t, "nan", wireformat.JSON)

		_, err := decodeReturn[float64](t, wireformat.JSON, handler(hc, []byte(`"x"`)))
		assert.ErrorIs(t, err, errors.ErrSerialize)
	})
}

func TestNewShortCircuitHandler(t *testing.T) {
	handler := NewShortCircuitHandler(func(HostContext, wireformat.Unit) string {
		return "shorts"
	})
	hc, _ := callContext(t, "__short_circuit", wireformat.JSON)

	out := handler(hc, []byte(`{}`))
	require.Equal(t, OutcomeShortCircuit, out.Kind)

	got, err := wireformat.Decode[string](wireformat.JSON, out.Data)
	require.NoError(t, err)
	assert.Equal(t, "shorts", got)
}

func TestNewShortCircuitHandler_BadRequest(t *testing.T) {
	handler := NewShortCircuitHandler(func(HostContext, greetRequest) string {
		return "unreachable"
	})
	hc, _ := callContext(t, "sc", wireformat.JSON)

	out := handler(hc, []byte(`{`))
	assert.Equal(t, OutcomeReturn, out.Kind, "a bad request is reported to the guest, not a short-circuit")
}

func TestNewShortCircuitHandler_UnencodableResponseAborts(t *testing.T) {
	handler := NewShortCircuitHandler(func(HostContext, string) float64 {
		return math.Inf(1)
	})
	hc, _ := callContext(t, "sc", wireformat.JSON)

	out := handler(hc, []byte(`"x"`))
	require.Equal(t, OutcomeAbort, out.Kind)
	assert.ErrorIs(t, out.Err, errors.ErrSerialize)
}

func TestFunction_Signature(t *testing.T) {
	assert.Equal(t, "(i32, i32) -> i64", Function{Pair: NewHandler(greet)}.Signature())
	assert.Equal(t, "(i32) -> i32", Function{Scalar: pages, Width: Scalar32}.Signature())
	assert.Equal(t, "(i32) -> i64", Function{Scalar: pages, Width: Scalar64}.Signature())
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, validateRequest("plain string"))
	assert.NoError(t, validateRequest((*greetRequest)(nil)))
	assert.NoError(t, validateRequest(&greetRequest{Name: "x"}))
	assert.Error(t, validateRequest(&greetRequest{}))
}
