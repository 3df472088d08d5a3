package wireformat

import (
	stdErrors "errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/internal/testutil"
)

type sample struct {
	Name  string   `json:"name" msgpack:"name"`
	Tags  []string `json:"tags,omitempty" msgpack:"tags,omitempty"`
	Count int      `json:"count" msgpack:"count"`
}

var codecs = []Codec{JSON, Msgpack}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("json")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())

	c, err = CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())

	c, err = CodecByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, CodecMsgpack, c.Name())

	_, err = CodecByName("cbor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown codec")
}

func TestEnvelope_OkRoundTrip(t *testing.T) {
	for _, c := range codecs {
		t.Run(c.Name(), func(t *testing.T) {
			in := sample{Name: "foo", Count: 3, Tags: []string{"a", "b"}}
			data, err := EncodeOk(c, in)
			require.NoError(t, err)

			out, err := DecodeEnvelope[sample](c, data)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestEnvelope_ErrRoundTrip(t *testing.T) {
	for _, c := range codecs {
		t.Run(c.Name(), func(t *testing.T) {
			werr := errors.At("src/wasm.rs", 103, errors.KindGuest, "oh no!")
			data, err := EncodeErr(c, werr)
			require.NoError(t, err)

			// A failure envelope must decode regardless of the success type.
			_, err = DecodeEnvelope[string](c, data)
			require.Error(t, err)

			var got *errors.WasmError
			require.True(t, stdErrors.As(err, &got))
			assert.True(t, werr.Equal(got))

			_, err = DecodeEnvelope[sample](c, data)
			require.True(t, stdErrors.As(err, &got))
			assert.Equal(t, "oh no!", got.Message)
		})
	}
}

func TestEnvelope_UnitValue(t *testing.T) {
	for _, c := range codecs {
		data, err := EncodeOk(c, Unit{})
		require.NoError(t, err)
		_, err = DecodeEnvelope[Unit](c, data)
		assert.NoError(t, err, c.Name())
	}
}

func TestEncode_NonRepresentableFloat(t *testing.T) {
	_, err := Encode(JSON, math.NaN())
	require.Error(t, err)
	assert.True(t, stdErrors.Is(err, errors.ErrSerialize))
	assert.Contains(t, err.Error(), "json encode float64")
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		data  []byte
	}{
		{"json garbage", JSON, []byte("{not json")},
		{"json type mismatch", JSON, []byte(`{"ok":42}`)},
		{"json trailing data", JSON, []byte(`{"ok":"a"} {"ok":"b"}`)},
		{"msgpack truncated", Msgpack, []byte{0x81, 0xa2, 'o'}},
		{"json empty object", JSON, []byte(`{}`)},
		{"json null", JSON, []byte(`null`)},
		{"json null err only", JSON, []byte(`{"err":null}`)},
		{"msgpack nil", Msgpack, []byte{0xc0}},
		{"msgpack empty map", Msgpack, []byte{0x80}},
		{"msgpack trailing data", Msgpack, append(mustEncodeOk(t, Msgpack, "a"), 0x01, 0x02)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope[string](tt.codec, tt.data)
			require.Error(t, err)
			assert.Equal(t, errors.KindDeserialize, errors.KindOf(err))
		})
	}
}

func mustEncodeOk[T any](t *testing.T, c Codec, v T) []byte {
	t.Helper()
	data, err := EncodeOk(c, v)
	require.NoError(t, err)
	return data
}

func TestDecode_MsgpackTrailingPlainValue(t *testing.T) {
	data, err := Encode(Msgpack, "a")
	require.NoError(t, err)

	_, err = Decode[string](Msgpack, append(data, 0xc0))
	require.Error(t, err)
	assert.Equal(t, errors.KindDeserialize, errors.KindOf(err))
	assert.Contains(t, err.Error(), "trailing data")
}

func TestEnvelope_NullOkIsPresent(t *testing.T) {
	out, err := DecodeEnvelope[*sample](JSON, []byte(`{"ok":null}`))
	require.NoError(t, err)
	assert.Nil(t, out)

	zero, err := DecodeEnvelope[int](Msgpack, mustEncodeOk(t, Msgpack, 0))
	require.NoError(t, err)
	assert.Zero(t, zero)
}

func TestEnvelope_LargeString(t *testing.T) {
	big := strings.Repeat("╰▐ ✖ 〜 ✖ ▐╯", 10*math.MaxUint16)
	for _, c := range codecs {
		data, err := EncodeOk(c, big)
		require.NoError(t, err)
		out, err := DecodeEnvelope[string](c, data)
		require.NoError(t, err)
		assert.Equal(t, big, out, c.Name())
	}
}

func TestDecode_Plain(t *testing.T) {
	for _, c := range codecs {
		data, err := Encode(c, "shorts")
		require.NoError(t, err)
		s, err := Decode[string](c, data)
		require.NoError(t, err)
		assert.Equal(t, "shorts", s)
	}
}

func TestEnvelope_JSONWireShape(t *testing.T) {
	ok, err := EncodeOk(JSON, "hi")
	require.NoError(t, err)
	testutil.AssertJSONEqual(t, `{"ok":"hi"}`, string(ok))

	fail, err := EncodeErr(JSON, errors.At("src/wasm.rs", 103, errors.KindGuest, "oh no!"))
	require.NoError(t, err)
	testutil.AssertJSONEqual(t,
		`{"err":{"file":"src/wasm.rs","line":103,"kind":"Guest","message":"oh no!"}}`,
		string(fail))
}
