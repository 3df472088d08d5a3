package wireformat

import (
	"github.com/reglet-dev/wasmbridge/domain/errors"
)

// Envelope is the result wrapper every value travels in, so a single scalar
// return can carry either a success value or a structured failure.
// A non-nil Err marks a failure; otherwise Ok holds the value.
type Envelope[T any] struct {
	Ok  T                 `json:"ok" msgpack:"ok"`
	Err *errors.WasmError `json:"err,omitempty" msgpack:"err,omitempty"`
}

// Ok wraps a success value.
func Ok[T any](v T) Envelope[T] {
	return Envelope[T]{Ok: v}
}

// Fail wraps a failure.
func Fail[T any](err *errors.WasmError) Envelope[T] {
	return Envelope[T]{Err: err}
}

// Unit is the empty success value, for calls that only signal completion.
type Unit struct{}

// Encode serializes v with c, reporting failures as Serialize errors.
func Encode(c Codec, v any) ([]byte, error) {
	data, err := c.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(errors.KindSerialize, err, "%s encode %T", c.Name(), v)
	}
	return data, nil
}

// Decode deserializes data into a T, reporting failures as Deserialize errors.
func Decode[T any](c Codec, data []byte) (T, error) {
	var v T
	if err := c.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, errors.Wrapf(errors.KindDeserialize, err, "%s decode %T", c.Name(), v)
	}
	return v, nil
}

// EncodeOk serializes v inside a success envelope.
func EncodeOk[T any](c Codec, v T) ([]byte, error) {
	return Encode(c, Ok(v))
}

// errEnvelope is the failure shape on the wire. It omits the ok field so it
// decodes into an Envelope of any T.
type errEnvelope struct {
	Err *errors.WasmError `json:"err" msgpack:"err"`
}

// EncodeErr serializes a failure envelope.
func EncodeErr(c Codec, werr *errors.WasmError) ([]byte, error) {
	return Encode(c, errEnvelope{Err: werr})
}

// envelopeKeys reports which envelope fields are present in data. A zero
// value in Ok is indistinguishable from a missing one once decoded into T.
func envelopeKeys(c Codec, data []byte) (hasOk, hasErr bool, err error) {
	keys, err := Decode[map[string]any](c, data)
	if err != nil {
		return false, false, err
	}
	_, hasOk = keys["ok"]
	_, hasErr = keys["err"]
	return hasOk, hasErr, nil
}

// DecodeEnvelope decodes an envelope and unwraps it: the success value, or the
// carried WasmError exactly as it was raised. An envelope carrying neither an
// ok nor an err field is a Deserialize error.
func DecodeEnvelope[T any](c Codec, data []byte) (T, error) {
	var zero T
	hasOk, hasErr, err := envelopeKeys(c, data)
	if err != nil {
		return zero, err
	}
	if !hasOk && !hasErr {
		return zero, errors.Newf(errors.KindDeserialize, "%s envelope has neither ok nor err", c.Name())
	}
	env, err := Decode[Envelope[T]](c, data)
	if err != nil {
		return zero, err
	}
	if env.Err != nil {
		return zero, env.Err
	}
	if !hasOk {
		return zero, errors.Newf(errors.KindDeserialize, "%s envelope has a null err and no ok", c.Name())
	}
	return env.Ok, nil
}
