package hostfuncs

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// PairHandler serves the (i32 ptr, i32 len) -> i64 signature. payload is a copy
// of the bytes the guest passed.
type PairHandler func(hc HostContext, payload []byte) Outcome

// ScalarHandler serves the (i32) -> i32 and (i32) -> i64 signatures. A non-nil
// error aborts the guest call.
type ScalarHandler func(hc HostContext, arg uint32) (uint64, error)

// ScalarWidth is the result type of a scalar host function.
type ScalarWidth uint8

const (
	// Scalar32 returns an i32.
	Scalar32 ScalarWidth = iota
	// Scalar64 returns an i64, typically a packed pair.
	Scalar64
)

// HostFunc is a typed host function. A returned error is sent back to the guest
// as a failure envelope; the guest decides what to do with it.
type HostFunc[Req any, Resp any] func(HostContext, Req) (Resp, error)

// Function is one registered host function.
type Function struct {
	Pair     PairHandler
	Scalar   ScalarHandler
	Request  *jsonschema.Schema
	Response *jsonschema.Schema
	Name     string
	Width    ScalarWidth
}

// IsScalar reports whether f uses the scalar signature.
func (f Function) IsScalar() bool {
	return f.Scalar != nil
}

// Signature renders f's wasm signature.
func (f Function) Signature() string {
	if !f.IsScalar() {
		return "(i32, i32) -> i64"
	}
	if f.Width == Scalar64 {
		return "(i32) -> i64"
	}
	return "(i32) -> i32"
}

// validate is a package-level singleton; building validators is expensive.
var validate = validator.New(validator.WithRequiredStructEnabled())

// NewHandler wraps a typed HostFunc into a PairHandler.
// It decodes and validates the request with the call's codec and encodes the
// response, or the failure, as a result envelope.
//
// Usage:
//
//	greet := hostfuncs.NewHandler(func(hc hostfuncs.HostContext, name string) (string, error) {
//	    return "hello " + name, nil
//	})
func NewHandler[Req any, Resp any](fn HostFunc[Req, Resp]) PairHandler {
	return func(hc HostContext, payload []byte) Outcome {
		c := hc.Codec()
		req, werr := decodeRequest[Req](hc, payload)
		if werr != nil {
			return Fail(c, werr)
		}

		resp, err := fn(hc, req)
		if err != nil {
			return Fail(c, errors.Wrap(errors.KindHost, err))
		}

		data, err := wireformat.EncodeOk(c, resp)
		if err != nil {
			return Fail(c, errors.Wrap(errors.KindSerialize, err))
		}
		return Return(data)
	}
}

// NewShortCircuitHandler wraps fn into a PairHandler whose response ends the
// whole guest call: the encoded Resp becomes the call's result.
func NewShortCircuitHandler[Req any, Resp any](fn func(HostContext, Req) Resp) PairHandler {
	return func(hc HostContext, payload []byte) Outcome {
		c := hc.Codec()
		req, werr := decodeRequest[Req](hc, payload)
		if werr != nil {
			return Fail(c, werr)
		}

		data, err := wireformat.Encode(c, fn(hc, req))
		if err != nil {
			return Abort(errors.Wrap(errors.KindSerialize, err))
		}
		return ShortCircuit(data)
	}
}

func decodeRequest[Req any](hc HostContext, payload []byte) (Req, *errors.WasmError) {
	req, err := wireformat.Decode[Req](hc.Codec(), payload)
	if err != nil {
		return req, errors.Wrap(errors.KindDeserialize, err)
	}
	if err := validateRequest(req); err != nil {
		return req, errors.Wrapf(errors.KindDeserialize, err, "invalid %s request", hc.FunctionName())
	}
	return req, nil
}

// validateRequest runs struct tag validation. Non-struct requests pass.
func validateRequest(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	return validate.Struct(rv.Interface())
}

// schemaFor reflects the JSON schema of T.
func schemaFor[T any]() *jsonschema.Schema {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Interface {
		return jsonschema.TrueSchema
	}
	r := jsonschema.Reflector{}
	return r.ReflectFromType(t)
}
