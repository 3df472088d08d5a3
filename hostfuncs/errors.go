package hostfuncs

import (
	"fmt"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// Fail answers the guest with a failure envelope. If the envelope itself cannot
// be encoded the call is aborted with werr instead, so the failure is never lost.
func Fail(c wireformat.Codec, werr *errors.WasmError) Outcome {
	data, err := wireformat.EncodeErr(c, werr)
	if err != nil {
		return Abort(werr)
	}
	return Return(data)
}

// NotFoundError is reported for calls to unregistered host functions.
func NotFoundError(name string) *errors.WasmError {
	return errors.Newf(errors.KindHost, "unknown host function: %s", name)
}

// PanicError converts a recovered panic value into a Host error.
func PanicError(panicValue any) *errors.WasmError {
	var msg string
	switch v := panicValue.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
	}
	return errors.New(errors.KindHost, "panic: "+msg)
}
