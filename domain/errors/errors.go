// Package errors provides the structured error that crosses the wasm boundary.
// Every failure surfaced by the host, whether raised by guest logic or by the
// boundary itself, is a *WasmError carrying its kind, message and the source
// location where it was first raised. All error types support errors.As() and
// errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Kind categorizes a WasmError. The string values are part of the wire format.
type Kind string

const (
	// KindSerialize means a value could not be encoded.
	KindSerialize Kind = "Serialize"

	// KindDeserialize means bytes could not be decoded into the expected type.
	KindDeserialize Kind = "Deserialize"

	// KindMemory means a bounds violation or a failed memory growth.
	KindMemory Kind = "Memory"

	// KindRuntime means the engine faulted (trap, exhausted call budget).
	KindRuntime Kind = "Runtime"

	// KindGuest is a domain error raised by guest code.
	KindGuest Kind = "Guest"

	// KindHost is a generic failure inside a host function or the dispatcher.
	KindHost Kind = "Host"
)

// Sentinel values for errors.Is matching on kind only.
var (
	ErrSerialize   = &WasmError{Kind: KindSerialize}
	ErrDeserialize = &WasmError{Kind: KindDeserialize}
	ErrMemory      = &WasmError{Kind: KindMemory}
	ErrRuntime     = &WasmError{Kind: KindRuntime}
	ErrGuest       = &WasmError{Kind: KindGuest}
	ErrHost        = &WasmError{Kind: KindHost}
)

// WasmError is the boundary error. File and Line identify where it was first
// raised; they are never rewritten as the error propagates.
type WasmError struct {
	cause   error
	File    string `json:"file" msgpack:"file"`
	Kind    Kind   `json:"kind" msgpack:"kind"`
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
	Line    uint32 `json:"line" msgpack:"line"`
}

func (e *WasmError) Error() string {
	if e == nil {
		return ""
	}
	loc := ""
	if e.File != "" {
		loc = fmt.Sprintf(" (%s:%d)", e.File, e.Line)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s error%s", e.Kind, loc)
	}
	return fmt.Sprintf("%s error: %s%s", e.Kind, e.Message, loc)
}

// Unwrap returns the in-process cause. The cause is not serialized.
func (e *WasmError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a kind sentinel matching this error's kind.
func (e *WasmError) Is(target error) bool {
	t, ok := target.(*WasmError)
	if !ok || t == nil {
		return false
	}
	if t.File != "" || t.Line != 0 || t.Message != "" {
		return false
	}
	return e.Kind == t.Kind
}

// Equal compares the wire-visible fields of two errors.
func (e *WasmError) Equal(other *WasmError) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.File == other.File && e.Line == other.Line && e.Kind == other.Kind && e.Message == other.Message
}

// New creates a WasmError located at the caller.
func New(kind Kind, message string) *WasmError {
	file, line := location(2)
	return &WasmError{File: file, Line: line, Kind: kind, Message: message}
}

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...any) *WasmError {
	file, line := location(2)
	return &WasmError{File: file, Line: line, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At creates a WasmError with an explicit origin, typically one reported by a guest.
func At(file string, line uint32, kind Kind, message string) *WasmError {
	return &WasmError{File: file, Line: line, Kind: kind, Message: message}
}

// Wrap converts err into a WasmError of the given kind located at the caller.
// If err already contains a WasmError, that error is returned untouched so the
// original kind and location survive propagation.
func Wrap(kind Kind, err error) *WasmError {
	if err == nil {
		return nil
	}
	var we *WasmError
	if stdErrors.As(err, &we) {
		return we
	}
	file, line := location(2)
	return &WasmError{File: file, Line: line, Kind: kind, Message: err.Error(), cause: err}
}

// Wrapf is Wrap with a message prefix.
func Wrapf(kind Kind, err error, format string, args ...any) *WasmError {
	if err == nil {
		return nil
	}
	var we *WasmError
	if stdErrors.As(err, &we) {
		return we
	}
	file, line := location(2)
	msg := fmt.Sprintf(format, args...) + ": " + err.Error()
	return &WasmError{File: file, Line: line, Kind: kind, Message: msg, cause: err}
}

// KindOf returns the kind of the first WasmError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var we *WasmError
	if stdErrors.As(err, &we) {
		return we.Kind
	}
	return ""
}

// IsGuest reports whether err originated in guest logic rather than in the
// boundary or the engine.
func IsGuest(err error) bool {
	return KindOf(err) == KindGuest
}

// location reports the caller's file as "dir/file.go" so origins are stable
// across checkouts.
func location(skip int) (string, uint32) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown", 0
	}
	dir := filepath.Base(filepath.Dir(file))
	return filepath.ToSlash(filepath.Join(dir, filepath.Base(file))), uint32(line) //nolint:gosec // G115: line numbers fit in uint32
}
