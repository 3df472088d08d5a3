// Package testutil provides assertions shared by the package tests.
package testutil

import (
	"encoding/json"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/wasmbridge/domain/errors"
)

// RequireKind fails the test unless err carries a WasmError of kind, and
// returns the first WasmError in its chain.
func RequireKind(t testing.TB, err error, kind errors.Kind, msgAndArgs ...interface{}) *errors.WasmError {
	t.Helper()
	require.Error(t, err, msgAndArgs...)

	var werr *errors.WasmError
	require.True(t, stdErrors.As(err, &werr), "no WasmError in %v", err)
	require.Equal(t, kind, werr.Kind, msgAndArgs...)
	return werr
}

// AssertRaisedAt asserts err carries a WasmError raised at file:line with the
// given kind and message.
func AssertRaisedAt(t testing.TB, err error, file string, line uint32, kind errors.Kind, message string) {
	t.Helper()
	werr := RequireKind(t, err, kind)
	assert.True(t, werr.Equal(errors.At(file, line, kind, message)),
		"want %s:%d %s %q, got %s:%d %s %q",
		file, line, kind, message, werr.File, werr.Line, werr.Kind, werr.Message)
}

// AssertJSONEqual compares two JSON strings for equality, ignoring formatting
func AssertJSONEqual(t testing.TB, expected, actual string, msgAndArgs ...interface{}) {
	t.Helper()

	var expectedJSON, actualJSON interface{}
	require.NoError(t, json.Unmarshal([]byte(expected), &expectedJSON), "expected JSON is invalid")
	require.NoError(t, json.Unmarshal([]byte(actual), &actualJSON), "actual JSON is invalid")

	assert.Equal(t, expectedJSON, actualJSON, msgAndArgs...)
}

// AssertDurationWithin asserts that a duration is within a tolerance of an expected value
func AssertDurationWithin(t testing.TB, expected, actual, tolerance time.Duration, msgAndArgs ...interface{}) {
	t.Helper()

	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, tolerance, msgAndArgs...)
}
