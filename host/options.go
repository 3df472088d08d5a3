package host

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/reglet-dev/wasmbridge/hostfuncs"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// Option defines a functional option for configuring the Executor.
type Option func(*Executor)

// WithHostFunctions configures the executor with a host function registry.
// Guests that use __allocate, __pages, __debug or __runtime_error need the
// registry to include hostfuncs.CoreBundle.
func WithHostFunctions(registry *hostfuncs.HandlerRegistry) Option {
	return func(e *Executor) {
		e.registry = registry
	}
}

// WithConfig replaces the executor configuration.
func WithConfig(cfg Config) Option {
	return func(e *Executor) {
		e.cfg = cfg
	}
}

// WithLogger sets the executor's logger. Defaults to the process logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithCodec overrides the configured codec.
func WithCodec(c wireformat.Codec) Option {
	return func(e *Executor) {
		e.codec = c
	}
}

// WithCallBudget overrides the configured per-call budget.
func WithCallBudget(d time.Duration) Option {
	return func(e *Executor) {
		e.budget = &d
	}
}

// WithDiagnostics sets where the default registry's __debug writes.
func WithDiagnostics(w io.Writer) Option {
	return func(e *Executor) {
		e.diag = w
	}
}
