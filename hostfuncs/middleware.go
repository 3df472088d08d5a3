package hostfuncs

import (
	"time"

	"go.uber.org/zap"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/log"
)

// Middleware is a function that wraps a PairHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next PairHandler) PairHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware returns a middleware that catches panics and converts
// them to a Host failure envelope instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next PairHandler) PairHandler {
		return func(hc HostContext, payload []byte) (out Outcome) {
			defer func() {
				if r := recover(); r != nil {
					out = Fail(hc.Codec(), PanicError(r))
				}
			}()
			return next(hc, payload)
		}
	}
}

// LoggingMiddleware returns a middleware that logs host function invocations at
// debug level. A nil logger uses the process logger.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next PairHandler) PairHandler {
		return func(hc HostContext, payload []byte) Outcome {
			l := log.Or(logger).With(zap.String("function", hc.FunctionName()))
			start := time.Now()
			out := next(hc, payload)
			fields := []zap.Field{
				zap.Int("request_bytes", len(payload)),
				zap.Stringer("outcome", out.Kind),
				zap.Duration("elapsed", time.Since(start)),
			}
			if out.Err != nil {
				l.Warn("host function aborted call", append(fields, zap.Error(out.Err))...)
				return out
			}
			l.Debug("host function completed", fields...)
			return out
		}
	}
}

// MaxRequestSizeMiddleware rejects payloads larger than limit bytes with a Host
// failure envelope before the handler sees them.
func MaxRequestSizeMiddleware(limit int) Middleware {
	return func(next PairHandler) PairHandler {
		return func(hc HostContext, payload []byte) Outcome {
			if limit > 0 && len(payload) > limit {
				return Fail(hc.Codec(), errors.Newf(errors.KindHost,
					"request of %d bytes to %s exceeds limit of %d bytes", len(payload), hc.FunctionName(), limit))
			}
			return next(hc, payload)
		}
	}
}
