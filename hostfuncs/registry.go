package hostfuncs

import (
	"context"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"

	"github.com/reglet-dev/wasmbridge/domain/errors"
)

// HandlerRegistry is an immutable collection of named host functions.
// Once created via NewRegistry, handlers cannot be added or removed.
// This ensures thread safety and lock-free lookups during execution.
type HandlerRegistry struct {
	functions  map[string]Function
	names      []string // sorted for consistent iteration
	middleware []Middleware
}

// registryBuilder accumulates configuration during registry construction.
type registryBuilder struct {
	functions  map[string]Function
	middleware []Middleware
	errors     []error
}

// NewRegistry creates an immutable HandlerRegistry with the given options.
// Returns an error if any handler name is empty or registered twice.
//
// Example usage:
//
//	registry, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithBundle(CoreBundle(os.Stderr)),
//	    WithHandler("custom", customHandler),
//	)
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{
		functions: make(map[string]Function),
	}

	for _, opt := range opts {
		opt(b)
	}

	if len(b.errors) > 0 {
		return nil, b.errors[0] // Return first error
	}

	names := make([]string, 0, len(b.functions))
	for name := range b.functions {
		names = append(names, name)
	}
	sort.Strings(names)

	// Apply middleware chain to all pair handlers (FIFO order)
	wrapped := make(map[string]Function, len(b.functions))
	for name, fn := range b.functions {
		if fn.Pair != nil {
			h := fn.Pair
			// Apply middleware in reverse order so first middleware wraps outermost
			for i := len(b.middleware) - 1; i >= 0; i-- {
				h = b.middleware[i](h)
			}
			fn.Pair = h
		}
		wrapped[name] = fn
	}

	return &HandlerRegistry{
		functions:  wrapped,
		names:      names,
		middleware: b.middleware,
	}, nil
}

// Invoke dispatches a pair host function call by name. Unknown or scalar-only
// names produce a failure envelope.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, payload []byte) Outcome {
	hctx := HostContextFrom(ctx, name)
	fn, ok := r.functions[name]
	if !ok || fn.Pair == nil {
		return Fail(hctx.Codec(), NotFoundError(name))
	}
	return fn.Pair(hctx, payload)
}

// InvokeScalar dispatches a scalar host function call by name.
func (r *HandlerRegistry) InvokeScalar(ctx context.Context, name string, arg uint32) (uint64, error) {
	fn, ok := r.functions[name]
	if !ok || fn.Scalar == nil {
		return 0, NotFoundError(name)
	}
	return fn.Scalar(HostContextFrom(ctx, name), arg)
}

// Has returns true if a handler with the given name is registered.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.functions[name]
	return ok
}

// Names returns a sorted list of all registered handler names.
func (r *HandlerRegistry) Names() []string {
	result := make([]string, len(r.names))
	copy(result, r.names)
	return result
}

// Lookup returns the registered function, with middleware applied.
func (r *HandlerRegistry) Lookup(name string) (Function, bool) {
	fn, ok := r.functions[name]
	return fn, ok
}

// Description documents one host function for guest authors.
type Description struct {
	Request   *jsonschema.Schema `json:"request,omitempty"`
	Response  *jsonschema.Schema `json:"response,omitempty"`
	Name      string             `json:"name"`
	Signature string             `json:"signature"`
}

// Describe lists every host function with its signature and, for typed
// handlers, the JSON schemas of its request and response.
func (r *HandlerRegistry) Describe() []Description {
	out := make([]Description, 0, len(r.names))
	for _, name := range r.names {
		fn := r.functions[name]
		out = append(out, Description{
			Name:      name,
			Signature: fn.Signature(),
			Request:   fn.Request,
			Response:  fn.Response,
		})
	}
	return out
}

// addFunction registers fn under name.
// Returns an error if the name is empty or already registered.
func (b *registryBuilder) addFunction(name string, fn Function) error {
	if name == "" {
		return errors.New(errors.KindHost, "handler name cannot be empty")
	}
	if _, exists := b.functions[name]; exists {
		return errors.Newf(errors.KindHost, "duplicate handler name: %q", name)
	}
	if fn.Pair == nil && fn.Scalar == nil {
		return errors.Newf(errors.KindHost, "handler %q has no implementation", name)
	}
	fn.Name = name
	b.functions[name] = fn
	return nil
}

func (b *registryBuilder) add(name string, fn Function) {
	if err := b.addFunction(name, fn); err != nil {
		b.errors = append(b.errors, err)
	}
}

// WithPairHandler registers a raw PairHandler with the given name.
// Use WithHandler for type-safe registration with automatic encoding.
func WithPairHandler(name string, handler PairHandler) RegistryOption {
	return func(b *registryBuilder) {
		b.add(name, Function{Pair: handler})
	}
}

// WithScalarHandler registers a scalar host function returning an i32 or i64.
func WithScalarHandler(name string, width ScalarWidth, handler ScalarHandler) RegistryOption {
	return func(b *registryBuilder) {
		if width > Scalar64 {
			b.errors = append(b.errors, fmt.Errorf("handler %q: invalid scalar width %d", name, width))
			return
		}
		b.add(name, Function{Scalar: handler, Width: width})
	}
}

// WithHandler registers a typed host function with automatic encoding.
// The handler will be wrapped with NewHandler.
//
// Example usage:
//
//	WithHandler("custom_func", func(hc HostContext, req MyRequest) (MyResponse, error) {
//	    return MyResponse{Result: req.Input}, nil
//	})
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		b.add(name, Function{
			Pair:     NewHandler(fn),
			Request:  schemaFor[Req](),
			Response: schemaFor[Resp](),
		})
	}
}

// WithShortCircuitHandler registers a typed host function whose response ends
// the guest call.
func WithShortCircuitHandler[Req any, Resp any](name string, fn func(HostContext, Req) Resp) RegistryOption {
	return func(b *registryBuilder) {
		b.add(name, Function{
			Pair:     NewShortCircuitHandler(fn),
			Request:  schemaFor[Req](),
			Response: schemaFor[Resp](),
		})
	}
}

// WithMiddleware adds middleware to the registry.
// Middleware executes in FIFO order (first added wraps first).
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
