package hostfuncs

import (
	"context"

	"github.com/reglet-dev/wasmbridge/memory"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// HostContext is the context a host function runs with: the guest call's
// context plus the invoked name and the calling instance's memory and codec.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string

	// Memory returns the calling instance's memory manager, or nil outside a guest call.
	Memory() *memory.Manager

	// Codec returns the codec the current call exchanges values with.
	Codec() wireformat.Codec
}

type hostContext struct {
	context.Context
	state    *CallState
	funcName string
}

// NewHostContext creates a new HostContext wrapping the given context. Memory and
// codec come from the CallState attached to ctx, if there is one.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	state, _ := CallStateFrom(ctx)
	return &hostContext{
		Context:  ctx,
		state:    state,
		funcName: funcName,
	}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) Memory() *memory.Manager {
	if c.state == nil {
		return nil
	}
	return c.state.Memory()
}

func (c *hostContext) Codec() wireformat.Codec {
	if c.state == nil {
		return wireformat.JSON
	}
	return c.state.Codec()
}

// HostContextFrom extracts a HostContext from a context.Context.
// If the context is already a HostContext, it is returned directly.
// Otherwise, a new HostContext is created wrapping the given context.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName)
}
