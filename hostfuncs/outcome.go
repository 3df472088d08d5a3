package hostfuncs

import (
	"context"
	stdErrors "errors"
	"sync"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/memory"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// OutcomeKind tags what a pair handler wants to happen next.
type OutcomeKind uint8

const (
	// OutcomeReturn hands an encoded envelope back to the guest, which keeps running.
	OutcomeReturn OutcomeKind = iota

	// OutcomeShortCircuit ends the guest call; Data is the call's final encoded value.
	OutcomeShortCircuit

	// OutcomeAbort ends the guest call with Err.
	OutcomeAbort
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReturn:
		return "return"
	case OutcomeShortCircuit:
		return "short-circuit"
	case OutcomeAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Outcome is the result of a pair handler.
type Outcome struct {
	Err  *errors.WasmError
	Data []byte
	Kind OutcomeKind
}

// Return answers the guest with an encoded envelope.
func Return(envelope []byte) Outcome {
	return Outcome{Kind: OutcomeReturn, Data: envelope}
}

// ShortCircuit ends the guest call; payload is decoded as the call's result.
func ShortCircuit(payload []byte) Outcome {
	return Outcome{Kind: OutcomeShortCircuit, Data: payload}
}

// Abort ends the guest call with err.
func Abort(err *errors.WasmError) Outcome {
	return Outcome{Kind: OutcomeAbort, Err: err}
}

// Terminal reports whether the outcome ends the guest call.
func (o Outcome) Terminal() bool {
	return o.Kind != OutcomeReturn
}

// ErrCallTerminated unwinds a guest after a host function recorded a terminal
// outcome. The dispatcher never surfaces it; it reads the outcome instead.
var ErrCallTerminated = stdErrors.New("guest call terminated by host function")

// CallState is the per-call state shared between the dispatcher and the host
// functions a guest invokes during that call.
type CallState struct {
	mem      *memory.Manager
	codec    wireformat.Codec
	terminal *Outcome
	mu       sync.Mutex
}

// NewCallState creates the state for one guest call.
func NewCallState(mem *memory.Manager, codec wireformat.Codec) *CallState {
	if codec == nil {
		codec = wireformat.JSON
	}
	return &CallState{mem: mem, codec: codec}
}

// Memory returns the instance's memory manager.
func (s *CallState) Memory() *memory.Manager {
	return s.mem
}

// Codec returns the codec values are exchanged with for this call.
func (s *CallState) Codec() wireformat.Codec {
	return s.codec
}

// Terminate records a terminal outcome. Only the first one counts; it reports
// whether o was recorded.
func (s *CallState) Terminate(o Outcome) bool {
	if !o.Terminal() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal != nil {
		return false
	}
	s.terminal = &o
	return true
}

// Outcome returns the recorded terminal outcome, if any.
func (s *CallState) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal == nil {
		return Outcome{}, false
	}
	return *s.terminal, true
}

type callStateKey struct{}

// WithCallState attaches s to ctx.
func WithCallState(ctx context.Context, s *CallState) context.Context {
	return context.WithValue(ctx, callStateKey{}, s)
}

// CallStateFrom returns the CallState attached to ctx.
func CallStateFrom(ctx context.Context) (*CallState, bool) {
	s, ok := ctx.Value(callStateKey{}).(*CallState)
	return s, ok
}
