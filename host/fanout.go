package host

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/log"
)

// Request is one unit of work for Fanout.
type Request[A any] struct {
	Args   A
	Export string
	ID     uint64
}

// Completion is the outcome of one Request.
type Completion[R any] struct {
	Value R
	Err   error
	ID    uint64
}

// Fanout runs requests against mod on workers goroutines and streams their
// completions, in no particular order. Each worker owns one instance; an
// instance that faults is discarded and replaced before the worker's next
// request, so a fault never reaches another worker. The returned channel is
// closed once requests is drained and closed, or ctx is done.
//
// workers <= 0 uses the configured default.
func Fanout[A any, R any](ctx context.Context, mod *Module, workers int, requests <-chan Request[A]) <-chan Completion[R] {
	if workers <= 0 {
		workers = mod.exec.cfg.Workers
	}
	out := make(chan Completion[R], workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker[A, R](ctx, mod, requests, out)
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func runWorker[A any, R any](ctx context.Context, mod *Module, requests <-chan Request[A], out chan<- Completion[R]) {
	var inst *Instance
	defer func() {
		if inst != nil {
			_ = inst.Close(context.Background())
		}
	}()

	for {
		var req Request[A]
		var ok bool
		select {
		case <-ctx.Done():
			return
		case req, ok = <-requests:
			if !ok {
				return
			}
		}

		if inst != nil && inst.Faulted() {
			mod.exec.logger.Debug("replacing faulted instance", zap.String("guest", mod.name))
			_ = inst.Close(context.Background())
			inst = nil
		}

		c := Completion[R]{ID: req.ID}
		if inst == nil {
			var err error
			inst, err = mod.Instantiate(ctx)
			if err != nil {
				inst = nil
				c.Err = err
			}
		}
		if inst != nil {
			c.Value, c.Err = Call[R](ctx, inst, req.Export, req.Args)
		}

		select {
		case out <- c:
		case <-ctx.Done():
			return
		}
	}
}

// Summary tallies completions. Failed includes Mismatched.
type Summary struct {
	ByKind     map[errors.Kind]int
	Succeeded  int
	Failed     int
	Mismatched int
}

// Summarize drains completions and counts outcomes. Failures are also counted
// by error kind.
func Summarize[R any](completions <-chan Completion[R]) Summary {
	return SummarizeChecked(completions, nil)
}

// SummarizeChecked is Summarize with a check on every call that returned a
// value. A completion the check rejects counts as Failed and Mismatched rather
// than Succeeded. A nil check accepts everything.
func SummarizeChecked[R any](completions <-chan Completion[R], check func(Completion[R]) error) Summary {
	s := Summary{ByKind: make(map[errors.Kind]int)}
	for c := range completions {
		if c.Err != nil {
			s.Failed++
			s.ByKind[errors.KindOf(c.Err)]++
			continue
		}
		if check != nil {
			if err := check(c); err != nil {
				log.L().Debug("completion rejected", zap.Uint64("id", c.ID), zap.Error(err))
				s.Failed++
				s.Mismatched++
				continue
			}
		}
		s.Succeeded++
	}
	return s
}
