// Command echobench pushes many echo calls through the fixture guest and
// reports how they ended.
//
// Usage:
//
//	echobench [-config wasmbridge.yaml] [-calls 1000000] [-workers 8] [-codec msgpack] [-size 16]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reglet-dev/wasmbridge/domain/errors"
	"github.com/reglet-dev/wasmbridge/host"
	"github.com/reglet-dev/wasmbridge/hostfuncs"
	"github.com/reglet-dev/wasmbridge/internal/testguest"
	"github.com/reglet-dev/wasmbridge/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "echobench:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML config file")
	calls := flag.Int("calls", 1_000_000, "number of echo calls")
	workers := flag.Int("workers", 0, "concurrent instances (0 uses the config)")
	codec := flag.String("codec", "", "wire codec, json or msgpack (overrides the config)")
	size := flag.Int("size", 16, "payload size in bytes")
	flag.Parse()

	cfg := host.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = host.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	if *codec != "" {
		cfg.Codec = *codec
	}

	logger, err := log.Init(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.LoggingMiddleware(logger),
		),
		hostfuncs.WithBundle(hostfuncs.Combine(hostfuncs.CoreBundle(os.Stderr), testguest.Bundle())),
	)
	if err != nil {
		return err
	}

	exec, err := host.NewExecutor(ctx,
		host.WithConfig(cfg),
		host.WithHostFunctions(reg),
		host.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() { _ = exec.Close(context.Background()) }()

	wasm, err := testguest.Test(exec.Codec())
	if err != nil {
		return err
	}
	mod, err := exec.Compile(ctx, wasm)
	if err != nil {
		return err
	}

	payload := strings.Repeat("x", *size)
	requests := make(chan host.Request[string])
	go func() {
		defer close(requests)
		for i := 0; i < *calls; i++ {
			req := host.Request[string]{ID: uint64(i), Export: "echo", Args: payload} //nolint:gosec // G115: i is non-negative
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	start := time.Now()
	completions := host.Fanout[string, string](ctx, mod, *workers, requests)
	summary := host.SummarizeChecked(completions, func(c host.Completion[string]) error {
		if c.Value != payload {
			return fmt.Errorf("echo %d returned %d bytes, want %d", c.ID, len(c.Value), len(payload))
		}
		return nil
	})
	elapsed := time.Since(start)

	logger.Info("echo run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("mismatched", summary.Mismatched),
		zap.Duration("elapsed", elapsed),
		zap.String("codec", exec.Codec().Name()),
	)

	total := summary.Succeeded + summary.Failed
	fmt.Printf("%d calls (%s) in %s, %.0f calls/s\n",
		total, exec.Codec().Name(), elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	fmt.Printf("  ok: %d\n", summary.Succeeded)
	if summary.Mismatched > 0 {
		fmt.Printf("  mismatched: %d\n", summary.Mismatched)
	}

	kinds := make([]string, 0, len(summary.ByKind))
	for kind := range summary.ByKind {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  %s: %d\n", kind, summary.ByKind[errors.Kind(kind)])
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d calls failed", summary.Failed, total)
	}
	if total < *calls {
		return fmt.Errorf("interrupted after %d of %d calls", total, *calls)
	}
	return nil
}
