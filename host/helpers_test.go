package host_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/wasmbridge/host"
	"github.com/reglet-dev/wasmbridge/hostfuncs"
	"github.com/reglet-dev/wasmbridge/internal/testguest"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// newExecutor links the core and fixture host functions for codec c.
func newExecutor(t testing.TB, c wireformat.Codec, diag io.Writer, opts ...host.Option) *host.Executor {
	t.Helper()
	ctx := context.Background()

	reg, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
		hostfuncs.WithBundle(hostfuncs.Combine(hostfuncs.CoreBundle(diag), testguest.Bundle())),
	)
	require.NoError(t, err)

	base := []host.Option{host.WithHostFunctions(reg), host.WithCodec(c)}
	e, err := host.NewExecutor(ctx, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func compile(t testing.TB, e *host.Executor, wasm []byte) *host.Module {
	t.Helper()
	mod, err := e.Compile(context.Background(), wasm)
	require.NoError(t, err)
	return mod
}

func instantiate(t testing.TB, mod *host.Module) *host.Instance {
	t.Helper()
	inst, err := mod.Instantiate(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(context.Background()) })
	return inst
}
