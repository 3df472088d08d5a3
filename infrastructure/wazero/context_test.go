package wazero

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/reglet-dev/wasmbridge/internal/testguest"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

func TestGuestNameFromContext(t *testing.T) {
	_, ok := GuestNameFromContext(context.Background())
	assert.False(t, ok)

	name, ok := GuestNameFromContext(WithGuestName(context.Background(), "scanner"))
	assert.True(t, ok)
	assert.Equal(t, "scanner", name)
}

func TestGetGuestName(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	require.NoError(t, RegisterWithRuntime(ctx, rt, fixtureRegistry(t)))

	compiled, err := rt.CompileModule(ctx, testguest.MustTest(wireformat.JSON))
	require.NoError(t, err)
	named, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("named"))
	require.NoError(t, err)
	anonymous, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	require.NoError(t, err)

	assert.Equal(t, "from-context", GetGuestName(WithGuestName(ctx, "from-context"), named))
	assert.Equal(t, "named", GetGuestName(ctx, named))
	assert.Equal(t, "guest", GetGuestName(ctx, anonymous))
	assert.Equal(t, "guest", GetGuestName(ctx, nil))
}
