package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/wasmbridge/domain/errors"
)

func TestNewManager_DefaultBaseIsEndOfMemory(t *testing.T) {
	m := NewManager(NewSliceMemory(2, 10))
	assert.Equal(t, uint32(2*PageSize), m.Base())
	assert.Equal(t, uint32(2), m.Pages())
}

func TestManager_AllocateGrowsByWholePages(t *testing.T) {
	mem := NewSliceMemory(1, 100)
	m := NewManager(mem)

	ptr, err := m.Allocate(10)
	require.NoError(t, err)
	assert.Equal(t, uint32(PageSize), ptr)
	assert.Equal(t, uint32(2), m.Pages())
	assert.Zero(t, mem.Size()%PageSize)

	// Spans several pages in one request.
	ptr, err = m.Allocate(3*PageSize + 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(PageSize+16), ptr, "allocations are 8-byte aligned")
	assert.Equal(t, uint32(5), m.Pages())
}

func TestManager_AllocateWithinCapacityDoesNotGrow(t *testing.T) {
	m := NewManager(NewSliceMemory(4, 10), WithBase(1024))

	_, err := m.Allocate(100)
	require.NoError(t, err)
	_, err = m.Allocate(100)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), m.Pages())
}

func TestManager_AllocateZeroLength(t *testing.T) {
	m := NewManager(NewSliceMemory(1, 2), WithBase(64))

	ptr, err := m.Allocate(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(64), ptr)

	count, bytes := m.Stats()
	assert.Zero(t, count)
	assert.Zero(t, bytes)
}

func TestManager_GrowRefused(t *testing.T) {
	m := NewManager(NewSliceMemory(1, 1))

	_, err := m.Allocate(1)
	require.Error(t, err)
	assert.Equal(t, errors.KindMemory, errors.KindOf(err))
	assert.Contains(t, err.Error(), "refused")
}

func TestManager_MaxPages(t *testing.T) {
	m := NewManager(NewSliceMemory(1, 100), WithMaxPages(2))

	_, err := m.Allocate(PageSize)
	require.NoError(t, err)

	_, err = m.Allocate(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMemory)
	assert.Equal(t, uint32(2), m.Pages())
}

func TestManager_EmptyAllocationAtLimit(t *testing.T) {
	m := NewManager(NewSliceMemory(1, 100), WithBase(0), WithMaxPages(2))

	_, err := m.Allocate(2 * PageSize)
	require.NoError(t, err)

	_, err = m.Allocate(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMemory)
}

// sizedMemory reports a size without backing it, for address arithmetic tests.
type sizedMemory struct {
	size uint32
}

func (m *sizedMemory) Size() uint32 { return m.size }
func (m *sizedMemory) Grow(uint32) (uint32, bool) { return m.size / PageSize, false }
func (m *sizedMemory) Read(uint32, uint32) ([]byte, bool) { return nil, false }
func (m *sizedMemory) Write(uint32, []byte) bool { return false }

func TestManager_EmptyAllocationPastAddressSpace(t *testing.T) {
	m := NewManager(&sizedMemory{size: (MaxPages - 1) * PageSize}, WithBase(MaxPages*PageSize-4))

	// The aligned start is 1<<32, which must not wrap to offset 0.
	ptr, err := m.Allocate(0)
	require.Error(t, err)
	assert.Zero(t, ptr)
	assert.Equal(t, errors.KindMemory, errors.KindOf(err))
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestManager_ReadWriteBounds(t *testing.T) {
	m := NewManager(NewSliceMemory(1, 1), WithBase(0))

	require.NoError(t, m.Write(PageSize-4, []byte{1, 2, 3, 4}))
	data, err := m.Read(PageSize-4, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)

	err = m.Write(PageSize-2, []byte{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, errors.KindMemory, errors.KindOf(err))

	_, err = m.Read(PageSize-2, 3)
	require.Error(t, err)
	assert.Equal(t, errors.KindMemory, errors.KindOf(err))

	// Out-of-range access never wraps around.
	_, err = m.Read(0xFFFFFFFF, 2)
	require.Error(t, err)
}

func TestManager_ReadReturnsCopy(t *testing.T) {
	m := NewManager(NewSliceMemory(1, 1), WithBase(0))
	require.NoError(t, m.Write(0, []byte("abc")))

	data, err := m.Read(0, 3)
	require.NoError(t, err)
	data[0] = 'z'

	again, err := m.Read(0, 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestManager_PagesIsIdempotent(t *testing.T) {
	m := NewManager(NewSliceMemory(3, 10))
	first := m.Pages()
	second := m.Pages()
	assert.Equal(t, first, second)
}

func TestManager_NeverRelocates(t *testing.T) {
	m := NewManager(NewSliceMemory(1, 100))

	first, err := WriteBytes(m, []byte("pinned"))
	require.NoError(t, err)

	// Force growth.
	_, err = m.Allocate(5 * PageSize)
	require.NoError(t, err)

	data, err := ReadBytes(m, first)
	require.NoError(t, err)
	assert.Equal(t, "pinned", string(data))
}

func TestManager_ReleaseRewindsButKeepsPages(t *testing.T) {
	m := NewManager(NewSliceMemory(1, 100))

	p1, err := m.Allocate(2 * PageSize)
	require.NoError(t, err)
	pages := m.Pages()

	count, bytes := m.Stats()
	assert.Equal(t, 1, count)
	assert.Equal(t, uint64(2*PageSize), bytes)

	m.Release()
	count, bytes = m.Stats()
	assert.Zero(t, count)
	assert.Zero(t, bytes)
	assert.Equal(t, pages, m.Pages(), "memory never shrinks")

	p2, err := m.Allocate(2 * PageSize)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, pages, m.Pages(), "released pages are reused")
}
