package memory

// SliceMemory is a heap-backed Memory, used to drive a Manager without an engine.
type SliceMemory struct {
	data     []byte
	maxPages uint32
}

// NewSliceMemory creates a memory of initialPages pages that may grow to maxPages.
func NewSliceMemory(initialPages, maxPages uint32) *SliceMemory {
	return &SliceMemory{
		data:     make([]byte, uint64(initialPages)*PageSize),
		maxPages: maxPages,
	}
}

// Size implements Memory.
func (s *SliceMemory) Size() uint32 {
	return uint32(len(s.data)) //nolint:gosec // G115: slice memories stay below 4 GiB
}

// Grow implements Memory.
func (s *SliceMemory) Grow(deltaPages uint32) (uint32, bool) {
	prev := uint32(len(s.data) / PageSize) //nolint:gosec // G115: bounded by maxPages
	if uint64(prev)+uint64(deltaPages) > uint64(s.maxPages) {
		return prev, false
	}
	s.data = append(s.data, make([]byte, uint64(deltaPages)*PageSize)...)
	return prev, true
}

// Read implements Memory.
func (s *SliceMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(s.data)) {
		return nil, false
	}
	return s.data[offset:end], true
}

// Write implements Memory.
func (s *SliceMemory) Write(offset uint32, v []byte) bool {
	end := uint64(offset) + uint64(len(v))
	if end > uint64(len(s.data)) {
		return false
	}
	copy(s.data[offset:end], v)
	return true
}
