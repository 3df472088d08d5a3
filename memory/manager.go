// Package memory manages a guest's linear memory from the host side.
//
// A Manager owns a bump-allocated arena at the top of the guest's memory. Every
// buffer the host hands to the guest during a call lives in that arena; the
// arena grows in whole 64 KiB pages and is rewound when the call completes.
// Memory never shrinks and allocated bytes are never moved while a call is in
// flight, so every pointer given to the guest stays valid until the call ends.
//
// A Manager is not safe for concurrent use. Calls against one instance must be
// serialized by the caller.
package memory

import (
	"github.com/reglet-dev/wasmbridge/domain/errors"
)

const (
	// PageSize is the unit of linear memory growth.
	PageSize = 65536

	// MaxPages is the largest memory a 32-bit guest can address.
	MaxPages = 65536

	// alignment of arena allocations.
	alignment = 8
)

// Memory is the engine's view of one instance's linear memory.
// wazero's api.Memory satisfies it.
type Memory interface {
	// Size returns the current size in bytes. It is always a multiple of PageSize.
	Size() uint32

	// Grow adds deltaPages pages and returns the previous size in pages.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	// Read returns a view of byteCount bytes at offset, or false if out of range.
	Read(offset, byteCount uint32) ([]byte, bool)

	// Write copies v to offset, or returns false if out of range.
	Write(offset uint32, v []byte) bool
}

// Manager allocates, reads and writes guest memory for the host.
type Manager struct {
	mem      Memory
	base     uint32
	next     uint64
	maxPages uint32
	allocs   int
	live     uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithBase sets the first arena address. By default the arena starts at the end
// of the memory the guest was instantiated with.
func WithBase(base uint32) Option {
	return func(m *Manager) {
		m.base = base
	}
}

// WithMaxPages caps growth below the engine's own limit.
func WithMaxPages(pages uint32) Option {
	return func(m *Manager) {
		if pages > 0 && pages <= MaxPages {
			m.maxPages = pages
		}
	}
}

// NewManager creates a Manager over mem.
func NewManager(mem Memory, opts ...Option) *Manager {
	m := &Manager{
		mem:      mem,
		base:     mem.Size(),
		maxPages: MaxPages,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.next = uint64(m.base)
	return m
}

// Allocate reserves length bytes and returns their offset. Capacity is added in
// whole pages when the arena runs past the end of memory. A refused grow is
// fatal for the call and is not retried.
func (m *Manager) Allocate(length uint32) (uint32, error) {
	start := alignUp(m.next)
	end := start + uint64(length)

	// A zero-length allocation still needs an addressable start.
	if limit := uint64(m.maxPages) * PageSize; end > limit || start >= limit {
		return 0, errors.Newf(errors.KindMemory,
			"allocation of %d bytes at offset %d exceeds limit of %d pages", length, start, m.maxPages)
	}

	size := uint64(m.mem.Size())
	if end > size {
		delta := uint32((end - size + PageSize - 1) / PageSize) //nolint:gosec // G115: bounded by maxPages above
		if _, ok := m.mem.Grow(delta); !ok {
			return 0, errors.Newf(errors.KindMemory,
				"memory grow by %d pages refused at %d pages", delta, m.Pages())
		}
	}

	m.next = end
	if length > 0 {
		m.allocs++
		m.live += uint64(length)
	}
	return uint32(start), nil //nolint:gosec // G115: start < 4GiB checked above
}

// Read returns a copy of length bytes at ptr.
func (m *Manager) Read(ptr, length uint32) ([]byte, error) {
	view, ok := m.mem.Read(ptr, length)
	if !ok {
		return nil, errors.Newf(errors.KindMemory,
			"read of %d bytes at offset %d is out of bounds (memory is %d bytes)", length, ptr, m.mem.Size())
	}
	data := make([]byte, length)
	copy(data, view)
	return data, nil
}

// Write copies data to ptr.
func (m *Manager) Write(ptr uint32, data []byte) error {
	if !m.mem.Write(ptr, data) {
		return errors.Newf(errors.KindMemory,
			"write of %d bytes at offset %d is out of bounds (memory is %d bytes)", len(data), ptr, m.mem.Size())
	}
	return nil
}

// Pages reports the current memory size in pages.
func (m *Manager) Pages() uint32 {
	return m.mem.Size() / PageSize
}

// Base returns the first arena address.
func (m *Manager) Base() uint32 {
	return m.base
}

// Release rewinds the arena once the guest has consumed everything allocated
// during a call. Pages already grown stay in place for the next call.
func (m *Manager) Release() {
	m.next = uint64(m.base)
	m.allocs = 0
	m.live = 0
}

// Stats returns the number of live allocations and their total size.
func (m *Manager) Stats() (count int, bytes uint64) {
	return m.allocs, m.live
}

func alignUp(v uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}
