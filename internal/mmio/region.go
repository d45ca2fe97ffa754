package mmio

import (
	"errors"
	"fmt"
	"sync"
)

// PageSize is the allocation granularity of the firmware address space.
const PageSize = 4096

var (
	// ErrOutOfSpace is returned when the allocator's aperture is exhausted.
	ErrOutOfSpace = errors.New("mmio: firmware aperture exhausted")
	// ErrAlreadyMapped is returned by Map when the region is already held.
	ErrAlreadyMapped = errors.New("mmio: region already mapped")
	// ErrNotMapped is returned by Unmap without a matching Map.
	ErrNotMapped = errors.New("mmio: region not mapped")
)

// PageAlign rounds n up to the next page boundary.
func PageAlign(n uint32) uint32 {
	return (n + PageSize - 1) &^ (PageSize - 1)
}

// Allocator hands out pinned regions of a firmware-addressable aperture.
// Addresses are firmware-visible; the host sees each region only through
// its scoped mapping. Regions are never freed: everything allocated here
// stays pinned for the lifetime of the runtime, so the firmware can keep
// absolute addresses.
type Allocator struct {
	mu    sync.Mutex
	next  uint32
	limit uint32
}

// NewAllocator creates an allocator over [base, base+size). Both are
// rounded to page boundaries.
func NewAllocator(base, size uint32) *Allocator {
	base = PageAlign(base)
	return &Allocator{next: base, limit: base + PageAlign(size)}
}

// Alloc pins a page-aligned region of at least size bytes and returns it
// unmapped.
func (a *Allocator) Alloc(size uint32) (*Region, error) {
	aligned := PageAlign(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	if aligned == 0 || a.limit-a.next < aligned {
		return nil, fmt.Errorf("alloc %d bytes: %w", size, ErrOutOfSpace)
	}

	r := &Region{base: a.next, buf: make([]byte, aligned)}
	a.next += aligned
	return r, nil
}

// Region is one pinned, firmware-addressable span of memory. The host
// writes it only between Map and Unmap; after the final Unmap the backing
// bytes are treated as read-only by every actor.
type Region struct {
	mu     sync.Mutex
	base   uint32
	buf    []byte
	mapped bool
}

// Base returns the region's firmware-visible base address.
func (r *Region) Base() uint32 { return r.base }

// Size returns the pinned size in bytes.
func (r *Region) Size() uint32 { return uint32(len(r.buf)) }

// Map acquires exclusive host access and returns the backing bytes.
// A second Map without an intervening Unmap fails.
func (r *Region) Map() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapped {
		return nil, ErrAlreadyMapped
	}
	r.mapped = true
	return r.buf, nil
}

// Unmap releases the host mapping.
func (r *Region) Unmap() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.mapped {
		return ErrNotMapped
	}
	r.mapped = false
	return nil
}

// Bytes returns the firmware's view of the region. Callers must not write
// through it; it exists so the firmware side can read published contents.
func (r *Region) Bytes() []byte { return r.buf }
