// Package mmio provides the register-access and memory-pinning primitives
// the recovery core builds on: a 32-bit register bus, per-engine register
// offsets, and an allocator handing out firmware-addressable regions with
// scoped host mappings.
package mmio

import "sync"

// Bus is 32-bit register access by offset.
type Bus interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// SimBus is an in-memory register file implementing Bus. It is safe for
// concurrent use; unwritten registers read as zero.
type SimBus struct {
	mu   sync.RWMutex
	regs map[uint32]uint32
}

// NewSimBus creates an empty simulated register bus.
func NewSimBus() *SimBus {
	return &SimBus{regs: make(map[uint32]uint32)}
}

// Read32 returns the current value of the register at offset.
func (b *SimBus) Read32(offset uint32) uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.regs[offset]
}

// Write32 sets the register at offset.
func (b *SimBus) Write32(offset uint32, value uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs[offset] = value
}

// Load seeds multiple registers at once, typically power-on defaults.
func (b *SimBus) Load(values map[uint32]uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for off, v := range values {
		b.regs[off] = v
	}
}

// ClearRange zeroes every register in [start, start+length), modelling the
// loss of register state when an engine's reset domain is pulsed.
func (b *SimBus) ClearRange(start, length uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for off := range b.regs {
		if off >= start && off < start+length {
			delete(b.regs, off)
		}
	}
}
