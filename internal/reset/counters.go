package reset

import "sync/atomic"

// Counters tracks reset attempts: one global count and one per engine.
// Both are monotonically non-decreasing for the lifetime of the runtime.
// Only the controller increments them; other actors (the isolation
// harness, the API) read concurrently, hence the atomics.
type Counters struct {
	global  atomic.Uint64
	engines []atomic.Uint64
}

// NewCounters creates counters for n engines.
func NewCounters(n int) *Counters {
	return &Counters{engines: make([]atomic.Uint64, n)}
}

// RecordAttempt bumps the global count. Called once per completed reset
// attempt, whether it succeeded or failed.
func (c *Counters) RecordAttempt() {
	c.global.Add(1)
}

// RecordEngineReset bumps an engine's count. Called once per successful
// reset of that engine.
func (c *Counters) RecordEngineReset(engineID int) {
	c.engines[engineID].Add(1)
}

// Global returns the global reset count.
func (c *Counters) Global() uint64 {
	return c.global.Load()
}

// Engine returns one engine's reset count.
func (c *Counters) Engine(engineID int) uint64 {
	return c.engines[engineID].Load()
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Global  uint64   `json:"global"`
	Engines []uint64 `json:"engines"`
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		Global:  c.global.Load(),
		Engines: make([]uint64, len(c.engines)),
	}
	for i := range c.engines {
		s.Engines[i] = c.engines[i].Load()
	}
	return s
}
