package reset

import "sync/atomic"

// Gate is the per-engine reset-in-progress indicator. It is the only
// state shared between the controller and the submission path for the
// same engine: while an engine's gate is held, new submissions to that
// engine are parked, never dropped. Gates of different engines are
// independent; holding one never blocks another.
type Gate struct {
	held []atomic.Bool
}

// NewGate creates a gate for n engines, all released.
func NewGate(n int) *Gate {
	return &Gate{held: make([]atomic.Bool, n)}
}

// Hold marks the engine as undergoing reset.
func (g *Gate) Hold(engineID int) {
	g.held[engineID].Store(true)
}

// Release clears the engine's reset-in-progress indicator.
func (g *Gate) Release(engineID int) {
	g.held[engineID].Store(false)
}

// Held reports whether the engine is currently being reset.
func (g *Gate) Held(engineID int) bool {
	return g.held[engineID].Load()
}
