// Package submit provides the per-engine work submission path: allocate a
// work item, add it to an engine's queue, wait for it to retire. While an
// engine is being reset its queue parks pending work instead of failing
// it; queues of other engines are entirely unaffected.
package submit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/seantiz/ember/internal/mmio"
	"github.com/seantiz/ember/internal/model"
)

// ErrQueueClosed is returned by Allocate and Add after Close.
var ErrQueueClosed = errors.New("submit: queue closed")

// gatePollInterval is how often a parked dispatcher re-checks the reset
// gate. Hold latency during a reset is bounded by this plus one item.
const gatePollInterval = 50 * time.Microsecond

// queueDepth bounds how many added items can sit undispatched.
const queueDepth = 16

// Gate reports whether submissions to an engine must be parked. The reset
// controller's gate satisfies this.
type Gate interface {
	Held(engineID int) bool
}

// Work is one submitted item. It completes exactly once.
type Work struct {
	done chan struct{}
	err  error
}

// Wait blocks until the item retires or ctx is cancelled.
func (w *Work) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Work) finish(err error) {
	w.err = err
	close(w.done)
}

// Queue is one engine's submission queue. Items retire strictly in the
// order they were added; nothing orders items across different engines.
type Queue struct {
	engine    model.Engine
	gate      Gate
	bus       mmio.Bus
	ch        chan *Work
	stopped   chan struct{}
	closed    atomic.Bool
	completed atomic.Uint64
}

// NewQueue creates a queue for the engine and starts its dispatcher.
func NewQueue(eng model.Engine, gate Gate, bus mmio.Bus) *Queue {
	q := &Queue{
		engine:  eng,
		gate:    gate,
		bus:     bus,
		ch:      make(chan *Work, queueDepth),
		stopped: make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Allocate creates a new work item for this queue.
func (q *Queue) Allocate() (*Work, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	return &Work{done: make(chan struct{})}, nil
}

// Add submits the item. It may block briefly when the queue is at depth.
func (q *Queue) Add(w *Work) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	q.ch <- w
	return nil
}

// Completed returns how many items have retired.
func (q *Queue) Completed() uint64 {
	return q.completed.Load()
}

// Close stops the dispatcher after it drains pending items. Items already
// added still retire; Allocate and Add fail from now on. Callers must
// stop submitting before Close; an Add racing a Close may panic.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
		<-q.stopped
	}
}

// dispatch retires items one at a time. When the engine's reset gate is
// held it parks with the current item until the gate drops: work is held,
// never dropped, and the wait is bounded by the reset in progress.
func (q *Queue) dispatch() {
	defer close(q.stopped)

	for w := range q.ch {
		if q.gate != nil && q.gate.Held(q.engine.ID) {
			submissionsHeld.Inc()
			for q.gate.Held(q.engine.ID) {
				time.Sleep(gatePollInterval)
			}
			submissionsHeld.Dec()
		}

		q.execute()
		q.completed.Add(1)
		w.finish(nil)
	}
}

// execute models the engine doing the work: it ticks the engine's scratch
// register, giving the submission path an observable hardware footprint.
func (q *Queue) execute() {
	scratch := mmio.ScratchRegister(q.engine.MMIOBase)
	q.bus.Write32(scratch, q.bus.Read32(scratch)+1)
}
