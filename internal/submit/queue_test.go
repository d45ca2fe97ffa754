package submit_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seantiz/ember/internal/mmio"
	"github.com/seantiz/ember/internal/model"
	"github.com/seantiz/ember/internal/submit"
)

// stubGate implements submit.Gate with a single switchable engine.
type stubGate struct {
	engineID int
	held     atomic.Bool
}

func (g *stubGate) Held(engineID int) bool {
	return engineID == g.engineID && g.held.Load()
}

func testEngine() model.Engine {
	return model.Engine{ID: 0, Name: "vcs0", Class: model.ClassVideo, MMIOBase: 0x12000, ContextSize: 5 * 4096}
}

func submitOne(t *testing.T, q *submit.Queue) *submit.Work {
	t.Helper()
	w, err := q.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := q.Add(w); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return w
}

func TestQueueRetiresInOrder(t *testing.T) {
	bus := mmio.NewSimBus()
	eng := testEngine()
	q := submit.NewQueue(eng, nil, bus)
	defer q.Close()

	const n = 100
	works := make([]*submit.Work, n)
	for i := range works {
		works[i] = submitOne(t, q)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, w := range works {
		if err := w.Wait(ctx); err != nil {
			t.Fatalf("Wait[%d]: %v", i, err)
		}
	}

	if got := q.Completed(); got != n {
		t.Errorf("completed = %d, want %d", got, n)
	}
	// Each retirement ticked the engine's scratch register once.
	if v := bus.Read32(mmio.ScratchRegister(eng.MMIOBase)); v != n {
		t.Errorf("scratch register = %d, want %d", v, n)
	}
}

func TestQueueParksWhileGateHeld(t *testing.T) {
	bus := mmio.NewSimBus()
	eng := testEngine()
	gate := &stubGate{engineID: eng.ID}
	gate.held.Store(true)

	q := submit.NewQueue(eng, gate, bus)
	defer q.Close()

	w := submitOne(t, q)

	// Held gate: the item must stay parked, not fail and not retire.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait with held gate: err = %v, want deadline exceeded", err)
	}
	if q.Completed() != 0 {
		t.Fatal("item retired while gate was held")
	}

	// Released gate: the parked item retires.
	gate.held.Store(false)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := w.Wait(ctx2); err != nil {
		t.Fatalf("Wait after release: %v", err)
	}
}

func TestQueueGateOfOtherEngineIrrelevant(t *testing.T) {
	bus := mmio.NewSimBus()
	eng := testEngine()

	// A gate held for a different engine must not park this queue.
	gate := &stubGate{engineID: eng.ID + 1}
	gate.held.Store(true)

	q := submit.NewQueue(eng, gate, bus)
	defer q.Close()

	w := submitOne(t, q)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	q := submit.NewQueue(testEngine(), nil, mmio.NewSimBus())

	w := submitOne(t, q)
	q.Close()

	// Work added before Close still retired.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Wait(ctx); err != nil {
		t.Errorf("pre-close work: %v", err)
	}

	if _, err := q.Allocate(); !errors.Is(err, submit.ErrQueueClosed) {
		t.Errorf("Allocate after Close: err = %v, want ErrQueueClosed", err)
	}
	if err := q.Add(&submit.Work{}); !errors.Is(err, submit.ErrQueueClosed) {
		t.Errorf("Add after Close: err = %v, want ErrQueueClosed", err)
	}
}
