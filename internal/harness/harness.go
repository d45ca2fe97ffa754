// Package harness exercises the reset controller under concurrent
// submission load to prove reset isolation: recovering one engine leaves
// every other engine's work and reset count untouched.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/ember/internal/model"
	"github.com/seantiz/ember/internal/reset"
	"github.com/seantiz/ember/internal/submit"
)

// Options configures one harness run.
type Options struct {
	// Duration is how long the reset loop runs before workers are told
	// to stop.
	Duration time.Duration
	// Reset enables the reset loop. When false the run is a baseline:
	// same load, no resets, every counter must stay put.
	Reset bool
	// Reason is recorded on each reset request; defaults to hangcheck.
	Reason string
}

// Report summarises one harness run.
type Report struct {
	Target          int      `json:"target"`
	ResetsCompleted uint64   `json:"resets_completed"`
	ResetsFailed    uint64   `json:"resets_failed"`
	Cycles          []uint64 `json:"cycles"`
}

// Harness runs continuous submission load on every engine but one while
// that one is reset in a tight loop.
type Harness struct {
	engines []model.Engine
	queues  []*submit.Queue
	ctrl    *reset.Controller
	logger  *slog.Logger
}

// New creates a harness. queues must be indexed by engine ID and built
// over the controller's gate, so a reset of engine i parks exactly
// queue i.
func New(engines []model.Engine, queues []*submit.Queue, ctrl *reset.Controller, logger *slog.Logger) *Harness {
	return &Harness{
		engines: engines,
		queues:  queues,
		ctrl:    ctrl,
		logger:  logger,
	}
}

// Run drives load against every engine except target while repeatedly
// resetting target (or idling, in baseline mode) until the deadline. It
// then stops and joins all workers and audits the reset counters: any
// movement on a non-target engine's counter, or any global movement not
// accounted for by target's attempts, is an isolation violation and is
// returned as an error alongside the report.
func (h *Harness) Run(ctx context.Context, target int, opts Options) (*Report, error) {
	if target < 0 || target >= len(h.engines) {
		return nil, fmt.Errorf("harness: no engine with id %d", target)
	}
	reason := opts.Reason
	if reason == "" {
		reason = model.ReasonHangcheck
	}

	report := &Report{
		Target: target,
		Cycles: make([]uint64, len(h.engines)),
	}
	before := h.ctrl.Counters().Snapshot()

	stop := make(chan struct{})
	workerErrs := make([]error, len(h.engines))
	var wg sync.WaitGroup

	for _, eng := range h.engines {
		if eng.ID == target {
			continue
		}
		wg.Add(1)
		go func(eng model.Engine) {
			defer wg.Done()
			report.Cycles[eng.ID], workerErrs[eng.ID] = h.worker(ctx, eng, stop)
		}(eng)
	}

	var resetErr error
	deadline := time.Now().Add(opts.Duration)
	for time.Now().Before(deadline) {
		if !opts.Reset {
			time.Sleep(time.Millisecond)
			continue
		}
		if _, err := h.ctrl.Reset(ctx, target, reason); err != nil {
			report.ResetsFailed++
			resetErr = fmt.Errorf("harness: reset %s: %w", h.engines[target].Name, err)
			break
		}
		report.ResetsCompleted++
	}

	close(stop)
	wg.Wait()

	var errs []error
	if resetErr != nil {
		errs = append(errs, resetErr)
	}
	for id, err := range workerErrs {
		if err != nil {
			errs = append(errs, fmt.Errorf("harness: worker %s: %w", h.engines[id].Name, err))
		}
	}
	errs = append(errs, h.audit(before, report, opts.Reset)...)

	h.logger.Info("harness run finished",
		"target", h.engines[target].Name,
		"reset_mode", opts.Reset,
		"resets_completed", report.ResetsCompleted,
		"violations", len(errs),
	)

	return report, errors.Join(errs...)
}

// worker runs one engine's submission loop: a double-buffered slot of
// depth 2, waiting for a slot's previous occupant before reusing it, so
// at most two submissions are ever outstanding. The stop signal is
// polled once per cycle.
func (h *Harness) worker(ctx context.Context, eng model.Engine, stop <-chan struct{}) (uint64, error) {
	q := h.queues[eng.ID]
	var inflight [2]*submit.Work
	var count uint64

	for {
		select {
		case <-stop:
			// Drain whatever is still outstanding before reporting.
			for _, w := range inflight {
				if w != nil {
					if err := w.Wait(ctx); err != nil {
						return count, err
					}
				}
			}
			return count, nil
		default:
		}

		idx := count & 1
		old := inflight[idx]

		w, err := q.Allocate()
		if err != nil {
			return count, err
		}
		if err := q.Add(w); err != nil {
			return count, err
		}
		inflight[idx] = w
		count++

		if old != nil {
			if err := old.Wait(ctx); err != nil {
				return count, err
			}
		}
	}
}

// audit compares counter snapshots across the run against what the run
// was allowed to change.
func (h *Harness) audit(before reset.Snapshot, report *Report, resetMode bool) []error {
	after := h.ctrl.Counters().Snapshot()
	var errs []error

	for _, eng := range h.engines {
		if eng.ID == report.Target {
			continue
		}
		if after.Engines[eng.ID] != before.Engines[eng.ID] {
			errs = append(errs, fmt.Errorf("harness: innocent engine %s was reset (count +%d)",
				eng.Name, after.Engines[eng.ID]-before.Engines[eng.ID]))
		}
	}

	targetDelta := after.Engines[report.Target] - before.Engines[report.Target]
	globalDelta := after.Global - before.Global

	if resetMode {
		if targetDelta != report.ResetsCompleted {
			errs = append(errs, fmt.Errorf("harness: target %s count moved by %d, want %d completed resets",
				h.engines[report.Target].Name, targetDelta, report.ResetsCompleted))
		}
		// A refused reset (wedged engine) is not an attempt, so a failed
		// loop iteration may or may not have reached the global counter.
		if globalDelta < report.ResetsCompleted || globalDelta > report.ResetsCompleted+report.ResetsFailed {
			errs = append(errs, fmt.Errorf("harness: global count moved by %d, want %d to %d",
				globalDelta, report.ResetsCompleted, report.ResetsCompleted+report.ResetsFailed))
		}
	} else {
		if targetDelta != 0 {
			errs = append(errs, fmt.Errorf("harness: target %s was reset %d times in baseline mode",
				h.engines[report.Target].Name, targetDelta))
		}
		if globalDelta != 0 {
			errs = append(errs, fmt.Errorf("harness: global count moved by %d in baseline mode", globalDelta))
		}
	}

	return errs
}
