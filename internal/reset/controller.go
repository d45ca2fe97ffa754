// Package reset drives per-engine recovery: the quiesce/reset/restore
// state machine, the per-engine submission gates, and the attempt
// counters the isolation harness audits.
package reset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/seantiz/ember/internal/model"
)

var (
	// ErrUnknownEngine is returned for an engine ID outside the set.
	ErrUnknownEngine = errors.New("reset: unknown engine")
	// ErrWedged is returned when the target engine has been declared
	// irrecoverable. It is terminal: no further resets are attempted.
	ErrWedged = errors.New("reset: engine is wedged")
)

// Resetter executes the two hardware-touching phases of recovery. Both
// calls block until the firmware confirms completion; both affect exactly
// the engine they are given.
type Resetter interface {
	// ResetEngine pulses the engine's reset domain, capturing
	// save-current register values first.
	ResetEngine(ctx context.Context, eng model.Engine) error
	// RestoreEngine replays the engine's save list from the published
	// descriptor.
	RestoreEngine(ctx context.Context, eng model.Engine) error
}

// EventSink records completed reset attempts. The SQLite store satisfies
// this; a nil sink disables persistence.
type EventSink interface {
	CreateResetEvent(ctx context.Context, ev *model.ResetEvent) error
}

// Controller runs the per-engine reset state machine. One Controller
// serves all engines, but it holds no lock shared across engines:
// per-engine state is the gate and the wedged flag, both independent
// atomics, so resetting one engine never contends with submissions or
// resets elsewhere.
type Controller struct {
	engines  []model.Engine
	resetter Resetter
	gate     *Gate
	counters *Counters
	wedged   []atomic.Bool
	sink     EventSink
	broker   *Broker
	logger   *slog.Logger
}

// NewController creates a controller for the given engine set. sink and
// broker may be nil.
func NewController(engines []model.Engine, resetter Resetter, sink EventSink, broker *Broker, logger *slog.Logger) *Controller {
	initMetrics(engines)
	return &Controller{
		engines:  engines,
		resetter: resetter,
		gate:     NewGate(len(engines)),
		counters: NewCounters(len(engines)),
		wedged:   make([]atomic.Bool, len(engines)),
		sink:     sink,
		broker:   broker,
		logger:   logger,
	}
}

// Gate returns the per-engine submission gates.
func (c *Controller) Gate() *Gate { return c.gate }

// Counters returns the reset counters.
func (c *Controller) Counters() *Counters { return c.counters }

// Engines returns the engine set the controller serves.
func (c *Controller) Engines() []model.Engine { return c.engines }

// MarkWedged declares an engine irrecoverable. The decision belongs to
// the caller, typically after repeated failed attempts; the controller
// only enforces it.
func (c *Controller) MarkWedged(engineID int) error {
	if engineID < 0 || engineID >= len(c.engines) {
		return fmt.Errorf("%w: id %d", ErrUnknownEngine, engineID)
	}
	c.wedged[engineID].Store(true)
	c.logger.Error("engine marked wedged", "engine", c.engines[engineID].Name)
	return nil
}

// Wedged reports whether an engine has been declared irrecoverable.
func (c *Controller) Wedged(engineID int) bool {
	if engineID < 0 || engineID >= len(c.engines) {
		return false
	}
	return c.wedged[engineID].Load()
}

// Reset drives one recovery attempt for the given engine:
//
//	idle → requested → quiescing → resetting → restoring → resumed → idle
//
// with failed reachable from the resetting and restoring phases. It is
// safe to call while submissions continue on other engines. The global
// counter is bumped exactly once per attempt regardless of outcome; the
// engine's counter only on success. A failed attempt is never retried
// here; the returned request is terminal and the caller decides.
func (c *Controller) Reset(ctx context.Context, engineID int, reason string) (*model.ResetRequest, error) {
	if engineID < 0 || engineID >= len(c.engines) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownEngine, engineID)
	}
	if c.wedged[engineID].Load() {
		return nil, fmt.Errorf("%s: %w", c.engines[engineID].Name, ErrWedged)
	}

	eng := c.engines[engineID]
	req := model.NewResetRequest(eng, reason)
	start := time.Now()

	c.transition(req, model.StateRequested)

	// Quiesce: raise the reset-in-progress indicator so the submission
	// path parks new work for this engine. Released on every exit path.
	c.transition(req, model.StateQuiescing)
	c.gate.Hold(engineID)
	resetsInProgress.Inc()
	defer func() {
		c.gate.Release(engineID)
		resetsInProgress.Dec()
	}()

	c.transition(req, model.StateResetting)
	err := c.resetter.ResetEngine(ctx, eng)

	if err == nil {
		c.transition(req, model.StateRestoring)
		err = c.resetter.RestoreEngine(ctx, eng)
	}

	if err != nil {
		req.Fail(err)
		c.broadcast(req)
	} else {
		c.transition(req, model.StateResumed)
		c.transition(req, model.StateIdle)
	}

	// An attempt completed either way.
	c.counters.RecordAttempt()
	outcome := model.OutcomeCompleted
	if err != nil {
		outcome = model.OutcomeFailed
	} else {
		c.counters.RecordEngineReset(engineID)
	}

	elapsed := time.Since(start)
	resetsTotal.WithLabelValues(eng.Name, outcome).Inc()
	resetDuration.WithLabelValues(eng.Name).Observe(elapsed.Seconds())

	// Record against a fresh context so a cancelled reset still leaves a
	// history row.
	c.record(context.Background(), req, outcome, elapsed)

	if err != nil {
		c.logger.Error("engine reset failed",
			"engine", eng.Name,
			"request_id", req.ID,
			"reason", reason,
			"error", err,
		)
		return req, fmt.Errorf("reset %s: %w", eng.Name, err)
	}

	c.logger.Info("engine reset completed",
		"engine", eng.Name,
		"request_id", req.ID,
		"reason", reason,
		"duration_ms", elapsed.Milliseconds(),
	)
	return req, nil
}

// transition advances the request state and publishes the new state to
// any subscribers. Transition table violations cannot happen with the
// fixed sequence above, but are logged rather than trusted silently.
func (c *Controller) transition(req *model.ResetRequest, to string) {
	if !req.Transition(to) {
		c.logger.Error("invalid reset state transition",
			"request_id", req.ID,
			"from", req.State,
			"to", to,
		)
		return
	}
	c.broadcast(req)
}

func (c *Controller) broadcast(req *model.ResetRequest) {
	if c.broker != nil {
		c.broker.Publish(req.EngineName, req.State)
	}
}

// record persists the completed attempt. Persistence failures are logged,
// not surfaced: losing a history row must not turn a recovered engine
// into an error.
func (c *Controller) record(ctx context.Context, req *model.ResetRequest, outcome string, elapsed time.Duration) {
	if c.sink == nil {
		return
	}

	ev := &model.ResetEvent{
		ID:         req.ID,
		EngineID:   req.EngineID,
		EngineName: req.EngineName,
		Reason:     req.Reason,
		Outcome:    outcome,
		Error:      req.Error,
		DurationMS: int(elapsed.Milliseconds()),
		CreatedAt:  req.CreatedAt,
		FinishedAt: time.Now().UTC(),
	}
	if err := c.sink.CreateResetEvent(ctx, ev); err != nil {
		c.logger.Error("record reset event", "request_id", req.ID, "error", err)
	}
}
