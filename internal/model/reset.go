package model

import "time"

// Reset request state constants.
const (
	StateIdle      = "idle"
	StateRequested = "requested"
	StateQuiescing = "quiescing"
	StateResetting = "resetting"
	StateRestoring = "restoring"
	StateResumed   = "resumed"
	StateFailed    = "failed"
)

// Reset reason constants.
const (
	ReasonHangcheck      = "hangcheck"
	ReasonManual         = "manual"
	ReasonPreemptTimeout = "preempt-timeout"
)

// Reset outcome constants, recorded per completed attempt.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// validTransitions maps each reset state to the set of states it may
// transition to. Failed is reachable only from the two phases that touch
// hardware; everything else is a straight line.
var validTransitions = map[string]map[string]bool{
	StateIdle: {
		StateRequested: true,
	},
	StateRequested: {
		StateQuiescing: true,
	},
	StateQuiescing: {
		StateResetting: true,
	},
	StateResetting: {
		StateRestoring: true,
		StateFailed:    true,
	},
	StateRestoring: {
		StateResumed: true,
		StateFailed:  true,
	},
	StateResumed: {
		StateIdle: true,
	},
}

// ValidTransition reports whether a reset request may move from one state
// to another.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// ResetRequest is one attempt to recover a single engine. It is created
// on hang detection and discarded when the state machine finishes; a
// failed request is never retried in place.
type ResetRequest struct {
	ID         string     `json:"id"`
	EngineID   int        `json:"engine_id"`
	EngineName string     `json:"engine_name"`
	Reason     string     `json:"reason"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewResetRequest creates a request in the idle state.
func NewResetRequest(engine Engine, reason string) *ResetRequest {
	return &ResetRequest{
		ID:         NewID(),
		EngineID:   engine.ID,
		EngineName: engine.Name,
		Reason:     reason,
		State:      StateIdle,
		CreatedAt:  time.Now().UTC(),
	}
}

// Transition moves the request to the given state, returning false if the
// transition is not allowed. Failed and idle are terminal; Transition
// stamps FinishedAt when either is reached.
func (r *ResetRequest) Transition(to string) bool {
	if !ValidTransition(r.State, to) {
		return false
	}
	r.State = to
	if to == StateFailed || to == StateIdle {
		now := time.Now().UTC()
		r.FinishedAt = &now
	}
	return true
}

// Fail moves the request to the failed state and records the error.
func (r *ResetRequest) Fail(err error) bool {
	if !r.Transition(StateFailed) {
		return false
	}
	r.Error = err.Error()
	return true
}

// ResetEvent is the persisted record of one completed reset attempt.
type ResetEvent struct {
	ID         string    `json:"id"`
	EngineID   int       `json:"engine_id"`
	EngineName string    `json:"engine_name"`
	Reason     string    `json:"reason"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMS int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}
