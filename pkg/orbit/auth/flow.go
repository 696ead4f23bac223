package auth

import (
	"context"
	"time"
)

// FlowState is the state of a device authorization handshake.
type FlowState int

const (
	StateRequested FlowState = iota
	StatePending
	StateSlowDown
	StateApproved
	StateDenied
	StateExpired
)

func (s FlowState) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StatePending:
		return "pending"
	case StateSlowDown:
		return "slow_down"
	case StateApproved:
		return "approved"
	case StateDenied:
		return "denied"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further polls may follow s.
func (s FlowState) Terminal() bool {
	return s == StateApproved || s == StateDenied || s == StateExpired
}

// Outcome is what a single poll of the token endpoint reported.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSlowDown
	OutcomeApproved
	OutcomeDenied
	OutcomeExpired
)

// Action tells the poll driver what to do next.
type Action int

const (
	ActionWait Action = iota
	ActionSucceed
	ActionFail
)

// Transition is the poll state machine. Terminal states absorb every outcome.
func Transition(s FlowState, o Outcome) (FlowState, Action) {
	if s.Terminal() {
		if s == StateApproved {
			return s, ActionSucceed
		}
		return s, ActionFail
	}
	switch o {
	case OutcomePending:
		return StatePending, ActionWait
	case OutcomeSlowDown:
		return StateSlowDown, ActionWait
	case OutcomeApproved:
		return StateApproved, ActionSucceed
	case OutcomeDenied:
		return StateDenied, ActionFail
	default:
		return StateExpired, ActionFail
	}
}

const (
	minPollInterval   = 5 * time.Second
	slowDownStep      = 5 * time.Second
	maxIntervalFactor = 6
)

// intervalCeiling is the largest interval slow_down may grow to.
func intervalCeiling(base time.Duration) time.Duration {
	return max(base, minPollInterval) * maxIntervalFactor
}

func nextInterval(current, ceiling time.Duration) time.Duration {
	return min(current+slowDownStep, ceiling)
}

// Clock abstracts time for the poll loop.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
