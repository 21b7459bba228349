package lifecycle

import (
	"time"

	"dot-wallet/pkg/wallet/types"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingSignature
	StateSubmitting
	StateIncluded
	StateFinalized
	StateFailed
	StateCancelled
	StateExpired
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateAwaitingSignature: "awaitingSignature",
	StateSubmitting:        "submitting",
	StateIncluded:          "included",
	StateFinalized:         "finalized",
	StateFailed:            "failed",
	StateCancelled:         "cancelled",
	StateExpired:           "expired",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) Terminal() bool {
	switch s {
	case StateFinalized, StateFailed, StateCancelled, StateExpired:
		return true
	default:
		return false
	}
}

// 允许的状态迁移。Submitting 之后不能再回到 AwaitingSignature。
var transitions = map[State][]State{
	StateIdle:              {StateAwaitingSignature, StateCancelled, StateExpired},
	StateAwaitingSignature: {StateSubmitting, StateCancelled, StateExpired, StateFailed},
	StateSubmitting:        {StateIncluded, StateFinalized, StateFailed, StateExpired},
	StateIncluded:          {StateFinalized, StateFailed, StateExpired},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateChange is broadcast on the coordinator feed after every transition.
type StateChange struct {
	ID      string
	From    State
	To      State
	Outcome *types.Outcome // set on terminal states that produced an outcome
	At      time.Time
}
