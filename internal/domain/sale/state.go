package sale

import (
	"fmt"

	"github.com/roboyicecream/kioskpay/internal/domain/errors"
)

// State is the engine's position in the acquisition protocol.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingPayment State = "awaiting_payment"
	StateStabilizing     State = "stabilizing"
	StateSettled         State = "settled"
)

var transitions = map[State][]State{
	StateIdle: {
		StateAwaitingPayment,
		StateSettled, // unknown payment option
	},
	StateAwaitingPayment: {
		StateStabilizing, // coin only
		StateSettled,
	},
	StateStabilizing: {
		StateSettled,
	},
	StateSettled: {}, // terminal
}

// CanTransitionTo checks if the protocol may move from s to next.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Session tracks the state of one sale.
type Session struct {
	Request Request
	State   State
}

// NewSession starts a session in the idle state.
func NewSession(req Request) *Session {
	return &Session{Request: req, State: StateIdle}
}

// Transition moves the session to next or reports an invalid transition.
func (s *Session) Transition(next State) error {
	if !s.State.CanTransitionTo(next) {
		return errors.NewDomainError(
			"invalid_state_transition",
			fmt.Sprintf("cannot move sale from %s to %s", s.State, next),
			nil,
		)
	}
	s.State = next
	return nil
}

// Settled reports whether the session reached its terminal state.
func (s *Session) Settled() bool {
	return s.State == StateSettled
}
