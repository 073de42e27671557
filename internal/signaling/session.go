package signaling

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of a call session.
type State int

const (
	StateRequested State = iota
	StateAccepted
	StateConnected
	StateRejected
	StateEnded
	StateAborted
)

var stateNames = [...]string{
	StateRequested: "requested",
	StateAccepted:  "accepted",
	StateConnected: "connected",
	StateRejected:  "rejected",
	StateEnded:     "ended",
	StateAborted:   "aborted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateEnded || s == StateAborted
}

// Session represents a single call between two participants.
type Session struct {
	// ID is the unique identifier for the session.
	ID string

	// Initiator is the identity that sent the call-request.
	Initiator string

	// Responder is the identity that was called.
	Responder string

	State     State
	CreatedAt time.Time

	// pending holds candidates per recipient until the call is accepted.
	pending map[string][]json.RawMessage
}

func newSession(id, initiator, responder string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Initiator: initiator,
		Responder: responder,
		State:     StateRequested,
		CreatedAt: now,
		pending:   make(map[string][]json.RawMessage),
	}
}

// Peer returns the other party of the session.
func (s *Session) Peer(identity string) string {
	if identity == s.Initiator {
		return s.Responder
	}
	return s.Initiator
}

// Involves reports whether identity is one of the two parties.
func (s *Session) Involves(identity string) bool {
	return identity == s.Initiator || identity == s.Responder
}

// Pending returns how many candidates are waiting for the given recipient.
func (s *Session) Pending(to string) int {
	return len(s.pending[to])
}

// buffer queues a candidate for to. It returns false once limit is reached.
// A limit of zero or less means unbounded.
func (s *Session) buffer(to string, c json.RawMessage, limit int) bool {
	if limit > 0 && len(s.pending[to]) >= limit {
		return false
	}
	s.pending[to] = append(s.pending[to], c)
	return true
}

// drain returns and forgets the candidates queued for to, oldest first.
func (s *Session) drain(to string) []json.RawMessage {
	out := s.pending[to]
	delete(s.pending, to)
	return out
}
