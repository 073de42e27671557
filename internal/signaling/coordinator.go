package signaling

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

// Delivery is a message addressed to one participant.
type Delivery struct {
	To  string
	Msg *protocol.Message
}

// TransitionFunc observes every state change of a session.
type TransitionFunc func(s *Session, from, to State)

// Coordinator owns call sessions and drives their state machine.
// Each identity is in at most one non-terminal session. Payloads are
// passed along without being inspected.
type Coordinator struct {
	dir         Directory
	maxBuffered int
	log         *slog.Logger

	// OnTransition, when set, is called after each state change.
	OnTransition TransitionFunc

	now   func() time.Time
	newID func() string

	byIdentity map[string]*Session
	byID       map[string]*Session
}

// NewCoordinator creates a coordinator that validates targets against dir
// and keeps at most maxBuffered early candidates per recipient.
func NewCoordinator(dir Directory, maxBuffered int, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		dir:         dir,
		maxBuffered: maxBuffered,
		log:         log,
		now:         time.Now,
		newID:       uuid.NewString,
		byIdentity:  make(map[string]*Session),
		byID:        make(map[string]*Session),
	}
}

// RequestCall opens a session from -> to and rings the responder.
func (c *Coordinator) RequestCall(from, to string, offer json.RawMessage) ([]Delivery, error) {
	if to == from {
		return nil, fmt.Errorf("%w: cannot call yourself", ErrInvalidTarget)
	}
	if _, ok := c.dir.DisplayName(to); !ok {
		return nil, fmt.Errorf("%w: %s is not connected", ErrInvalidTarget, to)
	}
	if s, busy := c.byIdentity[from]; busy {
		// Both sides called each other: the later request sees a busy target.
		if s.Involves(to) {
			return nil, fmt.Errorf("%w: %s is busy", ErrAlreadyInSession, to)
		}
		return nil, fmt.Errorf("%w: you are already in a call", ErrAlreadyInSession)
	}
	if _, busy := c.byIdentity[to]; busy {
		return nil, fmt.Errorf("%w: %s is busy", ErrAlreadyInSession, to)
	}

	s := newSession(c.newID(), from, to, c.now())
	c.byIdentity[from] = s
	c.byIdentity[to] = s
	c.byID[s.ID] = s
	c.notify(s, s.State, s.State)

	fromName, _ := c.dir.DisplayName(from)
	c.log.Debug("Call requested", "session", s.ID, "from", from, "to", to)

	return []Delivery{{To: to, Msg: &protocol.Message{
		Type:     protocol.TypeIncomingCall,
		From:     from,
		FromName: fromName,
		Payload:  offer,
	}}}, nil
}

// AcceptCall answers the ringing call of responder. The initiator receives
// the answer first, followed by any candidates buffered while ringing.
func (c *Coordinator) AcceptCall(responder string, answer json.RawMessage) ([]Delivery, error) {
	s, ok := c.byIdentity[responder]
	if !ok || s.State != StateRequested || s.Responder != responder {
		return nil, fmt.Errorf("%w: no incoming call to accept", ErrNoSuchSession)
	}

	c.transition(s, StateAccepted)
	c.transition(s, StateConnected)
	c.log.Debug("Call connected", "session", s.ID)

	out := []Delivery{{To: s.Initiator, Msg: &protocol.Message{
		Type:    protocol.TypeCallConnected,
		From:    responder,
		Payload: answer,
	}}}
	out = append(out, candidates(s.Initiator, s.Responder, s.drain(s.Initiator))...)
	out = append(out, candidates(s.Responder, s.Initiator, s.drain(s.Responder))...)
	return out, nil
}

// RejectCall declines the ringing call of responder.
func (c *Coordinator) RejectCall(responder string) ([]Delivery, error) {
	s, ok := c.byIdentity[responder]
	if !ok || s.State != StateRequested || s.Responder != responder {
		return nil, fmt.Errorf("%w: no incoming call to reject", ErrNoSuchSession)
	}

	c.finish(s, StateRejected)
	return []Delivery{{To: s.Initiator, Msg: &protocol.Message{
		Type:   protocol.TypeCallRejected,
		From:   responder,
		Reason: protocol.ReasonRejected,
	}}}, nil
}

// RelayCandidate forwards a network candidate to the other party. While the
// call is still ringing the candidate is held until it is accepted.
// Candidates outside of a session are dropped.
func (c *Coordinator) RelayCandidate(from string, candidate json.RawMessage) ([]Delivery, error) {
	s, ok := c.byIdentity[from]
	if !ok {
		c.log.Debug("Dropping candidate outside of a session", "from", from)
		return nil, nil
	}

	to := s.Peer(from)
	if s.State == StateRequested {
		if !s.buffer(to, candidate, c.maxBuffered) {
			return nil, fmt.Errorf("%w: %d candidates already pending", ErrCandidateBufferFull, c.maxBuffered)
		}
		return nil, nil
	}

	return []Delivery{{To: to, Msg: &protocol.Message{
		Type:    protocol.TypeCandidate,
		From:    from,
		Payload: candidate,
	}}}, nil
}

// EndCall hangs up. A ringing call is cancelled when the initiator ends it
// and rejected when the responder does.
func (c *Coordinator) EndCall(from string) ([]Delivery, error) {
	s, ok := c.byIdentity[from]
	if !ok {
		return nil, fmt.Errorf("%w: not in a call", ErrNoSuchSession)
	}

	reason := protocol.ReasonHangup
	if s.State == StateRequested {
		if from == s.Responder {
			return c.RejectCall(from)
		}
		reason = protocol.ReasonCancelled
	}

	c.finish(s, StateEnded)
	return []Delivery{{To: s.Peer(from), Msg: &protocol.Message{
		Type:   protocol.TypeCallEnded,
		From:   from,
		Reason: reason,
	}}}, nil
}

// OnDisconnect aborts the session of a participant that went away and
// tells the other party. Calling it again is a no-op.
func (c *Coordinator) OnDisconnect(identity string) []Delivery {
	s, ok := c.byIdentity[identity]
	if !ok {
		return nil
	}

	msgType := protocol.TypeCallEnded
	if s.State == StateRequested && identity == s.Responder {
		msgType = protocol.TypeCallRejected
	}

	c.finish(s, StateAborted)
	return []Delivery{{To: s.Peer(identity), Msg: &protocol.Message{
		Type:   msgType,
		From:   identity,
		Reason: protocol.ReasonDisconnect,
	}}}
}

// RingTimeout aborts a session that is still ringing. Unknown or already
// answered sessions are ignored.
func (c *Coordinator) RingTimeout(sessionID string) []Delivery {
	s, ok := c.byID[sessionID]
	if !ok || s.State != StateRequested {
		return nil
	}

	c.finish(s, StateAborted)
	c.log.Debug("Call timed out", "session", s.ID)

	return lo.Map([]string{s.Initiator, s.Responder}, func(to string, _ int) Delivery {
		return Delivery{To: to, Msg: &protocol.Message{
			Type:   protocol.TypeCallEnded,
			From:   s.Peer(to),
			Reason: protocol.ReasonTimeout,
		}}
	})
}

// SessionOf returns the live session of identity.
func (c *Coordinator) SessionOf(identity string) (*Session, bool) {
	s, ok := c.byIdentity[identity]
	return s, ok
}

// Sessions returns every live session.
func (c *Coordinator) Sessions() []*Session {
	return lo.Values(c.byID)
}

func (c *Coordinator) transition(s *Session, to State) {
	from := s.State
	s.State = to
	c.notify(s, from, to)
}

// finish moves s to a terminal state and forgets it.
func (c *Coordinator) finish(s *Session, to State) {
	c.transition(s, to)
	for _, id := range []string{s.Initiator, s.Responder} {
		if c.byIdentity[id] == s {
			delete(c.byIdentity, id)
		}
	}
	delete(c.byID, s.ID)
	c.log.Debug("Session closed", "session", s.ID, "state", to)
}

func (c *Coordinator) notify(s *Session, from, to State) {
	if c.OnTransition != nil {
		c.OnTransition(s, from, to)
	}
}

func candidates(to, from string, payloads []json.RawMessage) []Delivery {
	return lo.Map(payloads, func(p json.RawMessage, _ int) Delivery {
		return Delivery{To: to, Msg: &protocol.Message{
			Type:    protocol.TypeCandidate,
			From:    from,
			Payload: p,
		}}
	})
}
