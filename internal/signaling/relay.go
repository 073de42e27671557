package signaling

import (
	"context"
	"errors"
	"log/slog"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

// Options configures a Relay.
type Options struct {
	DefaultName           string
	MaxNameLength         int
	MaxBufferedCandidates int

	// NewIdentity overrides identity generation, mostly for tests.
	NewIdentity func() string

	// OnTransition observes session state changes.
	OnTransition TransitionFunc

	Logger *slog.Logger
}

// Relay turns one inbound event into the deliveries it causes. It does no
// I/O and must be driven from a single goroutine.
type Relay struct {
	registry    *Registry
	coordinator *Coordinator
	validator   *protocol.Validator
	log         *slog.Logger
}

// NewRelay creates an empty relay.
func NewRelay(opts Options) *Relay {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	registry := NewRegistry(opts.DefaultName, opts.NewIdentity)
	coordinator := NewCoordinator(registry, opts.MaxBufferedCandidates, log)
	coordinator.OnTransition = opts.OnTransition

	return &Relay{
		registry:    registry,
		coordinator: coordinator,
		validator:   protocol.NewValidator(opts.MaxNameLength),
		log:         log,
	}
}

// Connect registers a new participant. The newcomer is welcomed first and
// then everybody gets the updated roster.
func (r *Relay) Connect() (string, []Delivery) {
	id := r.registry.Connect()
	out := []Delivery{{To: id, Msg: &protocol.Message{Type: protocol.TypeWelcome, Identity: id}}}
	return id, append(out, r.registry.Broadcast()...)
}

// Disconnect removes a participant, ending its call. It is idempotent.
func (r *Relay) Disconnect(identity string) []Delivery {
	if !r.registry.Disconnect(identity) {
		return nil
	}
	out := r.coordinator.OnDisconnect(identity)
	return append(out, r.registry.Broadcast()...)
}

// Handle processes one client message. Failures become an error frame for
// the sender only.
func (r *Relay) Handle(from string, msg *protocol.Message) []Delivery {
	if err := r.validator.Validate(msg); err != nil {
		ref := ""
		if msg != nil {
			ref = msg.Type
		}
		return r.Fail(from, err, ref)
	}

	var (
		out []Delivery
		err error
	)
	switch msg.Type {
	case protocol.TypeRename:
		if r.registry.Rename(from, msg.Name) {
			out = r.registry.Broadcast()
		}
	case protocol.TypeCallRequest:
		out, err = r.coordinator.RequestCall(from, msg.Target, msg.Payload)
	case protocol.TypeCallAccept:
		out, err = r.coordinator.AcceptCall(from, msg.Payload)
	case protocol.TypeCallReject:
		out, err = r.coordinator.RejectCall(from)
	case protocol.TypeCandidate:
		out, err = r.coordinator.RelayCandidate(from, msg.Payload)
	case protocol.TypeCallEnd:
		out, err = r.coordinator.EndCall(from)
	}

	if err != nil {
		return append(out, r.Fail(from, err, msg.Type)...)
	}
	return out
}

// Fail reports err to identity.
func (r *Relay) Fail(identity string, err error, ref string) []Delivery {
	level := slog.LevelDebug
	if !errors.Is(err, ErrMalformedMessage) && !errors.Is(err, ErrRateLimited) {
		level = slog.LevelInfo
	}
	r.log.Log(context.Background(), level, "Request failed", "identity", identity, "ref", ref, "error", err)
	return []Delivery{{To: identity, Msg: errorMessage(err, ref)}}
}

// RingTimeout aborts the session if it is still ringing.
func (r *Relay) RingTimeout(sessionID string) []Delivery {
	return r.coordinator.RingTimeout(sessionID)
}

// Snapshot returns a copy of the roster.
func (r *Relay) Snapshot() map[string]protocol.Participant {
	return r.registry.Snapshot()
}

// SessionOf returns the live session of identity.
func (r *Relay) SessionOf(identity string) (*Session, bool) {
	return r.coordinator.SessionOf(identity)
}

// Participants returns the number of connected participants.
func (r *Relay) Participants() int {
	return r.registry.Len()
}
