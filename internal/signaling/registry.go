package signaling

import (
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

// DefaultName is given to participants that have not renamed themselves.
const DefaultName = "Anonymous"

// Registry tracks connected participants and their display names.
// It is not safe for concurrent use; the hub owns it.
type Registry struct {
	participants map[string]*protocol.Participant
	defaultName  string
	newIdentity  func() string
}

// NewRegistry creates an empty registry. A nil newIdentity uses random UUIDs.
func NewRegistry(defaultName string, newIdentity func() string) *Registry {
	if defaultName == "" {
		defaultName = DefaultName
	}
	if newIdentity == nil {
		newIdentity = uuid.NewString
	}
	return &Registry{
		participants: make(map[string]*protocol.Participant),
		defaultName:  defaultName,
		newIdentity:  newIdentity,
	}
}

// Connect allocates an identity for a new participant.
func (r *Registry) Connect() string {
	id := r.newIdentity()
	for r.participants[id] != nil {
		id = r.newIdentity()
	}
	r.participants[id] = &protocol.Participant{Identity: id, Name: r.defaultName}
	return id
}

// Rename sets the display name of identity. Surrounding whitespace is
// trimmed and an empty name falls back to the default. It returns false
// when identity is unknown.
func (r *Registry) Rename(identity, name string) bool {
	p, ok := r.participants[identity]
	if !ok {
		return false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.defaultName
	}
	p.Name = name
	return true
}

// Disconnect removes identity. It returns false if it was already gone.
func (r *Registry) Disconnect(identity string) bool {
	if _, ok := r.participants[identity]; !ok {
		return false
	}
	delete(r.participants, identity)
	return true
}

// DisplayName returns the current name of identity.
func (r *Registry) DisplayName(identity string) (string, bool) {
	p, ok := r.participants[identity]
	if !ok {
		return "", false
	}
	return p.Name, true
}

// Len returns the number of connected participants.
func (r *Registry) Len() int {
	return len(r.participants)
}

// Identities returns every connected identity in no particular order.
func (r *Registry) Identities() []string {
	return lo.Keys(r.participants)
}

// Snapshot returns a copy of the roster.
func (r *Registry) Snapshot() map[string]protocol.Participant {
	return lo.MapValues(r.participants, func(p *protocol.Participant, _ string) protocol.Participant {
		return *p
	})
}

// Broadcast builds one roster message per connected participant.
func (r *Registry) Broadcast() []Delivery {
	roster := r.Snapshot()
	return lo.Map(r.Identities(), func(id string, _ int) Delivery {
		return Delivery{To: id, Msg: &protocol.Message{Type: protocol.TypeRoster, Roster: roster}}
	})
}
