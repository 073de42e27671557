package callclient

import (
	"encoding/json"
	"log/slog"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

// IncomingCall is a call waiting for an answer.
type IncomingCall struct {
	From     string
	FromName string
	Offer    json.RawMessage
}

// Candidate is a remote network candidate.
type Candidate struct {
	From    string
	Payload json.RawMessage
}

// Answer is the callee's reply to our offer.
type Answer struct {
	From    string
	Payload json.RawMessage
}

// Ended tells why a call was rejected or ended, and by whom.
type Ended struct {
	From   string
	Reason string
}

// Handler routes incoming relay messages to typed channels.
type Handler struct {
	client *Client

	Welcome       chan string
	Roster        chan map[string]protocol.Participant
	IncomingCall  chan *IncomingCall
	CallConnected chan *Answer
	CallRejected  chan *Ended
	CallEnded     chan *Ended
	Candidate     chan *Candidate
	Error         chan *protocol.ErrorBody

	// Disconnected is closed when the relay connection is gone.
	Disconnected chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:        client,
		Welcome:       make(chan string, 1),
		Roster:        make(chan map[string]protocol.Participant, 1),
		IncomingCall:  make(chan *IncomingCall, 4),
		CallConnected: make(chan *Answer, 1),
		CallRejected:  make(chan *Ended, 1),
		CallEnded:     make(chan *Ended, 1),
		Candidate:     make(chan *Candidate, 64),
		Error:         make(chan *protocol.ErrorBody, 4),
		Disconnected:  make(chan struct{}),
	}
}

// Start begins listening to incoming messages and routing them. It
// returns when the connection closes.
func (h *Handler) Start() {
	defer close(h.Disconnected)

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case protocol.TypeWelcome:
			h.Welcome <- msg.Identity

		case protocol.TypeRoster:
			latest(h.Roster, msg.Roster)

		case protocol.TypeIncomingCall:
			h.IncomingCall <- &IncomingCall{From: msg.From, FromName: msg.FromName, Offer: msg.Payload}

		case protocol.TypeCallConnected:
			h.CallConnected <- &Answer{From: msg.From, Payload: msg.Payload}

		case protocol.TypeCallRejected:
			h.CallRejected <- &Ended{From: msg.From, Reason: msg.Reason}

		case protocol.TypeCallEnded:
			h.CallEnded <- &Ended{From: msg.From, Reason: msg.Reason}

		case protocol.TypeCandidate:
			h.Candidate <- &Candidate{From: msg.From, Payload: msg.Payload}

		case protocol.TypeError:
			if msg.Error == nil {
				msg.Error = &protocol.ErrorBody{Code: protocol.CodeInternal, Message: "unknown error from server"}
			}
			select {
			case h.Error <- msg.Error:
			default:
				slog.Warn("Dropping relay error", "code", msg.Error.Code, "message", msg.Error.Message)
			}

		default:
			slog.Debug("Ignoring message", "type", msg.Type)
		}
	}
}

// Reset discards call events that are still unread, such as the relay's
// reply to a hangup that raced the peer's own. Call it before the next call.
func (h *Handler) Reset() {
	drain(h.CallConnected)
	drain(h.CallRejected)
	drain(h.CallEnded)
	drain(h.Candidate)
	drain(h.Error)
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// latest replaces any unread value in ch with v.
func latest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
