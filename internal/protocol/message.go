package protocol

import "encoding/json"

// Message defines the structure for all C2S (client to server)
// and S2C (server to client) websocket messages.
//
// Payload carries offers, answers and ICE candidates. The relay never looks
// inside it; a JSON peer may receive it with whitespace compacted.
type Message struct {
	Type     string                 `json:"type" msgpack:"type"`
	Identity string                 `json:"identity,omitempty" msgpack:"identity,omitempty"`
	Target   string                 `json:"target,omitempty" msgpack:"target,omitempty"`
	From     string                 `json:"from,omitempty" msgpack:"from,omitempty"`
	FromName string                 `json:"from_name,omitempty" msgpack:"from_name,omitempty"`
	Name     string                 `json:"name,omitempty" msgpack:"name,omitempty"`
	Reason   string                 `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Payload  json.RawMessage        `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Roster   map[string]Participant `json:"roster,omitempty" msgpack:"roster,omitempty"`
	Error    *ErrorBody             `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Participant is one roster entry.
type Participant struct {
	Identity string `json:"identity" msgpack:"identity"`
	Name     string `json:"name" msgpack:"name"`
}

// ErrorBody is sent back to the client whose request failed.
// Ref names the message type that caused it.
type ErrorBody struct {
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Ref     string `json:"ref,omitempty" msgpack:"ref,omitempty"`
}

// Client to server message types.
const (
	TypeRename      = "rename"
	TypeCallRequest = "call-request"
	TypeCallAccept  = "call-accept"
	TypeCallReject  = "call-reject"
	TypeCandidate   = "candidate"
	TypeCallEnd     = "call-end"
)

// Server to client message types. TypeCandidate is used in both directions.
const (
	TypeWelcome       = "welcome"
	TypeRoster        = "roster"
	TypeIncomingCall  = "incoming-call"
	TypeCallConnected = "call-connected"
	TypeCallRejected  = "call-rejected"
	TypeCallEnded     = "call-ended"
	TypeError         = "error"
)

// Reasons attached to call-rejected and call-ended.
const (
	ReasonRejected   = "rejected"
	ReasonHangup     = "hangup"
	ReasonCancelled  = "cancelled"
	ReasonDisconnect = "disconnect"
	ReasonTimeout    = "timeout"
)

// Error codes carried in ErrorBody.Code.
const (
	CodeInvalidTarget       = "invalid-target"
	CodeAlreadyInSession    = "already-in-session"
	CodeNoSuchSession       = "no-such-session"
	CodeMalformed           = "malformed"
	CodeRateLimited         = "rate-limited"
	CodeCandidateBufferFull = "candidate-buffer-full"
	CodeInternal            = "internal"
)
