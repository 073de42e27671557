package signaling

import (
	"errors"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

// Sentinel errors returned by the relay. They are wrapped with context
// and matched with errors.Is.
var (
	ErrInvalidTarget       = errors.New("invalid target")
	ErrAlreadyInSession    = errors.New("already in session")
	ErrNoSuchSession       = errors.New("no such session")
	ErrTransportGone       = errors.New("transport gone")
	ErrMalformedMessage    = protocol.ErrMalformed
	ErrRateLimited         = errors.New("rate limited")
	ErrCandidateBufferFull = errors.New("candidate buffer full")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidTarget, protocol.CodeInvalidTarget},
	{ErrAlreadyInSession, protocol.CodeAlreadyInSession},
	{ErrNoSuchSession, protocol.CodeNoSuchSession},
	{ErrMalformedMessage, protocol.CodeMalformed},
	{ErrRateLimited, protocol.CodeRateLimited},
	{ErrCandidateBufferFull, protocol.CodeCandidateBufferFull},
}

// ErrorCode returns the wire code for err.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return protocol.CodeInternal
}

// errorMessage builds the error frame sent back to the requester.
// ref is the type of the message that failed.
func errorMessage(err error, ref string) *protocol.Message {
	return &protocol.Message{
		Type: protocol.TypeError,
		Error: &protocol.ErrorBody{
			Code:    ErrorCode(err),
			Message: err.Error(),
			Ref:     ref,
		},
	}
}
