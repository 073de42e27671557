package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformed is returned for frames that decode but do not satisfy the
// schema of their message type.
var ErrMalformed = errors.New("malformed message")

var validate = validator.New()

type callRequest struct {
	Target  string `validate:"required,max=128"`
	Payload []byte `validate:"required,min=1"`
}

type payloadRequest struct {
	Payload []byte `validate:"required,min=1"`
}

// Validator checks client messages against the schema of their type.
// It looks at payload syntax only to keep the JSON and msgpack codecs
// interchangeable; the payload's contents stay opaque.
type Validator struct {
	maxNameLength int
}

// NewValidator returns a Validator that rejects display names longer than
// maxNameLength runes.
func NewValidator(maxNameLength int) *Validator {
	return &Validator{maxNameLength: maxNameLength}
}

// Validate returns an error wrapping ErrMalformed when msg is not a valid
// client to server message.
func (v *Validator) Validate(msg *Message) error {
	if msg == nil || msg.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var err error
	switch msg.Type {
	case TypeRename:
		if v.maxNameLength > 0 {
			err = validate.Var(strings.TrimSpace(msg.Name), fmt.Sprintf("max=%d", v.maxNameLength))
		}
	case TypeCallRequest:
		err = validate.Struct(callRequest{Target: msg.Target, Payload: msg.Payload})
		if err == nil {
			err = checkPayload(msg.Payload)
		}
	case TypeCallAccept, TypeCandidate:
		err = validate.Struct(payloadRequest{Payload: msg.Payload})
		if err == nil {
			err = checkPayload(msg.Payload)
		}
	case TypeCallReject, TypeCallEnd:
	default:
		return fmt.Errorf("%w: unsupported message type %q", ErrMalformed, msg.Type)
	}

	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, msg.Type, err)
	}
	return nil
}

func checkPayload(p json.RawMessage) error {
	if !json.Valid(p) {
		return errors.New("payload is not a JSON value")
	}
	if bytes.Equal(bytes.TrimSpace(p), []byte("null")) {
		return errors.New("payload is null")
	}
	return nil
}
