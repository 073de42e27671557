package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Websocket subprotocols understood by the relay. A client that asks for
// none of them gets JSON.
const (
	SubprotocolJSON    = "videochat.json"
	SubprotocolMsgpack = "videochat.msgpack"
)

// Codec turns messages into websocket frames and back.
type Codec interface {
	// Name is the websocket subprotocol that selects this codec.
	Name() string
	// FrameType is websocket.TextMessage or websocket.BinaryMessage.
	FrameType() int
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte, msg *Message) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return SubprotocolJSON }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

// Marshal leaves <, > and & alone so SDP text reaches browsers as it was
// sent. Insignificant whitespace inside payloads is compacted.
func (jsonCodec) Marshal(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (jsonCodec) Unmarshal(data []byte, msg *Message) error {
	return json.Unmarshal(data, msg)
}

// msgpackCodec sends the same envelope as MessagePack binary frames.
// Payload travels as a bin field holding the payload's JSON bytes, so
// JSON and msgpack clients can call each other.
type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return SubprotocolMsgpack }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Marshal(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (msgpackCodec) Unmarshal(data []byte, msg *Message) error {
	return msgpack.Unmarshal(data, msg)
}

// JSON returns the default text codec.
func JSON() Codec { return jsonCodec{} }

// Msgpack returns the binary codec.
func Msgpack() Codec { return msgpackCodec{} }

// Subprotocols lists every subprotocol in server preference order.
func Subprotocols() []string {
	return []string{SubprotocolMsgpack, SubprotocolJSON}
}

// CodecFor picks the codec for a negotiated subprotocol.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgpack {
		return Msgpack()
	}
	return JSON()
}

// CodecByName maps the user-facing names "json" and "msgpack" (or the full
// subprotocol names) to a codec. ok is false for anything else.
func CodecByName(name string) (Codec, bool) {
	switch name {
	case "", "json", SubprotocolJSON:
		return JSON(), true
	case "msgpack", SubprotocolMsgpack:
		return Msgpack(), true
	}
	return nil, false
}
