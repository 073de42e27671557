package protocol

import (
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestCodecFor_SelectsBySubprotocol(t *testing.T) {
	req := require.New(t)

	req.Equal(SubprotocolMsgpack, CodecFor(SubprotocolMsgpack).Name())
	req.Equal(SubprotocolJSON, CodecFor(SubprotocolJSON).Name())
	req.Equal(SubprotocolJSON, CodecFor("").Name())
	req.Equal(websocket.BinaryMessage, Msgpack().FrameType())
	req.Equal(websocket.TextMessage, JSON().FrameType())

	_, ok := CodecByName("xml")
	req.False(ok)
	c, ok := CodecByName("msgpack")
	req.True(ok)
	req.Equal(SubprotocolMsgpack, c.Name())
}

func TestJSONCodec_PayloadIsEmbeddedVerbatim(t *testing.T) {
	req := require.New(t)
	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1"}`)

	data, err := JSON().Marshal(&Message{Type: TypeIncomingCall, From: "u1", FromName: "Anonymous", Payload: payload})
	req.NoError(err)
	req.Contains(string(data), `"payload":{"type":"offer"`)
	req.Contains(string(data), `"from_name":"Anonymous"`)

	var got Message
	req.NoError(JSON().Unmarshal(data, &got))
	req.JSONEq(string(payload), string(got.Payload))
}

func TestMsgpackCodec_InteroperatesWithJSONPayloads(t *testing.T) {
	req := require.New(t)
	payload := json.RawMessage(`{"candidate":"candidate:0 1 UDP 2122252543 10.0.0.2 50000 typ host","sdpMid":"0"}`)

	// Given a candidate sent by a msgpack client
	data, err := Msgpack().Marshal(&Message{Type: TypeCandidate, Payload: payload})
	req.NoError(err)

	var decoded Message
	req.NoError(Msgpack().Unmarshal(data, &decoded))
	req.Equal([]byte(payload), []byte(decoded.Payload))

	// When it is forwarded to a JSON client
	out, err := JSON().Marshal(&Message{Type: TypeCandidate, From: "u1", Payload: decoded.Payload})
	req.NoError(err)

	// Then the JSON client sees the original object
	var forwarded struct {
		Payload map[string]any `json:"payload"`
	}
	req.NoError(json.Unmarshal(out, &forwarded))
	req.Equal("0", forwarded.Payload["sdpMid"])
}

func TestJSONCodec_KeepsMarkupCharactersFromMsgpackPeers(t *testing.T) {
	req := require.New(t)
	payload := json.RawMessage(`{"type":"offer","sdp":"a=<x>&"}`)

	// Given an offer sent by a msgpack client
	data, err := Msgpack().Marshal(&Message{Type: TypeCallRequest, Target: "u2", Payload: payload})
	req.NoError(err)
	var decoded Message
	req.NoError(Msgpack().Unmarshal(data, &decoded))

	// When it is forwarded to a JSON client
	out, err := JSON().Marshal(&Message{Type: TypeIncomingCall, From: "u1", Payload: decoded.Payload})

	// Then the payload bytes arrive unescaped and the frame has no trailing newline
	req.NoError(err)
	req.Contains(string(out), `"payload":{"type":"offer","sdp":"a=<x>&"}`)
	req.NotContains(string(out), `\u003c`)
	req.NotEqual(byte('\n'), out[len(out)-1])
}
