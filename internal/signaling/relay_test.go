package signaling

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

func newTestRelay(ids ...string) *Relay {
	return NewRelay(Options{
		MaxNameLength:         16,
		MaxBufferedCandidates: 8,
		NewIdentity:           sequentialIDs(ids...),
	})
}

// inbox groups deliveries by recipient, keeping per-recipient order.
func inbox(out []Delivery) map[string][]*protocol.Message {
	box := map[string][]*protocol.Message{}
	for _, d := range out {
		box[d.To] = append(box[d.To], d.Msg)
	}
	return box
}

func types(msgs []*protocol.Message) []string {
	return lo.Map(msgs, func(m *protocol.Message, _ int) string { return m.Type })
}

func TestRelay_Connect(t *testing.T) {
	req := require.New(t)
	r := newTestRelay("u1", "u2")

	id, out := r.Connect()
	req.Equal("u1", id)
	req.Equal([]string{protocol.TypeWelcome, protocol.TypeRoster}, types(inbox(out)["u1"]))
	req.Equal("u1", out[0].Msg.Identity)

	// Scenario 1: both see the roster {u1, u2}
	_, out = r.Connect()
	box := inbox(out)
	req.Equal([]string{protocol.TypeWelcome, protocol.TypeRoster}, types(box["u2"]))
	req.Equal([]string{protocol.TypeRoster}, types(box["u1"]))
	req.Len(box["u1"][0].Roster, 2)
	req.Contains(box["u1"][0].Roster, "u2")
}

func TestRelay_CallFlow(t *testing.T) {
	req := require.New(t)
	r := newTestRelay("u1", "u2", "u3")
	r.Connect()
	r.Connect()
	offerX := json.RawMessage(`"offerX"`)
	answerY := json.RawMessage(`"answerY"`)

	// Scenario 1: A calls B
	box := inbox(r.Handle("u1", &protocol.Message{Type: protocol.TypeCallRequest, Target: "u2", Payload: offerX}))
	req.Len(box["u2"], 1)
	req.Equal(&protocol.Message{Type: protocol.TypeIncomingCall, From: "u1", FromName: DefaultName, Payload: offerX}, box["u2"][0])

	// Scenario 3: A trickles a candidate before B accepts
	req.Empty(r.Handle("u1", &protocol.Message{Type: protocol.TypeCandidate, Payload: candidate("c1")}))

	// Scenario 5: C calls B while ringing
	r.Connect()
	box = inbox(r.Handle("u3", &protocol.Message{Type: protocol.TypeCallRequest, Target: "u2", Payload: offerX}))
	req.Len(box["u3"], 1)
	req.Equal(protocol.CodeAlreadyInSession, box["u3"][0].Error.Code)
	req.Equal(protocol.TypeCallRequest, box["u3"][0].Error.Ref)

	// Scenario 2 and 3: B accepts, A gets the answer, B gets c1 right away
	box = inbox(r.Handle("u2", &protocol.Message{Type: protocol.TypeCallAccept, Payload: answerY}))
	req.Equal([]string{protocol.TypeCallConnected}, types(box["u1"]))
	req.Equal(answerY, box["u1"][0].Payload)
	req.Equal([]string{protocol.TypeCandidate}, types(box["u2"]))
	req.Equal(candidate("c1"), box["u2"][0].Payload)

	s, ok := r.SessionOf("u2")
	req.True(ok)
	req.Equal(StateConnected, s.State)

	// Later candidates flow directly
	box = inbox(r.Handle("u1", &protocol.Message{Type: protocol.TypeCandidate, Payload: candidate("c2")}))
	req.Equal(candidate("c2"), box["u2"][0].Payload)

	// Scenario 4: A disconnects while connected
	box = inbox(r.Disconnect("u1"))
	req.Equal([]string{protocol.TypeCallEnded, protocol.TypeRoster}, types(box["u2"]))
	req.Equal(protocol.ReasonDisconnect, box["u2"][0].Reason)
	_, ok = r.SessionOf("u2")
	req.False(ok)

	// In-flight candidates from B are dropped silently
	req.Empty(r.Handle("u2", &protocol.Message{Type: protocol.TypeCandidate, Payload: candidate("late")}))
}

func TestRelay_Rename(t *testing.T) {
	t.Run("should broadcast the new roster", func(t *testing.T) {
		req := require.New(t)
		r := newTestRelay("u1", "u2")
		r.Connect()
		r.Connect()

		box := inbox(r.Handle("u1", &protocol.Message{Type: protocol.TypeRename, Name: " Alice "}))

		req.Len(box, 2)
		req.Equal("Alice", box["u2"][0].Roster["u1"].Name)
		req.Equal("Alice", r.Snapshot()["u1"].Name)
	})

	t.Run("should reject names over the limit", func(t *testing.T) {
		req := require.New(t)
		r := newTestRelay("u1")
		r.Connect()

		out := r.Handle("u1", &protocol.Message{Type: protocol.TypeRename, Name: strings.Repeat("x", 17)})

		req.Len(out, 1)
		req.Equal(protocol.CodeMalformed, out[0].Msg.Error.Code)
		req.Equal(DefaultName, r.Snapshot()["u1"].Name)
	})
}

func TestRelay_Disconnect(t *testing.T) {
	req := require.New(t)
	r := newTestRelay("u1", "u2")
	r.Connect()
	r.Connect()

	out := r.Disconnect("u1")
	req.Equal([]string{"u2"}, lo.Map(out, func(d Delivery, _ int) string { return d.To }))
	req.NotContains(out[0].Msg.Roster, "u1")

	req.Empty(r.Disconnect("u1"))
}

func TestRelay_SingleSessionPerIdentity(t *testing.T) {
	req := require.New(t)
	r := newTestRelay("u1", "u2", "u3", "u4")
	for range 4 {
		r.Connect()
	}
	offerX := json.RawMessage(`{}`)

	r.Handle("u1", &protocol.Message{Type: protocol.TypeCallRequest, Target: "u2", Payload: offerX})
	r.Handle("u3", &protocol.Message{Type: protocol.TypeCallRequest, Target: "u4", Payload: offerX})
	r.Handle("u4", &protocol.Message{Type: protocol.TypeCallRequest, Target: "u1", Payload: offerX})
	r.Handle("u2", &protocol.Message{Type: protocol.TypeCallRequest, Target: "u3", Payload: offerX})

	a, _ := r.SessionOf("u1")
	b, _ := r.SessionOf("u3")
	req.NotSame(a, b)
	req.True(a.Involves("u2"))
	req.True(b.Involves("u4"))
}

func TestRelay_ErrorsGoToTheSenderOnly(t *testing.T) {
	req := require.New(t)
	r := newTestRelay("u1", "u2")
	r.Connect()
	r.Connect()

	cases := []struct {
		msg  *protocol.Message
		code string
	}{
		{&protocol.Message{Type: protocol.TypeCallRequest, Target: "u1", Payload: json.RawMessage(`{}`)}, protocol.CodeInvalidTarget},
		{&protocol.Message{Type: protocol.TypeCallRequest, Target: "nobody", Payload: json.RawMessage(`{}`)}, protocol.CodeInvalidTarget},
		{&protocol.Message{Type: protocol.TypeCallAccept, Payload: json.RawMessage(`{}`)}, protocol.CodeNoSuchSession},
		{&protocol.Message{Type: protocol.TypeCallReject}, protocol.CodeNoSuchSession},
		{&protocol.Message{Type: protocol.TypeCallEnd}, protocol.CodeNoSuchSession},
		{&protocol.Message{Type: "bogus"}, protocol.CodeMalformed},
		{&protocol.Message{Type: protocol.TypeCallRequest, Target: "u2"}, protocol.CodeMalformed},
	}

	for _, tc := range cases {
		out := r.Handle("u1", tc.msg)
		req.Len(out, 1, tc.msg.Type)
		req.Equal("u1", out[0].To)
		req.Equal(protocol.TypeError, out[0].Msg.Type)
		req.Equal(tc.code, out[0].Msg.Error.Code, tc.msg.Type)
	}
}

func TestRelay_Fail(t *testing.T) {
	req := require.New(t)
	r := newTestRelay("u1")

	out := r.Fail("u1", ErrRateLimited, "")

	req.Equal(protocol.CodeRateLimited, out[0].Msg.Error.Code)
	req.Equal(protocol.CodeInternal, ErrorCode(ErrTransportGone))
}
