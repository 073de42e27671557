package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

type testPeer struct {
	t     *testing.T
	conn  *websocket.Conn
	codec protocol.Codec
}

func startHub(t *testing.T, opts HubOptions, ids ...string) (*Hub, string) {
	t.Helper()
	hub := NewHub(Options{NewIdentity: sequentialIDs(ids...), MaxNameLength: 32}, opts, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{Subprotocols: protocol.Subprotocols()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach(conn, protocol.CodecFor(conn.Subprotocol()))
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialPeer(t *testing.T, url, subprotocol string) *testPeer {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{subprotocol}, HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testPeer{t: t, conn: conn, codec: protocol.CodecFor(conn.Subprotocol())}
}

func (p *testPeer) send(msg *protocol.Message) {
	p.t.Helper()
	data, err := p.codec.Marshal(msg)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteMessage(p.codec.FrameType(), data))
}

func (p *testPeer) next() *protocol.Message {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	msg := &protocol.Message{}
	require.NoError(p.t, p.codec.Unmarshal(data, msg))
	return msg
}

// expect skips roster updates until a message of the given type arrives.
func (p *testPeer) expect(msgType string) *protocol.Message {
	p.t.Helper()
	for {
		msg := p.next()
		if msg.Type == msgType {
			return msg
		}
		require.Equal(p.t, protocol.TypeRoster, msg.Type, "unexpected %s while waiting for %s", msg.Type, msgType)
	}
}

func TestHub_CallBetweenJSONAndMsgpackClients(t *testing.T) {
	req := require.New(t)
	_, url := startHub(t, HubOptions{}, "u1", "u2")

	alice := dialPeer(t, url, protocol.SubprotocolJSON)
	req.Equal("u1", alice.expect(protocol.TypeWelcome).Identity)
	bob := dialPeer(t, url, protocol.SubprotocolMsgpack)
	req.Equal("u2", bob.expect(protocol.TypeWelcome).Identity)

	// Alice sees the roster with both of them
	roster := alice.expect(protocol.TypeRoster)
	for len(roster.Roster) < 2 {
		roster = alice.expect(protocol.TypeRoster)
	}

	alice.send(&protocol.Message{Type: protocol.TypeRename, Name: "Alice"})
	alice.send(&protocol.Message{Type: protocol.TypeCallRequest, Target: "u2", Payload: offer})
	alice.send(&protocol.Message{Type: protocol.TypeCandidate, Payload: candidate("a1")})

	incoming := bob.expect(protocol.TypeIncomingCall)
	req.Equal("u1", incoming.From)
	req.Equal("Alice", incoming.FromName)
	req.JSONEq(string(offer), string(incoming.Payload))

	bob.send(&protocol.Message{Type: protocol.TypeCallAccept, Payload: answer})

	connected := alice.expect(protocol.TypeCallConnected)
	req.JSONEq(string(answer), string(connected.Payload))
	early := bob.expect(protocol.TypeCandidate)
	req.JSONEq(string(candidate("a1")), string(early.Payload))

	bob.send(&protocol.Message{Type: protocol.TypeCallEnd})
	ended := alice.expect(protocol.TypeCallEnded)
	req.Equal(protocol.ReasonHangup, ended.Reason)
}

func TestHub_MalformedFramesKeepTheConnection(t *testing.T) {
	req := require.New(t)
	_, url := startHub(t, HubOptions{}, "u1")

	alice := dialPeer(t, url, protocol.SubprotocolJSON)
	alice.expect(protocol.TypeWelcome)

	req.NoError(alice.conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	errMsg := alice.expect(protocol.TypeError)
	req.Equal(protocol.CodeMalformed, errMsg.Error.Code)

	alice.send(&protocol.Message{Type: protocol.TypeCallRequest, Target: "u9", Payload: offer})
	errMsg = alice.expect(protocol.TypeError)
	req.Equal(protocol.CodeInvalidTarget, errMsg.Error.Code)
}

func TestHub_RingTimeout(t *testing.T) {
	req := require.New(t)
	_, url := startHub(t, HubOptions{RingTimeout: 50 * time.Millisecond}, "u1", "u2")

	alice := dialPeer(t, url, protocol.SubprotocolJSON)
	alice.expect(protocol.TypeWelcome)
	bob := dialPeer(t, url, protocol.SubprotocolJSON)
	bob.expect(protocol.TypeWelcome)

	alice.send(&protocol.Message{Type: protocol.TypeCallRequest, Target: "u2", Payload: offer})
	bob.expect(protocol.TypeIncomingCall)

	req.Equal(protocol.ReasonTimeout, alice.expect(protocol.TypeCallEnded).Reason)
	req.Equal(protocol.ReasonTimeout, bob.expect(protocol.TypeCallEnded).Reason)

	// Both are free to call again
	bob.send(&protocol.Message{Type: protocol.TypeCallRequest, Target: "u1", Payload: offer})
	req.Equal("u2", alice.expect(protocol.TypeIncomingCall).From)
}

func TestHub_RateLimit(t *testing.T) {
	req := require.New(t)
	_, url := startHub(t, HubOptions{MessagesPerSecond: 0.001, MessageBurst: 1}, "u1")

	alice := dialPeer(t, url, protocol.SubprotocolJSON)
	alice.expect(protocol.TypeWelcome)
	alice.expect(protocol.TypeRoster)

	alice.send(&protocol.Message{Type: protocol.TypeRename, Name: "Alice"})
	alice.send(&protocol.Message{Type: protocol.TypeRename, Name: "Again"})

	req.Equal("Alice", alice.expect(protocol.TypeRoster).Roster["u1"].Name)
	req.Equal(protocol.CodeRateLimited, alice.expect(protocol.TypeError).Error.Code)
}

func TestHub_DisconnectEndsTheCall(t *testing.T) {
	req := require.New(t)
	_, url := startHub(t, HubOptions{}, "u1", "u2")

	alice := dialPeer(t, url, protocol.SubprotocolJSON)
	alice.expect(protocol.TypeWelcome)
	bob := dialPeer(t, url, protocol.SubprotocolJSON)
	bob.expect(protocol.TypeWelcome)

	alice.send(&protocol.Message{Type: protocol.TypeCallRequest, Target: "u2", Payload: offer})
	bob.expect(protocol.TypeIncomingCall)
	bob.send(&protocol.Message{Type: protocol.TypeCallAccept, Payload: answer})
	alice.expect(protocol.TypeCallConnected)

	req.NoError(alice.conn.Close())

	ended := bob.expect(protocol.TypeCallEnded)
	req.Equal(protocol.ReasonDisconnect, ended.Reason)
	roster := bob.expect(protocol.TypeRoster)
	req.NotContains(roster.Roster, "u1")
}

func TestHub_DropsSlowConsumers(t *testing.T) {
	req := require.New(t)
	hub := NewHub(Options{NewIdentity: sequentialIDs("u1", "u2")}, HubOptions{SendBufferSize: 1}, nil)

	// Given two registered clients whose queues nobody drains
	register := func() *Client {
		id, _ := hub.relay.Connect()
		c := &Client{hub: hub, identity: id, send: make(chan *protocol.Message, 1)}
		hub.clients[id] = c
		return c
	}
	slow := register()
	other := register()

	// When more messages are delivered than u1 can hold
	hub.deliver([]Delivery{
		{To: "u1", Msg: &protocol.Message{Type: protocol.TypeRoster}},
		{To: "u1", Msg: &protocol.Message{Type: protocol.TypeRoster}},
	})

	// Then u1 is dropped, its queue closed, and u2 learns about it
	req.NotContains(hub.clients, "u1")
	<-slow.send
	_, open := <-slow.send
	req.False(open)
	req.Equal(protocol.TypeRoster, (<-other.send).Type)
	req.Equal(float64(1), testutil.ToFloat64(hub.metrics.slowConsumers))
	req.Equal(float64(1), testutil.ToFloat64(hub.metrics.participants))

	// Deliveries to u1 are now dropped
	hub.deliver([]Delivery{{To: "u1", Msg: &protocol.Message{Type: protocol.TypeRoster}}})
	req.Equal(float64(1), testutil.ToFloat64(hub.metrics.transportGone))
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	req := require.New(t)
	hub := NewHub(Options{}, HubOptions{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	cancel()
	<-stopped

	// Attaching after shutdown is refused
	server, client := websocketPair(t)
	defer client.Close()
	req.False(hub.Attach(server, protocol.JSON()))
}

func websocketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err == nil {
			serverSide <- conn
		}
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return <-serverSide, client
}

func TestMetrics_TrackSessions(t *testing.T) {
	req := require.New(t)
	m := NewMetrics()
	s := &Session{ID: "s1"}

	m.observeTransition(s, StateRequested, StateRequested)
	req.Equal(float64(1), testutil.ToFloat64(m.sessions.WithLabelValues("requested")))

	m.observeTransition(s, StateRequested, StateAccepted)
	m.observeTransition(s, StateAccepted, StateConnected)
	req.Equal(float64(0), testutil.ToFloat64(m.sessions.WithLabelValues("requested")))
	req.Equal(float64(1), testutil.ToFloat64(m.sessions.WithLabelValues("connected")))

	m.observeTransition(s, StateConnected, StateEnded)
	req.Equal(float64(0), testutil.ToFloat64(m.sessions.WithLabelValues("connected")))
	req.Equal(float64(1), testutil.ToFloat64(m.transitions.WithLabelValues("ended")))

	m.observeSent(Delivery{To: "u1", Msg: errorMessage(ErrNoSuchSession, protocol.TypeCallAccept)})
	req.Equal(float64(1), testutil.ToFloat64(m.errors.WithLabelValues(protocol.CodeNoSuchSession)))
}
