package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

// HubOptions tunes connection handling.
type HubOptions struct {
	// SendBufferSize bounds each connection's outbound queue. A connection
	// whose queue is full is dropped.
	SendBufferSize int

	// MaxMessageBytes is the largest frame accepted from a client.
	MaxMessageBytes int64

	// MessagesPerSecond and MessageBurst rate limit each connection.
	// Zero disables limiting.
	MessagesPerSecond float64
	MessageBurst      int

	// RingTimeout aborts calls that stay unanswered this long. Zero keeps
	// them ringing until someone acts.
	RingTimeout time.Duration
}

func (o *HubOptions) setDefaults() {
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 256
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = maxMessageSize
	}
}

// inbound is a decoded client frame, or the reason it could not be used.
type inbound struct {
	client *Client
	msg    *protocol.Message
	err    error
}

// Hub is the central brain of the signaling server.
// A single goroutine (Run) owns the relay state and every connection's
// send queue; everything else talks to it through channels.
type Hub struct {
	relay   *Relay
	opts    HubOptions
	metrics *Metrics
	log     *slog.Logger

	// clients maps identities to live connections.
	clients map[string]*Client

	// ringing holds the timer of every call waiting for an answer.
	ringing map[string]*time.Timer

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	expired    chan string

	// done is closed when Run returns so pumps and timers never block.
	done chan struct{}
}

// NewHub creates a Hub. A nil metrics gets a fresh private registry.
func NewHub(relayOpts Options, opts HubOptions, metrics *Metrics) *Hub {
	opts.setDefaults()
	if metrics == nil {
		metrics = NewMetrics()
	}
	log := relayOpts.Logger
	if log == nil {
		log = slog.Default()
		relayOpts.Logger = log
	}

	observe := relayOpts.OnTransition
	relayOpts.OnTransition = func(s *Session, from, to State) {
		metrics.observeTransition(s, from, to)
		if observe != nil {
			observe(s, from, to)
		}
	}

	return &Hub{
		relay:      NewRelay(relayOpts),
		opts:       opts,
		metrics:    metrics,
		log:        log,
		clients:    make(map[string]*Client),
		ringing:    make(map[string]*time.Timer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		expired:    make(chan string),
		done:       make(chan struct{}),
	}
}

// Metrics returns the hub's collectors.
func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// Attach hands an upgraded websocket to the hub and starts its pumps.
// It returns false, closing conn, when the hub has stopped.
func (h *Hub) Attach(conn *websocket.Conn, codec protocol.Codec) bool {
	client := newClient(h, conn, codec)

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return false
	}

	go client.WritePump()
	go client.ReadPump()
	return true
}

// Run starts the hub's main processing loop. It returns when ctx is
// cancelled, after closing every connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			id, out := h.relay.Connect()
			client.identity = id
			h.clients[id] = client
			h.metrics.participants.Set(float64(h.relay.Participants()))
			h.log.Info("Client registered", "identity", id, "remote", client.conn.RemoteAddr().String(), "codec", client.codec.Name())
			h.deliver(out)

		case client := <-h.unregister:
			if h.clients[client.identity] != client {
				continue
			}
			h.log.Info("Client unregistered", "identity", client.identity)
			h.deliver(h.drop(client))

		case in := <-h.inbound:
			h.handle(in)

		case sessionID := <-h.expired:
			delete(h.ringing, sessionID)
			h.deliver(h.relay.RingTimeout(sessionID))
		}
	}
}

func (h *Hub) handle(in inbound) {
	id := in.client.identity
	if h.clients[id] != in.client {
		return
	}

	if in.err != nil {
		h.metrics.observeReceived("invalid")
		ref := ""
		if in.msg != nil {
			ref = in.msg.Type
		}
		h.deliver(h.relay.Fail(id, in.err, ref))
		return
	}

	h.metrics.observeReceived(in.msg.Type)
	h.deliver(h.relay.Handle(id, in.msg))

	if in.msg.Type == protocol.TypeCallRequest {
		h.armRing(id)
	}
}

// deliver queues each message on its recipient's connection. Dropping a
// slow consumer can produce more deliveries, which are appended.
func (h *Hub) deliver(out []Delivery) {
	queue := out
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		client, ok := h.clients[d.To]
		if !ok {
			h.metrics.transportGone.Inc()
			h.log.Debug("Dropping message", "type", d.Msg.Type, "error", fmt.Errorf("%w: %s", ErrTransportGone, d.To))
			continue
		}

		select {
		case client.send <- d.Msg:
			h.metrics.observeSent(d)
		default:
			h.metrics.slowConsumers.Inc()
			h.log.Warn("Send queue full, dropping client", "identity", d.To)
			queue = append(queue, h.drop(client)...)
		}
	}
}

// drop forgets client and closes its send queue, which makes the write
// pump close the socket.
func (h *Hub) drop(client *Client) []Delivery {
	delete(h.clients, client.identity)
	close(client.send)
	out := h.relay.Disconnect(client.identity)
	h.metrics.participants.Set(float64(h.relay.Participants()))
	return out
}

// armRing starts the ring timer of the call identity just placed.
func (h *Hub) armRing(identity string) {
	if h.opts.RingTimeout <= 0 {
		return
	}
	s, ok := h.relay.SessionOf(identity)
	if !ok || s.State != StateRequested || s.Initiator != identity {
		return
	}
	if _, armed := h.ringing[s.ID]; armed {
		return
	}

	sessionID := s.ID
	h.ringing[sessionID] = time.AfterFunc(h.opts.RingTimeout, func() {
		select {
		case h.expired <- sessionID:
		case <-h.done:
		}
	})
}

func (h *Hub) shutdown() {
	close(h.done)
	for _, t := range h.ringing {
		t.Stop()
	}
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
	h.metrics.participants.Set(0)
	h.log.Info("Hub stopped")
}
