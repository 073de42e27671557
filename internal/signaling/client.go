package signaling

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP offers
)

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	codec protocol.Codec

	// identity is assigned on registration and only read by the hub goroutine.
	identity string

	// send is a buffered channel of outbound messages. Only the hub writes
	// to it or closes it; WritePump drains it.
	send chan *protocol.Message

	limiter *rate.Limiter
}

func newClient(hub *Hub, conn *websocket.Conn, codec protocol.Codec) *Client {
	limit := rate.Inf
	if hub.opts.MessagesPerSecond > 0 {
		limit = rate.Limit(hub.opts.MessagesPerSecond)
	}
	burst := hub.opts.MessageBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		hub:     hub,
		conn:    conn,
		codec:   codec,
		send:    make(chan *protocol.Message, hub.opts.SendBufferSize),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("Read failed", "remote", c.conn.RemoteAddr().String(), "error", err)
			}
			return
		}

		in := c.decode(data)
		select {
		case c.hub.inbound <- in:
		case <-c.hub.done:
			return
		}
	}
}

// decode turns one frame into an inbound event. Bad frames are reported to
// the sender and do not end the connection.
func (c *Client) decode(data []byte) inbound {
	if !c.limiter.Allow() {
		return inbound{client: c, err: fmt.Errorf("%w: slow down", ErrRateLimited)}
	}

	msg := &protocol.Message{}
	if err := c.codec.Unmarshal(data, msg); err != nil {
		return inbound{client: c, err: fmt.Errorf("%w: %v", ErrMalformedMessage, err)}
	}
	return inbound{client: c, msg: msg}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.codec.Marshal(message)
			if err != nil {
				c.hub.log.Error("Encoding failed", "type", message.Type, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
