package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/samber/lo"

	"github.com/st4rkjatt/videoChatSimple/internal/callclient"
	"github.com/st4rkjatt/videoChatSimple/internal/config"
	"github.com/st4rkjatt/videoChatSimple/internal/peer"
	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
	"github.com/st4rkjatt/videoChatSimple/internal/ui"
)

const signalTimeout = 10 * time.Second

// ConnectionContext is a live relay connection with our identity.
type ConnectionContext struct {
	Client   *callclient.Client
	Handler  *callclient.Handler
	Config   *config.Config
	Identity string
	Roster   map[string]protocol.Participant
}

// NewConnectionContext connects, waits for our identity and applies the
// configured display name.
func NewConnectionContext(ctx context.Context, cfg *config.Config) (*ConnectionContext, error) {
	client := callclient.NewClient(cfg.ServerURL, cfg.Codec)
	if err := client.Connect(ctx); err != nil {
		return nil, peer.NewError("connect to server", err)
	}

	handler := callclient.NewHandler(client)
	go handler.Start()

	cc := &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}

	if err := cc.waitWelcome(ctx); err != nil {
		cc.Close()
		return nil, err
	}
	if cfg.Name != "" {
		client.Send(&protocol.Message{Type: protocol.TypeRename, Name: cfg.Name})
	}
	return cc, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

func (c *ConnectionContext) waitWelcome(ctx context.Context) error {
	timer := time.NewTimer(signalTimeout)
	defer timer.Stop()

	select {
	case id := <-c.Handler.Welcome:
		c.Identity = id
		return nil
	case <-c.Handler.Disconnected:
		return peer.NewError("wait for identity", peer.ErrPeerDisconnected)
	case <-timer.C:
		return peer.NewError("wait for identity", peer.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name is our display name as the relay last reported it.
func (c *ConnectionContext) Name() string {
	if p, ok := c.Roster[c.Identity]; ok {
		return p.Name
	}
	return c.Config.Name
}

// rosterSettled reports whether roster already reflects our rename.
func (c *ConnectionContext) rosterSettled(roster map[string]protocol.Participant) bool {
	self, ok := roster[c.Identity]
	if !ok {
		return false
	}
	want := strings.TrimSpace(c.Config.Name)
	return want == "" || self.Name == want
}

// WaitRoster waits for a roster that includes us under our chosen name.
func (c *ConnectionContext) WaitRoster(ctx context.Context) (map[string]protocol.Participant, error) {
	timer := time.NewTimer(signalTimeout)
	defer timer.Stop()

	for {
		select {
		case roster := <-c.Handler.Roster:
			c.Roster = roster
			if c.rosterSettled(roster) {
				return roster, nil
			}
		case e := <-c.Handler.Error:
			return nil, peer.WrapError("wait for roster", peer.ErrSignalingError, e.Message)
		case <-c.Handler.Disconnected:
			return nil, peer.NewError("wait for roster", peer.ErrPeerDisconnected)
		case <-timer.C:
			if c.Roster != nil {
				return c.Roster, nil
			}
			return nil, peer.NewError("wait for roster", peer.ErrTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// resolveTarget finds who to call by identity or by display name.
func resolveTarget(roster map[string]protocol.Participant, self, arg string) (protocol.Participant, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return protocol.Participant{}, fmt.Errorf("no one to call")
	}
	if arg == self {
		return protocol.Participant{}, fmt.Errorf("you cannot call yourself")
	}
	if p, ok := roster[arg]; ok {
		return p, nil
	}

	matches := lo.Filter(ui.SortedRoster(roster), func(p protocol.Participant, _ int) bool {
		return p.Identity != self && strings.EqualFold(p.Name, arg)
	})
	switch len(matches) {
	case 0:
		return protocol.Participant{}, fmt.Errorf("no one named %q is online", arg)
	case 1:
		return matches[0], nil
	default:
		ids := lo.Map(matches, func(p protocol.Participant, _ int) string { return p.Identity })
		return protocol.Participant{}, fmt.Errorf("%d people are named %q, call one of %s by identity",
			len(matches), arg, strings.Join(ids, ", "))
	}
}

// gate holds outgoing candidates until the relay knows about the call.
type gate struct {
	mu     sync.Mutex
	client interface{ Send(*protocol.Message) }
	open   bool
	queued []*protocol.Message
}

func (g *gate) Send(msg *protocol.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.queued = append(g.queued, msg)
		return
	}
	g.client.Send(msg)
}

// Open flushes held messages in order and passes later ones straight through.
func (g *gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, msg := range g.queued {
		g.client.Send(msg)
	}
	g.queued = nil
	g.open = true
}

// callResult is how a call finished.
type callResult struct {
	Reason      string
	ConnectedAt time.Time
	Stats       peer.Stats
}

// callView is the part of the call screen the call loop drives.
type callView interface {
	Actions() <-chan ui.Action
	SetPhase(phase ui.Phase, detail string)
	UpdateStats(tracks int, bytes uint64)
}

// fatalCodes end the call when the relay reports them in reply to the
// request that sets it up.
var fatalCodes = []string{
	protocol.CodeInvalidTarget,
	protocol.CodeAlreadyInSession,
	protocol.CodeNoSuchSession,
}

// fatal reports whether e is the relay refusing our call-request or
// call-accept. Replies to an earlier call-end belong to a finished call.
func fatal(e *protocol.ErrorBody) bool {
	if e.Ref != protocol.TypeCallRequest && e.Ref != protocol.TypeCallAccept {
		return false
	}
	return lo.Contains(fatalCodes, e.Code)
}

// runCall pumps relay and peer events for one call until it ends.
func runCall(ctx context.Context, cc *ConnectionContext, p *peer.Peer, view callView, remote string) (callResult, error) {
	var res callResult
	hangup := func() {
		cc.Client.Send(&protocol.Message{Type: protocol.TypeCallEnd})
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hangup()
			res.Reason = "hung up"
			return res, nil

		case a := <-view.Actions():
			if a == ui.ActionHangup || a == ui.ActionReject {
				hangup()
				res.Reason = "hung up"
				return res, nil
			}

		case answer := <-cc.Handler.CallConnected:
			if answer.From != remote {
				slog.Debug("Ignoring answer from another call", "from", answer.From)
				continue
			}
			if err := p.Accept(answer.Payload); err != nil {
				hangup()
				return res, err
			}
			view.SetPhase(ui.PhaseConnecting, "")

		case rejected := <-cc.Handler.CallRejected:
			if rejected.From != remote {
				slog.Debug("Ignoring rejection from another call", "from", rejected.From)
				continue
			}
			res.Reason = rejected.Reason
			view.SetPhase(ui.PhaseEnded, rejected.Reason)
			return res, peer.WrapError("call", peer.ErrCallRejected, rejected.Reason)

		case ended := <-cc.Handler.CallEnded:
			if ended.From != remote {
				slog.Debug("Ignoring end of another call", "from", ended.From)
				continue
			}
			res.Reason = ended.Reason
			res.Stats = p.Stats()
			view.SetPhase(ui.PhaseEnded, ended.Reason)
			return res, nil

		case c := <-cc.Handler.Candidate:
			if c.From != remote {
				slog.Debug("Ignoring candidate from another call", "from", c.From)
				continue
			}
			if err := p.AddCandidate(c.Payload); err != nil {
				slog.Warn("Bad remote candidate", "error", err)
			}

		case state := <-p.States():
			switch state {
			case pion.PeerConnectionStateConnected:
				if res.ConnectedAt.IsZero() {
					res.ConnectedAt = time.Now()
				}
				view.SetPhase(ui.PhaseConnected, "")
			case pion.PeerConnectionStateDisconnected:
				view.SetPhase(ui.PhaseConnected, "reconnecting...")
			case pion.PeerConnectionStateFailed:
				hangup()
				res.Reason = "failed"
				res.Stats = p.Stats()
				view.SetPhase(ui.PhaseEnded, "media failed")
				return res, peer.NewError("call", peer.ErrConnectionFailed)
			}

		case e := <-cc.Handler.Error:
			if fatal(e) {
				hangup()
				res.Reason = e.Code
				view.SetPhase(ui.PhaseEnded, e.Code)
				return res, peer.WrapError("call", peer.ErrSignalingError, e.Message)
			}
			slog.Warn("Relay reported an error", "code", e.Code, "message", e.Message)

		case <-cc.Handler.Disconnected:
			res.Reason = "relay gone"
			view.SetPhase(ui.PhaseEnded, "relay gone")
			return res, peer.NewError("call", peer.ErrPeerDisconnected)

		case <-ticker.C:
			s := p.Stats()
			res.Stats = s
			view.UpdateStats(s.Tracks, s.BytesReceived)
		}
	}
}

func printSummary(peerName string, res callResult) {
	var d time.Duration
	if !res.ConnectedAt.IsZero() {
		d = time.Since(res.ConnectedAt)
	}
	fmt.Println()
	ui.RenderCallSummary(ui.CallSummary{
		Peer:     peerName,
		Duration: d,
		Tracks:   res.Stats.Tracks,
		Bytes:    res.Stats.BytesReceived,
		Reason:   res.Reason,
	})
}
