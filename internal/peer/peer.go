package peer

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	pion "github.com/pion/webrtc/v4"

	"github.com/st4rkjatt/videoChatSimple/internal/config"
	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

// Signaler delivers messages to the relay.
type Signaler interface {
	Send(msg *protocol.Message)
}

// Stats summarises the media received so far.
type Stats struct {
	Tracks        int
	BytesReceived uint64
	State         pion.PeerConnectionState
}

// Peer is one side of a call. It receives audio and video, trickles its
// candidates through the relay and holds remote candidates until the
// remote description is known.
type Peer struct {
	pc       *pion.PeerConnection
	signaler Signaler

	mu        sync.Mutex
	remoteSet bool
	pending   []pion.ICECandidateInit

	tracks atomic.Int32
	bytes  atomic.Uint64
	states chan pion.PeerConnectionState
}

// NewPeerConnection builds a pion peer connection with the configured ICE
// servers and relay policy.
func NewPeerConnection(cfg *config.Config) (*pion.PeerConnection, error) {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}
	return pc, nil
}

// New creates a Peer ready to offer or answer a call.
func New(cfg *config.Config, signaler Signaler) (*Peer, error) {
	pc, err := NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	p := &Peer{
		pc:       pc,
		signaler: signaler,
		states:   make(chan pion.PeerConnectionState, 8),
	}

	for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, NewError("add "+kind.String()+" transceiver", err)
		}
	}

	p.setupHandlers()
	return p, nil
}

func (p *Peer) setupHandlers() {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			slog.Error("Failed to encode candidate", "error", err)
			return
		}
		p.signaler.Send(&protocol.Message{Type: protocol.TypeCandidate, Payload: payload})
	})

	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		slog.Debug("Peer connection state changed", "state", state.String())
		select {
		case p.states <- state:
		default:
		}
	})

	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		p.tracks.Add(1)
		slog.Debug("Receiving track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		go p.drain(track)
	})
}

// drain reads a remote track to keep RTCP flowing and counts its bytes.
func (p *Peer) drain(track *pion.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("Track ended", "error", err)
			}
			return
		}
		p.bytes.Add(uint64(n))
	}
}

// Offer creates the local offer.
func (p *Peer) Offer() (json.RawMessage, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, NewError("create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, NewError("set local description", err)
	}
	return p.localDescription()
}

// Answer applies a remote offer and returns the local answer.
func (p *Peer) Answer(offer json.RawMessage) (json.RawMessage, error) {
	if err := p.setRemote(offer, pion.SDPTypeOffer); err != nil {
		return nil, err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, NewError("create answer", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, NewError("set local description", err)
	}
	return p.localDescription()
}

// Accept applies the remote answer to our offer.
func (p *Peer) Accept(answer json.RawMessage) error {
	return p.setRemote(answer, pion.SDPTypeAnswer)
}

// AddCandidate applies a remote candidate, or queues it until the remote
// description is set.
func (p *Peer) AddCandidate(payload json.RawMessage) error {
	var candidate pion.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return NewError("parse ICE candidate", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.remoteSet {
		p.pending = append(p.pending, candidate)
		return nil
	}
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return NewError("add ICE candidate", err)
	}
	return nil
}

// Pending returns how many remote candidates are waiting.
func (p *Peer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// States reports connection state changes.
func (p *Peer) States() <-chan pion.PeerConnectionState {
	return p.states
}

// Stats returns what has been received so far.
func (p *Peer) Stats() Stats {
	return Stats{
		Tracks:        int(p.tracks.Load()),
		BytesReceived: p.bytes.Load(),
		State:         p.pc.ConnectionState(),
	}
}

// Close tears down the peer connection.
func (p *Peer) Close() error {
	return p.pc.Close()
}

func (p *Peer) setRemote(raw json.RawMessage, want pion.SDPType) error {
	var desc pion.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return NewError("parse session description", err)
	}
	if desc.Type != want {
		return WrapError("set remote description", ErrUnexpectedSignal, desc.Type.String())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return NewError("set remote description", err)
	}
	p.remoteSet = true

	for _, c := range p.pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			slog.Warn("Dropping remote candidate", "error", err)
		}
	}
	p.pending = nil
	return nil
}

func (p *Peer) localDescription() (json.RawMessage, error) {
	desc := p.pc.LocalDescription()
	if desc == nil {
		return nil, NewError("local description", ErrConnectionFailed)
	}
	raw, err := json.Marshal(desc)
	if err != nil {
		return nil, NewError("encode session description", err)
	}
	return raw, nil
}
