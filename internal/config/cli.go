package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/samber/lo"

	"github.com/st4rkjatt/videoChatSimple/internal/protocol"
)

// Default configuration values for the CLI
const (
	DefaultServer = "ws://localhost:8000/ws"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
	DefaultCodec  = "json"
)

// Config holds the CLI configuration
type Config struct {
	// ServerURL is the websocket endpoint of the relay
	ServerURL string

	// Name is sent as a rename right after connecting; empty keeps the
	// relay's default
	Name string

	// Codec selects the websocket subprotocol
	Codec protocol.Codec

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay only gathers TURN candidates
	ForceRelay bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server     string
	Name       string
	Codec      string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server := lo.CoalesceOrEmpty(opts.Server, os.Getenv("VIDEOCHAT_SERVER"), DefaultServer)
	serverURL, err := websocketURL(server)
	if err != nil {
		return nil, err
	}

	codecName := lo.CoalesceOrEmpty(opts.Codec, os.Getenv("VIDEOCHAT_CODEC"), DefaultCodec)
	codec, ok := protocol.CodecByName(codecName)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (want json or msgpack)", codecName)
	}

	return &Config{
		ServerURL:  serverURL,
		Name:       lo.CoalesceOrEmpty(opts.Name, os.Getenv("VIDEOCHAT_NAME")),
		Codec:      codec,
		STUNServer: lo.CoalesceOrEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer: lo.CoalesceOrEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:   lo.CoalesceOrEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:   lo.CoalesceOrEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay: opts.ForceRelay,
	}, nil
}

// websocketURL accepts a full ws(s):// URL, an http(s):// URL or a bare
// host[:port], and returns the relay's websocket endpoint.
func websocketURL(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "wss://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server %q: %w", server, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server %q: unsupported scheme %s", server, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server %q: missing host", server)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
