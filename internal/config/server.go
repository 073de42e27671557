package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/st4rkjatt/videoChatSimple/internal/signaling"
)

var validate = validator.New()

// Server holds the relay server configuration, read from the environment.
type Server struct {
	Host      string `envconfig:"HOST" default:"0.0.0.0"`
	Port      int    `envconfig:"PORT" default:"8000" validate:"min=1,max=65535"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`

	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	DefaultName           string        `envconfig:"DEFAULT_NAME" default:"Anonymous" validate:"required"`
	MaxNameLength         int           `envconfig:"MAX_NAME_LENGTH" default:"64" validate:"min=1"`
	RingTimeout           time.Duration `envconfig:"RING_TIMEOUT" default:"0s" validate:"min=0"`
	MaxBufferedCandidates int           `envconfig:"MAX_BUFFERED_CANDIDATES" default:"64" validate:"min=1"`
	SendBufferSize        int           `envconfig:"SEND_BUFFER_SIZE" default:"256" validate:"min=1"`
	MaxMessageBytes       int64         `envconfig:"MAX_MESSAGE_BYTES" default:"65536" validate:"min=1024"`
	MessagesPerSecond     float64       `envconfig:"MESSAGES_PER_SECOND" default:"50" validate:"min=0"`
	MessageBurst          int           `envconfig:"MESSAGE_BURST" default:"100" validate:"min=1"`
	ShutdownTimeout       time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s" validate:"min=0"`
}

// LoadServer reads an optional .env file, then the environment.
func LoadServer(envFiles ...string) (*Server, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading env file: %w", err)
	}

	var cfg Server
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Addr is the listen address.
func (c *Server) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RelayOptions maps the config onto the relay.
func (c *Server) RelayOptions() signaling.Options {
	return signaling.Options{
		DefaultName:           c.DefaultName,
		MaxNameLength:         c.MaxNameLength,
		MaxBufferedCandidates: c.MaxBufferedCandidates,
	}
}

// HubOptions maps the config onto connection handling.
func (c *Server) HubOptions() signaling.HubOptions {
	return signaling.HubOptions{
		SendBufferSize:    c.SendBufferSize,
		MaxMessageBytes:   c.MaxMessageBytes,
		MessagesPerSecond: c.MessagesPerSecond,
		MessageBurst:      c.MessageBurst,
		RingTimeout:       c.RingTimeout,
	}
}
