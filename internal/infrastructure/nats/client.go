package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type Config struct {
	Name  string
	Host  string
	Port  int
	Token string
	User  string
	Pass  string
}

// NewClient builds the authenticated NATS connection. One client is created
// at startup and reused for the lifetime of the process. Auth requires
// either a token or both user and pass; anything else is a configuration
// error surfaced before the consumer loop starts.
func NewClient(cfg Config) (*nats.Conn, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("nats host/port not configured")
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	switch {
	case cfg.Token != "":
		opts = append(opts, nats.Token(cfg.Token))
	case cfg.User != "" && cfg.Pass != "":
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Pass))
	case cfg.User != "" || cfg.Pass != "":
		return nil, fmt.Errorf("nats user/pass auth requires both user and pass")
	default:
		return nil, fmt.Errorf("nats auth not configured: set token or user+pass")
	}

	nc, err := nats.Connect(fmt.Sprintf("nats://%s:%d", cfg.Host, cfg.Port), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return nc, nil
}

// NewJetStream wraps an established connection with a JetStream context.
func NewJetStream(nc *nats.Conn) (jetstream.JetStream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return js, nil
}
