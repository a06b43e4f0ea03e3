// Package nats wraps the JetStream connection used to queue selection runs
package nats

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by every operation of a client without a connection
var ErrNotConnected = errors.New("not connected to NATS")

// Client is a NATS connection with its JetStream context
type Client struct {
	mu     sync.RWMutex
	nc     *nats.Conn
	js     jetstream.JetStream
	name   string
	closed bool
}

// NewClient connects to url, identifying as name ("stlc" when empty).
// The connection reconnects forever; a run published while disconnected
// fails and is picked up by polling workers instead.
func NewClient(url, name string) (*Client, error) {
	if name == "" {
		name = "stlc"
	}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("client", name).Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Str("client", name).Msg("disconnected from NATS")
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Str("client", name).Msg("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	log.Info().Str("client", name).Str("url", url).Msg("connected to NATS JetStream")
	return &Client{nc: nc, js: js, name: name}, nil
}

// jetStream returns the context, or ErrNotConnected
func (c *Client) jetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil || c.closed {
		return nil, ErrNotConnected
	}
	return c.js, nil
}

// Name is the client name reported to the server
func (c *Client) Name() string {
	return c.name
}

// HealthCheck verifies NATS connectivity
func (c *Client) HealthCheck() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.nc == nil || c.closed || !c.nc.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close closes the connection. Safe to call twice.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.nc != nil {
		c.nc.Close()
		log.Info().Str("client", c.name).Msg("NATS connection closed")
	}
}
