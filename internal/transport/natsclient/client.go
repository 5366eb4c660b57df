// Package natsclient carries record bytes in and formatted payloads
// back out over NATS JetStream, the transport-layer collaborator the
// codec packages never import directly (spec §1: "transport-layer
// readers ... are external collaborators"). Ported from
// packages/go-core/natsclient/{client,stream}.go.
package natsclient

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	Log  *zap.Logger
}

// NewClient connects to NATS and initialises a JetStream context.
func NewClient(url string, logger *zap.Logger) (*Client, error) {
	nc, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	logger.Info("NATS JetStream connected", zap.String("url", url))
	return &Client{Conn: nc, JS: js, Log: logger}, nil
}

// Close drains the underlying NATS connection, which closes once
// pending publishes and subscription deliveries have flushed, unlike
// Close which drops in-flight messages immediately. Drain returns
// without waiting for that to finish; if Drain fails the connection is
// closed outright.
func (c *Client) Close() {
	if c.Conn != nil {
		if err := c.Conn.Drain(); err != nil {
			c.Conn.Close()
		}
	}
}
