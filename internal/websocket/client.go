package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/dukerupert/cartwise/internal/feed"
)

const pingInterval = 30 * time.Second

// conn is the part of *ws.Conn a Client uses.
type conn interface {
	Read(ctx context.Context) (ws.MessageType, []byte, error)
	Ping(ctx context.Context) error
}

// Client streams one feed subscription over a WebSocket connection.
type Client struct {
	conn  *ws.Conn
	sub   *feed.Subscription
	write func(ctx context.Context, snap feed.Snapshot) error
}

// NewClient creates a Client that writes sub's snapshots to c as JSON.
func NewClient(c *ws.Conn, sub *feed.Subscription) *Client {
	return &Client{
		conn: c,
		sub:  sub,
		write: func(ctx context.Context, snap feed.Snapshot) error {
			return wsjson.Write(ctx, c, snap)
		},
	}
}

// Run sends initial, then every published snapshot, until the connection or
// ctx ends. It closes the subscription on return.
func (c *Client) Run(ctx context.Context, initial feed.Snapshot) {
	defer c.sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		readPump(ctx, c.conn)
		cancel()
	}()
	c.writePump(ctx, initial, c.conn)
}

// readPump reads and discards all incoming messages. It returns on error
// (connection close), which triggers cleanup.
func readPump(ctx context.Context, c conn) {
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return
		}
	}
}

// writePump writes snapshots as they arrive and pings periodically to detect
// stale connections.
func (c *Client) writePump(ctx context.Context, initial feed.Snapshot, pinger conn) {
	if err := c.write(ctx, initial); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-c.sub.C:
			if !ok {
				return
			}
			if err := c.write(ctx, snap); err != nil {
				return
			}
		case <-ticker.C:
			if err := pinger.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
