// Package resp implements the subset of the cache backend's wire protocol
// that the admission core needs: array-of-bulk-strings requests and the five
// reply kinds (simple string, error, integer, bulk string, array header).
package resp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	readChunkSize   = 4096
	maxReadAttempts = 64

	defaultTimeout = time.Second
)

type Config struct {
	Addr     string
	Password string
	Timeout  time.Duration
}

// Client holds at most one live connection and is not safe for concurrent
// use; callers serialize access, normally through a cache.Pool.
type Client struct {
	cfg  Config
	conn net.Conn
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{cfg: cfg}
}

// Connect dials the backend and authenticates when a password is configured.
// Execute calls it lazily; exposed for eager health checks.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to connect to cache at %s: %w", c.cfg.Addr, err)
	}
	c.conn = conn

	if c.cfg.Password != "" {
		if _, err := c.roundTrip(ctx, []string{"AUTH", c.cfg.Password}); err != nil {
			c.teardown()
			return fmt.Errorf("cache auth failed: %w", err)
		}
	}

	return nil
}

// Execute sends one command and decodes its reply. Any transport or protocol
// failure tears the connection down; the next call redials and re-auths.
// Error replies come back as *ServerError and leave the connection alive.
func (c *Client) Execute(ctx context.Context, args ...string) (interface{}, error) {
	if len(args) == 0 {
		return nil, errors.New("resp: empty command")
	}

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	reply, err := c.roundTrip(ctx, args)
	if err != nil && !IsServerError(err) {
		c.teardown()
	}
	return reply, err
}

func (c *Client) roundTrip(ctx context.Context, args []string) (interface{}, error) {
	deadline := time.Now().Add(c.cfg.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if _, err := c.conn.Write(encodeCommand(args)); err != nil {
		return nil, fmt.Errorf("failed to write command: %w", err)
	}

	return c.readReply()
}

// readReply accumulates bounded chunks until a complete frame parses. The
// attempt cap guards against a backend that trickles bytes forever.
func (c *Client) readReply() (interface{}, error) {
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)

	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			value, _, perr := parseReply(buf)
			if perr == nil {
				return value, nil
			}
			if IsServerError(perr) {
				return nil, perr
			}
			if !errors.Is(perr, errIncomplete) {
				return nil, perr
			}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read reply: %w", err)
		}
	}

	return nil, fmt.Errorf("%w: no terminator after %d reads", ErrProtocol, maxReadAttempts)
}

func (c *Client) teardown() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close releases the live connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
