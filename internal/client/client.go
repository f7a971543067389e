package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/reload-entangle/internal/bus"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/transport"
)

var ErrClosed = errors.New("connection to hub closed")

const defaultQueueSize = 256

type Config struct {
	Host string
	// Port of the hub. Zero means no hub was configured.
	Port int
	Role common.ClientRole
	// QueueSize bounds the outbound queue; Send blocks only while it is full.
	QueueSize int
}

// Client is a single connection to a hub. Its feed carries everything the
// hub relays and terminates when the connection is lost. It never reconnects.
type Client struct {
	cfg       Config
	id        string
	conn      *transport.Conn
	bus       *bus.Broadcaster
	outgoing  chan common.Message
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Connect dials the hub at cfg.Port. It returns a nil client and a nil error
// when no port is configured, so the caller can become the hub instead.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Port == 0 {
		return nil, nil
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Role == "" {
		cfg.Role = common.RoleUnknown
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	log.Info().Str("addr", addr).Msg("Connecting to orchestration hub...")
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hub at %s: %w", addr, err)
	}
	c := &Client{
		cfg:      cfg,
		id:       uuid.NewString(),
		bus:      bus.New(),
		outgoing: make(chan common.Message, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	c.conn = transport.NewConn(c.id, conn)
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go c.run()
	log.Info().Str("addr", addr).Str("client_id", c.id).Str("role", string(cfg.Role)).Msg("Successfully connected to hub")
	if err := c.Send(ctx, common.NewClientConnected(c.id, cfg.Role)); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) run() {
	defer close(c.done)
	err := c.conn.Serve(c.ctx, func(msg common.Message) {
		c.bus.Publish(msg)
	}, c.outgoing)
	if c.ctx.Err() == nil {
		log.Warn().Err(err).Str("client_id", c.id).Msg("Disconnected from hub")
	}
	c.bus.Close()
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Port() int {
	return c.cfg.Port
}

// Send enqueues msg for the hub. It waits only for queue admission.
func (c *Client) Send(ctx context.Context, msg common.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Subscribe() *bus.Subscription {
	return c.bus.Subscribe()
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
		<-c.done
	})
	return err
}
