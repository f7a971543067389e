package server

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

type Config struct {
	Host string
	// Port 0 lets the OS pick a free port.
	Port int
}

type clientConnection struct {
	id   string
	conn *transport.Conn

	mu       sync.Mutex
	clientID string
	role     common.ClientRole
}

// observe records the identity a peer announces about itself.
func (c *clientConnection) observe(msg common.Message) {
	if hello, ok := msg.(*common.ClientConnected); ok {
		c.mu.Lock()
		c.clientID = hello.ClientID
		c.role = hello.ClientRole
		c.mu.Unlock()
	}
}

func (c *clientConnection) identity() (string, common.ClientRole) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clientID == "" {
		return c.id, c.role
	}
	return c.clientID, c.role
}

// Server is the broadcast hub. Every message received on any connection, and
// every message sent locally, is relayed to every connection and every local
// subscriber, the sender included.
type Server struct {
	cfg       Config
	listener  net.Listener
	bus       *bus.Broadcaster
	clients   sync.Map // map[string]*clientConnection
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Launch binds the listening port and starts accepting connections. Bind
// failures are returned to the caller.
func Launch(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s := &Server{
		cfg:      cfg,
		listener: listener,
		bus:      bus.New(),
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	log.Info().Int("port", s.Port()).Msg("Orchestration hub listening")
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Send relays msg to every connection and local subscriber. It only waits
// for local queue admission.
func (s *Server) Send(ctx context.Context, msg common.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.bus.Publish(msg); err != nil {
		return fmt.Errorf("hub send %s: %w", msg.Type(), err)
	}
	return nil
}

func (s *Server) Subscribe() *bus.Subscription {
	return s.bus.Subscribe()
}

// Connections reports the number of live client connections.
func (s *Server) Connections() int {
	count := 0
	s.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Subscribers counts live feeds, local ones and one per connection.
func (s *Server) Subscribers() int {
	return s.bus.Subscribers()
}

// Close stops accepting, drops every connection and ends every feed. In-flight
// sends are not drained.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.listener.Close()
		s.bus.Close()
		s.clients.Range(func(_, value any) bool {
			value.(*clientConnection).conn.Close()
			return true
		})
		s.wg.Wait()
		log.Debug().Int("port", s.Port()).Msg("Orchestration hub closed")
	})
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Msg("Failed to accept connection")
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	id := uuid.NewString()
	client := &clientConnection{
		id:   id,
		conn: transport.NewConn(id, conn),
		role: common.RoleUnknown,
	}
	// Subscribe before reading so the peer sees the echo of its first message.
	sub := s.bus.Subscribe()
	defer sub.Close()
	s.clients.Store(client.id, client)
	log.Info().Str("client_id", client.id).Str("addr", conn.RemoteAddr().String()).Msg("Client connected")

	err := client.conn.Serve(s.ctx, func(msg common.Message) {
		client.observe(msg)
		if err := s.bus.Publish(msg); err != nil {
			log.Debug().Err(err).Str("client_id", client.id).Msg("Dropping message, hub is closing")
		}
	}, sub.C())

	s.clients.Delete(client.id)
	id, role := client.identity()
	log.Info().Err(err).Str("client_id", id).Str("role", string(role)).Msg("Client disconnected")
	if s.ctx.Err() == nil {
		s.bus.Publish(common.NewClientDisconnected(id, role))
	}
}
