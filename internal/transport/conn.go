package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/reload-entangle/internal/common"
	"golang.org/x/sync/errgroup"
)

var errOutboundClosed = errors.New("outbound queue closed")

// Conn is one duplex peer connection. The receive and send directions run
// independently; the first failure on either tears down both.
type Conn struct {
	id        string
	conn      net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	closeOnce sync.Once
	closeErr  error
}

func NewConn(id string, conn net.Conn) *Conn {
	return &Conn{
		id:     id,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Serve hands every decoded inbound message to inbound and writes every
// message from outbound until the connection fails, outbound is closed or ctx
// is cancelled. The connection is always closed when Serve returns.
func (c *Conn) Serve(ctx context.Context, inbound func(common.Message), outbound <-chan common.Message) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.receive(inbound)
	})
	g.Go(func() error {
		return c.send(ctx, outbound)
	})
	go func() {
		<-ctx.Done()
		c.Close()
	}()
	err := g.Wait()
	c.Close()
	return err
}

func (c *Conn) receive(inbound func(common.Message)) error {
	for {
		payload, err := ReadFrame(c.reader)
		if err != nil {
			log.Debug().Err(err).Str("conn_id", c.id).Msg("Receive, goodbye")
			return fmt.Errorf("receive: %w", err)
		}
		msg, err := common.UnmarshalMessage(payload)
		if err != nil {
			log.Debug().Err(err).Str("conn_id", c.id).Msg("Receive, malformed message")
			return fmt.Errorf("receive: %w", err)
		}
		log.Debug().Str("conn_id", c.id).Str("message_id", msg.ID().String()).Str("type", string(msg.Type())).Msg("Received")
		inbound(msg)
	}
}

func (c *Conn) send(ctx context.Context, outbound <-chan common.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-outbound:
			if !ok {
				return errOutboundClosed
			}
			if err := c.write(msg); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("Send, goodbye")
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}

func (c *Conn) write(msg common.Message) error {
	payload, err := common.MarshalMessage(msg)
	if err != nil {
		return err
	}
	if err := WriteFrame(c.writer, payload); err != nil {
		return err
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	log.Debug().Str("conn_id", c.id).Str("message_id", msg.ID().String()).Str("type", string(msg.Type())).Msg("Sent")
	return nil
}
