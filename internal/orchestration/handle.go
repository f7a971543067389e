package orchestration

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/reload-entangle/internal/bus"
	"github.com/tanq16/reload-entangle/internal/client"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/server"
)

// Handle is what every participant talks to. Callers cannot tell whether
// they hold the hub or a connection to it.
type Handle interface {
	Port() int
	Send(ctx context.Context, msg common.Message) error
	// Subscribe observes every message relayed from now on.
	Subscribe() *bus.Subscription
	Close() error
}

var (
	_ Handle = (*server.Server)(nil)
	_ Handle = (*client.Client)(nil)
)

type Options struct {
	Host string
	// Port of an existing hub; zero means there is none.
	Port int
	Role common.ClientRole
}

// Start connects to the hub at opts.Port if one is configured and otherwise
// launches a hub on an OS-assigned port. Connect and bind failures are
// returned; there is no fallback from a failed connect.
func Start(ctx context.Context, opts Options) (Handle, error) {
	c, err := client.Connect(ctx, client.Config{Host: opts.Host, Port: opts.Port, Role: opts.Role})
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}
	log.Info().Msg("No orchestration port configured, starting own hub")
	s, err := server.Launch(ctx, server.Config{Host: opts.Host})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// IsHub reports whether h holds the listening port.
func IsHub(h Handle) bool {
	_, ok := h.(*server.Server)
	return ok
}
