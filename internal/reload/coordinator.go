package reload

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/orchestration"
)

var ErrShutdownRequested = errors.New("shutdown requested")

const DefaultExtension = ".class"

type Config struct {
	Extension string
	RetryOnConnect bool
}

type ChangeSet map[string]common.ChangeType

type (
	BeforeReloadHook func()
	AfterReloadHook  func(requestID uuid.UUID, err error)
)

// Coordinator serializes redefinition attempts; failed changes stay pending.
type Coordinator struct {
	cfg       Config
	redefiner Redefiner

	// guards the whole reload section
	mu      sync.Mutex
	pending ChangeSet
	lastErr error

	hooksMu sync.RWMutex
	before  []BeforeReloadHook
	after   []AfterReloadHook
}

func New(cfg Config, redefiner Redefiner) *Coordinator {
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	return &Coordinator{
		cfg:       cfg,
		redefiner: redefiner,
		pending:   make(ChangeSet),
	}
}

// Hooks must not call back into the Coordinator.
func (c *Coordinator) InvokeBeforeReload(hook BeforeReloadHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.before = append(c.before, hook)
}

func (c *Coordinator) InvokeAfterReload(hook AfterReloadHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.after = append(c.after, hook)
}

func (c *Coordinator) Pending() ChangeSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.pending)
}

func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Coordinator) Reload(ctx context.Context, req *common.ReloadClassesRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	maps.Copy(c.pending, req.ChangedFiles)
	c.runBeforeHooks()
	err := c.redefine(ctx)
	if err == nil {
		clear(c.pending)
		c.lastErr = nil
	} else {
		c.lastErr = err
		log.Error().Err(err).Int("pending", len(c.pending)).Str("request_id", req.ID().String()).Msg("Reload failed, keeping pending changes")
	}
	c.runAfterHooks(req.ID(), err)
	return err
}

func (c *Coordinator) Retry(ctx context.Context, h orchestration.Handle) error {
	return h.Send(ctx, common.NewReloadClassesRequest(nil))
}

// Run answers every reload request with a result until a shutdown is requested.
func (c *Coordinator) Run(ctx context.Context, h orchestration.Handle) error {
	sub := h.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return orchestration.ErrFeedClosed
			}
			switch m := msg.(type) {
			case *common.ReloadClassesRequest:
				err := c.Reload(ctx, m)
				if sendErr := h.Send(ctx, common.NewAgentReloadClassesResult(m.ID(), err)); sendErr != nil {
					log.Error().Err(sendErr).Str("request_id", m.ID().String()).Msg("Failed to send reload result")
				}
			case *common.ClientConnected:
				if c.cfg.RetryOnConnect && len(c.Pending()) > 0 {
					log.Info().Str("client_id", m.ClientID).Msg("Client joined with pending changes, retrying")
					if err := c.Retry(ctx, h); err != nil {
						log.Error().Err(err).Msg("Failed to request retry")
					}
				}
			case *common.ShutdownRequest:
				log.Info().Str("message_id", m.ID().String()).Msg("Shutdown requested")
				return ErrShutdownRequested
			case *common.AgentReloadClassesResult, *common.UIReloadClassesResult, *common.LogMessage,
				*common.ClientDisconnected, *common.UIRendered:
			}
		}
	}
}

func (c *Coordinator) runBeforeHooks() {
	c.hooksMu.RLock()
	hooks := slices.Clone(c.before)
	c.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook()
	}
}

func (c *Coordinator) runAfterHooks(requestID uuid.UUID, err error) {
	c.hooksMu.RLock()
	hooks := slices.Clone(c.after)
	c.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(requestID, err)
	}
}

func (c *Coordinator) redefine(ctx context.Context) error {
	paths := slices.Sorted(maps.Keys(c.pending))
	definitions := make([]Definition, 0, len(paths))
	for _, path := range paths {
		change := c.pending[path]
		// Skipped entries stay pending; only a successful attempt clears them.
		if change == common.ChangeRemoved {
			continue
		}
		if filepath.Ext(path) != c.cfg.Extension {
			log.Warn().Str("change", string(change)).Str("path", path).Msgf("Not a %s file, skipping", c.cfg.Extension)
			continue
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			log.Warn().Str("change", string(change)).Str("path", path).Msg("Not a regular file, skipping")
			continue
		}
		code, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("Loading")
		definitions = append(definitions, Definition{Path: path, Code: code})
	}
	if err := c.redefiner.Redefine(ctx, definitions); err != nil {
		return fmt.Errorf("redefinition of %d artifacts failed: %w", len(definitions), err)
	}
	return nil
}
