package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/orchestration"
)

type Config struct {
	Dir     string
	Pattern string
	Ignore  []string
	// Debounce groups bursts of file events into one request.
	Debounce time.Duration
	// ResultTimeout bounds the wait for the agent's result; zero skips waiting.
	ResultTimeout time.Duration
}

// Watcher turns changes of compiled artifacts under Dir into reload requests.
type Watcher struct {
	cfg      Config
	handle   orchestration.Handle
	watcher  *fsnotify.Watcher
	ignorer  *common.PathIgnorer
	manifest map[string]string
}

func New(cfg Config, handle orchestration.Handle) (*Watcher, error) {
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch directory: %w", err)
	}
	cfg.Dir = dir
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		cfg:     cfg,
		handle:  handle,
		watcher: watcher,
		ignorer: common.NewPathIgnorer(cfg.Ignore),
	}
	w.manifest, err = common.BuildFileManifest(cfg.Dir, cfg.Pattern, w.ignorer)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to build initial manifest: %w", err)
	}
	return w, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	w.addTree(w.cfg.Dir)
	log.Info().Str("dir", w.cfg.Dir).Int("artifacts", len(w.manifest)).Msg("Watching for compiled changes")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.handleFsEvent(event) {
				timer.Reset(w.cfg.Debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		case <-timer.C:
			if _, err := w.Flush(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to publish changes")
			}
		}
	}
}

// Flush diffs the directory against the last published state and sends one
// request for the difference. It returns nil when nothing changed.
func (w *Watcher) Flush(ctx context.Context) (*common.ReloadClassesRequest, error) {
	current, err := common.BuildFileManifest(w.cfg.Dir, w.cfg.Pattern, w.ignorer)
	if err != nil {
		return nil, fmt.Errorf("could not build file manifest: %w", err)
	}
	changes := common.DiffManifests(w.manifest, current)
	w.manifest = current
	if len(changes) == 0 {
		return nil, nil
	}
	for path, change := range changes {
		log.Info().Str("change", string(change)).Str("path", path).Msg("Detected change")
	}
	req := common.NewReloadClassesRequest(changes)
	if w.cfg.ResultTimeout <= 0 {
		if err := w.handle.Send(ctx, req); err != nil {
			return nil, err
		}
		log.Info().Str("request_id", req.ID().String()).Int("count", len(changes)).Msg("Sent reload request")
		return req, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.ResultTimeout)
	defer cancel()
	log.Info().Str("request_id", req.ID().String()).Int("count", len(changes)).Msg("Sending reload request, awaiting result")
	result, err := orchestration.Request(waitCtx, w.handle, req)
	if err != nil {
		return req, fmt.Errorf("no result for %s: %w", req.ID(), err)
	}
	if result.IsSuccess {
		log.Info().Str("request_id", req.ID().String()).Msg("Reload succeeded")
	} else {
		log.Warn().Str("request_id", req.ID().String()).Str("error", result.ErrorMessage).Msg("Reload failed")
	}
	return req, nil
}

// handleFsEvent reports whether the event may have changed an artifact.
func (w *Watcher) handleFsEvent(event fsnotify.Event) bool {
	relPath, err := filepath.Rel(w.cfg.Dir, event.Name)
	if err != nil || w.ignorer.IsIgnored(relPath) {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addTree(event.Name)
		}
	}
	return event.Op != fsnotify.Chmod
}

func (w *Watcher) addTree(root string) {
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || !info.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(w.cfg.Dir, path)
		if relPath != "." && w.ignorer.IsIgnored(relPath) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to add path to watcher")
		}
		return nil
	})
}
