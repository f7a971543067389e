package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/observer"
)

var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Log all orchestration traffic, optionally bridging it to websocket panels",
	Run:   runObserve,
}

func init() {
	observeCmd.Flags().String("http", "", "Serve a websocket bridge on this address (e.g., ':8080')")
	v.BindPFlag("observe.http_addr", observeCmd.Flags().Lookup("http"))
}

func runObserve(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	handle := startOrchestration(ctx, common.RoleTooling)
	defer handle.Close()

	if addr := cfg.Observe.HTTPAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: observer.NewBridge(handle).Handler()}
		go func() {
			log.Info().Str("addr", addr).Msg("Websocket bridge listening on /ws")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Websocket bridge failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := observer.Run(ctx, handle); err != nil {
		log.Error().Err(err).Msg("Observer exited with an error")
	}
}
