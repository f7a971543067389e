package cmd

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/reload"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the application-side reload agent",
	Run:   runAgent,
}

func init() {
	agentCmd.Flags().String("command", "", "External command that redefines the given artifacts (paths are appended)")
	agentCmd.Flags().Bool("retry-on-connect", false, "Retry pending changes whenever a client joins")
	v.BindPFlag("reload.command", agentCmd.Flags().Lookup("command"))
	v.BindPFlag("reload.retry_on_connect", agentCmd.Flags().Lookup("retry-on-connect"))
}

func runAgent(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	var redefiner reload.Redefiner = reload.LogRedefiner{}
	if cfg.Reload.Command != "" {
		r, err := reload.NewCommandRedefiner(cfg.Reload.Command)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize redefiner")
		}
		redefiner = r
	}
	log.Info().Str("command", cfg.Reload.Command).Str("extension", cfg.Reload.Extension).Msg("Starting reload agent")

	handle := startOrchestration(ctx, common.RoleApplication)
	defer handle.Close()

	coordinator := reload.New(reload.Config{
		Extension:      cfg.Reload.Extension,
		RetryOnConnect: cfg.Reload.RetryOnConnect,
	}, redefiner)

	// Stand-in for the UI collaborator: report a render after every attempt.
	iteration := 0
	coordinator.InvokeAfterReload(func(requestID uuid.UUID, err error) {
		iteration++
		if err := handle.Send(context.WithoutCancel(ctx), common.NewUIRendered(&requestID, iteration)); err != nil {
			log.Error().Err(err).Msg("Failed to report render")
		}
	})

	err := coordinator.Run(ctx, handle)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		log.Info().Msg("Agent stopped")
	case errors.Is(err, reload.ErrShutdownRequested):
		log.Info().Msg("Agent shut down on request")
	default:
		log.Error().Err(err).Msg("Agent exited with an error")
	}
}
