package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/reload-entangle/internal/observer"
	"github.com/tanq16/reload-entangle/internal/server"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run a standalone orchestration hub",
	Run:   runHub,
}

var hubPort int

func init() {
	hubCmd.Flags().IntVarP(&hubPort, "port", "p", 0, "Port for the hub to listen on (0 picks a free port)")
}

func runHub(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	log.Info().Int("port", hubPort).Msg("Starting orchestration hub")
	s, err := server.Launch(ctx, server.Config{Host: cfg.Orchestration.Host, Port: hubPort})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to launch hub")
	}
	defer s.Close()
	if err := observer.Run(ctx, s); err != nil {
		log.Error().Err(err).Msg("Hub exited with an error")
	}
}
