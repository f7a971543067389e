package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/reload-entangle/internal/client"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/config"
	"github.com/tanq16/reload-entangle/internal/orchestration"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Ask the agent to retry its pending changes and wait for the result",
	Run:   runRetry,
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask the agent to shut down",
	Run: func(cmd *cobra.Command, args []string) {
		sendOne(common.NewShutdownRequest())
	},
}

var logCmd = &cobra.Command{
	Use:   "log [text...]",
	Short: "Broadcast a log line to every participant",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sendOne(common.NewLogMessage(strings.Join(args, " ")))
	},
}

var sendTimeout time.Duration

func init() {
	for _, c := range []*cobra.Command{retryCmd, shutdownCmd, logCmd} {
		c.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "How long to wait for the hub")
	}
}

func connect(ctx context.Context) *client.Client {
	c, err := client.Connect(ctx, client.Config{
		Host: cfg.Orchestration.Host,
		Port: cfg.Orchestration.Port,
		Role: common.RoleTooling,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to hub")
	}
	if c == nil {
		log.Fatal().Msgf("No hub configured, set %s or --orchestration-port", config.PortEnv)
	}
	return c
}

func runRetry(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	c := connect(ctx)
	defer c.Close()
	result, err := orchestration.Request(ctx, c, common.NewReloadClassesRequest(nil))
	if err != nil {
		log.Fatal().Err(err).Msg("No result from agent")
	}
	if !result.IsSuccess {
		log.Fatal().Str("error", result.ErrorMessage).Msg("Retry failed")
	}
	log.Info().Str("request_id", result.RequestID.String()).Msg("Retry succeeded")
}

func sendOne(msg common.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	c := connect(ctx)
	defer c.Close()
	if err := orchestration.SendAndAwaitEcho(ctx, c, msg); err != nil {
		log.Fatal().Err(err).Str("type", string(msg.Type())).Msg("Failed to send")
	}
	log.Info().Str("type", string(msg.Type())).Str("message_id", msg.ID().String()).Msg("Sent")
}
