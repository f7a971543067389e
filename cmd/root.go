package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/config"
	"github.com/tanq16/reload-entangle/internal/orchestration"
)

var rootCmd = &cobra.Command{
	Use:   "reload-entangle",
	Short: "Coordinates hot class reloading between a build, an application and observers.",
}

var (
	v          = config.NewViper()
	cfg        *config.Config
	configFile string
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute root command")
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a TOML config file")
	flags.Bool("debug", false, "Enable debug logging")
	flags.Int("orchestration-port", 0, "Port of an existing hub (overrides "+config.PortEnv+"); 0 starts a hub")
	flags.String("orchestration-host", "127.0.0.1", "Host of the hub")
	v.BindPFlag("log.debug", flags.Lookup("debug"))
	v.BindPFlag("orchestration.port", flags.Lookup("orchestration-port"))
	v.BindPFlag("orchestration.host", flags.Lookup("orchestration-host"))

	rootCmd.AddCommand(hubCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(observeCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(logCmd)
}

func initConfig() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	var err error
	cfg, err = config.Load(v, configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Log.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Debug().Msg("Logger initialized")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func startOrchestration(ctx context.Context, role common.ClientRole) orchestration.Handle {
	handle, err := orchestration.Start(ctx, orchestration.Options{
		Host: cfg.Orchestration.Host,
		Port: cfg.Orchestration.Port,
		Role: role,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start orchestration")
	}
	if orchestration.IsHub(handle) {
		log.Info().Int("port", handle.Port()).Msgf("Other processes can join with %s=%d", config.PortEnv, handle.Port())
	}
	return handle
}
