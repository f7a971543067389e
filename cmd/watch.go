package cmd

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch compiled output and request reloads on change",
	Run:   runWatch,
}

func init() {
	watchCmd.Flags().StringP("dir", "d", ".", "Directory holding compiled artifacts")
	watchCmd.Flags().String("pattern", "**/*.class", "Glob of artifacts to track, relative to --dir")
	watchCmd.Flags().String("ignore", "", "Comma-separated list of glob patterns to ignore (e.g., 'META-INF/**,**/*$Companion.class')")
	watchCmd.Flags().Duration("debounce", 300*time.Millisecond, "Quiet period before changes are sent")
	watchCmd.Flags().Duration("result-timeout", 0, "How long to wait for the agent's result (0 does not wait)")
	v.BindPFlag("watch.dir", watchCmd.Flags().Lookup("dir"))
	v.BindPFlag("watch.pattern", watchCmd.Flags().Lookup("pattern"))
	v.BindPFlag("watch.ignore", watchCmd.Flags().Lookup("ignore"))
	v.BindPFlag("watch.debounce", watchCmd.Flags().Lookup("debounce"))
	v.BindPFlag("watch.result_timeout", watchCmd.Flags().Lookup("result-timeout"))
}

func runWatch(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	log.Info().Str("directory", cfg.Watch.Dir).Strs("ignores", cfg.Watch.Ignore).Msg("Starting compiled output watcher")

	handle := startOrchestration(ctx, common.RoleCompiler)
	defer handle.Close()

	w, err := watcher.New(watcher.Config{
		Dir:           cfg.Watch.Dir,
		Pattern:       cfg.Watch.Pattern,
		Ignore:        cfg.Watch.Ignore,
		Debounce:      cfg.Watch.Debounce,
		ResultTimeout: cfg.Watch.ResultTimeout,
	}, handle)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize watcher")
	}
	if err := w.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Watcher exited with an error")
	}
}
