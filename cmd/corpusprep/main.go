package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/diary-persona-chat/internal/config"
	"github.com/kirillkom/diary-persona-chat/internal/observability/logging"
)

const serviceName = "diary-corpusprep"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "corpusprep",
		Short:         "Prepare the diary chunk corpus",
		Long:          `Split the diary into dated chunks, load chunk files into Postgres and export the stored corpus.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cfg := config.Load()
			slog.SetDefault(logging.NewJSONLoggerTo(cmd.ErrOrStderr(), serviceName, cfg.LogLevel))
		},
	}
	root.AddCommand(newSplitCmd(), newLoadCmd(), newExportCmd())
	return root
}
