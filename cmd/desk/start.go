package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
	"github.com/sandevgo/reliefdesk/pkg/srv"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bot and background jobs",
	Long:  `Starts the Telegram bot, the session sweeper, the daily purge, reminder delivery and external source sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Str("version", core.AppVersion).Msg("starting reliefdesk")

		services := NewServices(ctx)

		srv.StartServices(ctx, services)

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("reliefdesk has been shut down gracefully")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
