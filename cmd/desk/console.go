package main

import (
	"errors"
	"os"
	"os/signal"

	"github.com/sandevgo/reliefdesk/internal/transport/cli"
	"github.com/sandevgo/reliefdesk/pkg/log"
	"github.com/spf13/cobra"
)

var consoleIdentity int64

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to the desk from the terminal",
	Long: `Opens an interactive console acting as one registered identity.
Commands work as in Telegram; "/file <path>" submits a file during an upload.
Reminders are not delivered from the console.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		app, err := NewApp(ctx)
		if err != nil {
			return err
		}
		defer app.DB.Close()

		id := consoleIdentity
		if id == 0 {
			if len(app.Config.SuperAdminIDs) == 0 {
				return errors.New("no identity given: pass --as or set DESK_SUPER_ADMIN_IDS")
			}
			id = app.Config.SuperAdminIDs[0]
		}

		rl, err := cli.NewReadLine(app.Config, id, app.Router, app.Conversation)
		if err != nil {
			return err
		}
		defer rl.Shutdown(ctx)

		log.FromCtx(ctx).Debug().Int64("identity", id).Msg("console ready")
		return rl.Start(ctx)
	},
}

func init() {
	consoleCmd.Flags().Int64Var(&consoleIdentity, "as", 0, "identity id to act as (default: first super admin)")
	rootCmd.AddCommand(consoleCmd)
}
