package main

import (
	"fmt"

	"github.com/sandevgo/reliefdesk/internal/service/scheduler"
	"github.com/sandevgo/reliefdesk/internal/service/syncer"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:          "purge",
	Short:        "Delete entries and artifacts past retention now",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		app, err := NewApp(ctx)
		if err != nil {
			return err
		}
		defer app.DB.Close()

		res, err := app.Scheduler(nil).RunPurge(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), scheduler.FormatPurge(res))
		return nil
	},
}

var syncReset bool

var syncCmd = &cobra.Command{
	Use:          "sync [source]",
	Short:        "Pull new items from external sources once",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		app, err := NewApp(ctx)
		if err != nil {
			return err
		}
		defer app.DB.Close()

		if app.Syncer == nil {
			return fmt.Errorf("no sources configured in %s", app.Config.GetSourcesPath())
		}

		var results []syncer.MergeResult
		if len(args) == 1 {
			if syncReset {
				if err := app.Syncer.Reset(ctx, args[0]); err != nil {
					return err
				}
			}
			res, syncErr := app.Syncer.Sync(ctx, args[0])
			results, err = []syncer.MergeResult{res}, syncErr
		} else {
			if syncReset {
				return fmt.Errorf("--reset needs a source name")
			}
			results, err = app.Syncer.SyncAll(ctx)
		}

		for _, res := range results {
			fmt.Fprintln(cmd.OutOrStdout(), res.String())
		}
		return err
	},
}

var rotateCode bool

var codeCmd = &cobra.Command{
	Use:          "code",
	Short:        "Print today's upload code",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		app, err := NewApp(ctx)
		if err != nil {
			return err
		}
		defer app.DB.Close()

		current := app.Codes.Current
		if rotateCode {
			current = app.Codes.Rotate
		}
		code, err := current(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", code.Day, code.Code)
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncReset, "reset", false, "forget the source cursor and re-list everything")
	codeCmd.Flags().BoolVar(&rotateCode, "rotate", false, "replace today's code")
	rootCmd.AddCommand(purgeCmd, syncCmd, codeCmd)
}
