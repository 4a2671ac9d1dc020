package main

import (
	"context"
	"os"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/service/ui"
	"github.com/sandevgo/reliefdesk/pkg/log"
	"github.com/spf13/cobra"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "desk",
	Short: "ReliefDesk: a school admin desk bot",
	Long:  `ReliefDesk collects daily admin entries (relief lists, absences, venue changes) over Telegram, answers questions about them and reminds relief teachers before their slots.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

// setupLogger loads the runtime .env first so DESK_LOG_FORMAT and DESK_DEBUG
// from the file apply to the logger.
func setupLogger(ctx context.Context) (context.Context, func()) {
	envErr := initEnv(ctx, config.GetRuntimePath())

	ctx, flush := log.NewContextWithOptions(ctx, log.Options{
		Debug: debug || config.IsDebug(),
		JSON:  os.Getenv("DESK_LOG_FORMAT") == "json",
	})
	if envErr != nil {
		log.FromCtx(ctx).Warn().Err(envErr).Msg("failed to load .env file")
	}
	return ctx, flush
}

func CustomizeHelp(rootCmd *cobra.Command) {
	cobra.AddTemplateFunc("StyleTitle", func(s string) string { return ui.TitleStyle.Render(s) })
	cobra.AddTemplateFunc("StyleUsage", func(s string) string { return ui.UsageStyle.Render(s) })
	cobra.AddTemplateFunc("StyleFlag", func(s string) string { return ui.FlagStyle.Render(s) })
	cobra.AddTemplateFunc("StyleDesc", func(s string) string { return ui.DescStyle.Render(s) })

	template := `
{{StyleTitle "USAGE"}}
  {{StyleUsage .UseLine}}
{{if gt (len .Commands) 0}}{{StyleTitle "AVAILABLE COMMANDS"}}
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding}} {{StyleDesc .Short}}{{end}}
{{end}}{{end}}
{{if .HasAvailableLocalFlags}}{{StyleTitle "FLAGS"}}
{{StyleFlag (.LocalFlags.FlagUsages | trimTrailingWhitespaces)}}
{{end}}
`
	rootCmd.SetHelpTemplate(template)
}
