package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loan-intake/internal/shared/config"
	"loan-intake/internal/shared/telemetry"
)

var (
	logLevel string
	cfg      config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docctl",
	Short: "Classify, extract and store loan documents from the command line",
	Long: `docctl runs the document pipeline outside the HTTP API: batch processing of
local files or stored objects, one-off classification, migrations, spreadsheet
export and submission to the worker queue.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		telemetry.Init(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
