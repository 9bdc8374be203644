// Package commands holds the sheetpipe CLI.
package commands

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/sheetpipe/internal/config"
	"github.com/rpattn/sheetpipe/internal/logger"
)

var (
	configPath string

	// populated by PersistentPreRunE
	cfg config.Config
	log *zap.SugaredLogger
)

var RootCmd = &cobra.Command{
	Use:   "sheetpipe",
	Short: "Validate, correct and log uploaded sales spreadsheets",
	Long: `sheetpipe accepts spreadsheet uploads, validates their structure and
content, interpolates missing sales values and records one outcome log per
task.

Examples:
  sheetpipe serve                 # Start the HTTP API and task workers
  sheetpipe migrate               # Apply outcome log migrations
  sheetpipe process sales.xlsx    # Run one file through the pipeline
  sheetpipe logs list --order asc # Show recorded outcomes`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return errors.Wrap(err, "load configuration")
		}
		cfg = loaded

		built, err := logger.New(cfg.Log.JSON, cfg.Log.Level)
		if err != nil {
			return errors.Wrap(err, "initialize logger")
		}
		log = built
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory containing config.yaml")

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(migrateCmd)
	RootCmd.AddCommand(processCmd)
	RootCmd.AddCommand(logsCmd)
}
