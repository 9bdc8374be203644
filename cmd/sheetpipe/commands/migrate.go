package commands

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply outcome log schema migrations for the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, closeStore, err := openStore(cmd.Context(), cfg, log, true)
		if err != nil {
			return err
		}
		closeStore()
		return nil
	},
}
