package commands

import (
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/rpattn/sheetpipe/internal/logs"
	"github.com/rpattn/sheetpipe/internal/repository"
)

var logsOrder string

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect and delete outcome logs",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outcome logs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := repository.ParseSortOrder(logsOrder)
		if err != nil {
			return err
		}
		return withLogService(cmd, func(svc *logs.Service) error {
			records, err := svc.GetLogs(cmd.Context(), order)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		})
	},
}

var logsGetCmd = &cobra.Command{
	Use:   "get <uuid>",
	Short: "Show the most recent outcome log for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLogService(cmd, func(svc *logs.Service) error {
			record, err := svc.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), record)
		})
	},
}

var logsDeleteCmd = &cobra.Command{
	Use:   "delete <uuid>",
	Short: "Delete every outcome log for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := logs.ParseID(args[0])
		if err != nil {
			return err
		}
		return withLogService(cmd, func(svc *logs.Service) error {
			return svc.DeleteLog(cmd.Context(), id)
		})
	},
}

func withLogService(cmd *cobra.Command, fn func(*logs.Service) error) error {
	store, closeStore, err := openStore(cmd.Context(), cfg, log, false)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(logs.NewService(store, log))
}

func printJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return errors.Wrap(err, "encode output")
	}
	return nil
}

func init() {
	logsListCmd.Flags().StringVar(&logsOrder, "order", "desc", "sort by creation time: asc or desc")

	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsGetCmd)
	logsCmd.AddCommand(logsDeleteCmd)
}
