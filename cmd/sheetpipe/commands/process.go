package commands

import (
	"encoding/json"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rpattn/sheetpipe/internal/config"
	"github.com/rpattn/sheetpipe/internal/logs"
	"github.com/rpattn/sheetpipe/internal/pipeline"
	"github.com/rpattn/sheetpipe/internal/repository"
)

var (
	processTaskID      string
	processContentType string
	processDryRun      bool
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Run one spreadsheet through the pipeline synchronously",
	Long: `Run one spreadsheet through validation and transformation without the
queue. The outcome log is written to the configured store, or kept in memory
with --dry-run. The resulting record is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}

		taskID := uuid.New()
		if processTaskID != "" {
			if taskID, err = logs.ParseID(processTaskID); err != nil {
				return err
			}
		}

		contentType := processContentType
		if contentType == "" {
			contentType = contentTypeFor(cfg.Excel, path)
		}

		var store repository.OutcomeLogRepository = repository.NewMemoryOutcomeLogRepository()
		if !processDryRun {
			opened, closeStore, err := openStore(cmd.Context(), cfg, log, true)
			if err != nil {
				return err
			}
			defer closeStore()
			store = opened
		}

		driver := pipeline.NewDriver(cfg.Excel, store, pipeline.WithLogger(log))
		record, runErr := driver.Process(cmd.Context(), pipeline.Submission{
			TaskID:      taskID,
			FileName:    filepath.Base(path),
			ContentType: contentType,
			Data:        data,
		})

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(record); err != nil {
			return errors.Wrap(err, "encode outcome log")
		}
		return runErr
	},
}

// contentTypeFor maps a file extension to the configured MIME types.
func contentTypeFor(excel config.ExcelConfig, path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".xlsx":
		return excel.MimeXLSX
	case ".xls":
		return excel.MimeXLS
	default:
		return mime.TypeByExtension(ext)
	}
}

func init() {
	processCmd.Flags().StringVar(&processTaskID, "task-id", "", "task id to record (default: random)")
	processCmd.Flags().StringVar(&processContentType, "content-type", "", "declared MIME type (default: from extension)")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "keep the outcome log in memory instead of the configured store")
}
