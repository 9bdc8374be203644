package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rpattn/sheetpipe/internal/db"
)

// ErrMissingSetting is returned when a required option is absent.
var ErrMissingSetting = errors.New("missing required setting")

// ExcelConfig describes what uploads are accepted and where corrected files go.
type ExcelConfig struct {
	FolderPath  string `mapstructure:"folder_path"`
	MimeXLSX    string `mapstructure:"mime_xlsx"`
	MimeXLS     string `mapstructure:"mime_xls"`
	ColumnDate  string `mapstructure:"column_date"`
	ColumnSales string `mapstructure:"column_sales"`
}

// AcceptedTypes returns the two configured MIME types.
func (c ExcelConfig) AcceptedTypes() []string {
	return []string{c.MimeXLSX, c.MimeXLS}
}

// Columns returns the expected header in order.
func (c ExcelConfig) Columns() []string {
	return []string{c.ColumnDate, c.ColumnSales}
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
}

// QueueConfig sizes the worker pool. Finished task statuses are forgotten
// after StatusTTL, and at most MaxFinished are kept; zero disables either limit.
type QueueConfig struct {
	Workers     int           `mapstructure:"workers"`
	Capacity    int           `mapstructure:"capacity"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
	StatusTTL   time.Duration `mapstructure:"status_ttl"`
	MaxFinished int           `mapstructure:"max_finished"`
}

// StoreConfig selects the outcome log backend.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

// Config is built once at process start and passed to constructors.
type Config struct {
	Excel    ExcelConfig  `mapstructure:"excel"`
	Server   ServerConfig `mapstructure:"server"`
	Queue    QueueConfig  `mapstructure:"queue"`
	Store    StoreConfig  `mapstructure:"store"`
	Database db.Config    `mapstructure:"database"`
	Log      LogConfig    `mapstructure:"log"`
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Validate checks that every option the pipeline depends on is present.
func (c Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"excel.folder_path", c.Excel.FolderPath},
		{"excel.mime_xlsx", c.Excel.MimeXLSX},
		{"excel.mime_xls", c.Excel.MimeXLS},
		{"excel.column_date", c.Excel.ColumnDate},
		{"excel.column_sales", c.Excel.ColumnSales},
	}
	var missing []string
	for _, item := range required {
		if strings.TrimSpace(item.value) == "" {
			missing = append(missing, item.key)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrMissingSetting, "%s", strings.Join(missing, ", "))
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
	case StoreDriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.Wrap(ErrMissingSetting, "store.sqlite_path")
		}
	default:
		return errors.Newf("unsupported store driver %q", c.Store.Driver)
	}

	if c.Queue.Workers <= 0 {
		return errors.Newf("queue.workers must be positive, got %d", c.Queue.Workers)
	}
	if c.Queue.Capacity <= 0 {
		return errors.Newf("queue.capacity must be positive, got %d", c.Queue.Capacity)
	}
	return nil
}
