package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/rpattn/sheetpipe/internal/db"
)

// EnvPrefix is prepended to every environment override, e.g. SHEETPIPE_EXCEL_FOLDER_PATH.
const EnvPrefix = "SHEETPIPE"

// Load reads config.yaml from configPath (optional), applies environment overrides
// and validates the result.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	// viper leaves comma separated env values as a single element
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	// Required keys get empty defaults so env overrides are picked up by Unmarshal.
	v.SetDefault("excel.folder_path", "")
	v.SetDefault("excel.mime_xlsx", "")
	v.SetDefault("excel.mime_xls", "")
	v.SetDefault("excel.column_date", "")
	v.SetDefault("excel.column_sales", "")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_upload_bytes", int64(32<<20))

	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.capacity", 64)
	v.SetDefault("queue.job_timeout", "5m")
	v.SetDefault("queue.status_ttl", "24h")
	v.SetDefault("queue.max_finished", 10000)

	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("store.sqlite_path", "sheetpipe.db")

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
