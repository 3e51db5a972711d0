package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/oicur0t/tracex/pkg/models"
)

// EnvPrefix prefixes every environment override, e.g. TRACEX_LOG_LEVEL.
const EnvPrefix = "TRACEX"

// FilterConfig hides records by entity or level
type FilterConfig struct {
	HideThreads     []int32  `mapstructure:"hide_threads"`
	HideThreadNames []string `mapstructure:"hide_thread_names"`
	HideLoggers     []string `mapstructure:"hide_loggers"`
	HideMethods     []string `mapstructure:"hide_methods"`
	// Levels lists the levels to show; empty shows all.
	Levels []string `mapstructure:"levels"`
}

// TLSConfig holds TLS settings for the MongoDB connection
type TLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CACert     string `mapstructure:"ca_cert"`
	ClientCert string `mapstructure:"client_cert"`
	ClientKey  string `mapstructure:"client_key"`
	ServerName string `mapstructure:"server_name"`
	X509       bool   `mapstructure:"x509"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI              string        `mapstructure:"uri"`
	Database         string        `mapstructure:"database"`
	CollectionPrefix string        `mapstructure:"collection_prefix"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxPoolSize      int           `mapstructure:"max_pool_size"`
	TTLDays          int           `mapstructure:"ttl_days"`
	TLS              TLSConfig     `mapstructure:"tls"`
}

// SQLiteConfig holds SQLite sink settings
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ExportConfig holds sink and batching settings
type ExportConfig struct {
	Sink       string        `mapstructure:"sink"`
	BatchSize  int           `mapstructure:"batch_size"`
	MaxWait    time.Duration `mapstructure:"max_wait"`
	QueueSize  int           `mapstructure:"queue_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	MongoDB    MongoDBConfig `mapstructure:"mongodb"`
	SQLite     SQLiteConfig  `mapstructure:"sqlite"`
}

// FollowConfig holds settings of the follow command
type FollowConfig struct {
	// PollInterval of zero watches with inotify instead of polling.
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MetricsAddress string        `mapstructure:"metrics_address"`
}

// Config represents the complete configuration
type Config struct {
	LogLevel  string       `mapstructure:"log_level"`
	LogFormat string       `mapstructure:"log_format"`
	Password  string       `mapstructure:"password"`
	Output    string       `mapstructure:"output"`
	Progress  bool         `mapstructure:"progress"`
	Filters   FilterConfig `mapstructure:"filters"`
	Export    ExportConfig `mapstructure:"export"`
	Follow    FollowConfig `mapstructure:"follow"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":       "log_level",
	"log-format":      "log_format",
	"password":        "password",
	"output":          "output",
	"progress":        "progress",
	"sink":            "export.sink",
	"sqlite-path":     "export.sqlite.path",
	"mongodb-uri":     "export.mongodb.uri",
	"poll-interval":   "follow.poll_interval",
	"metrics-address": "follow.metrics_address",
	"level":           "filters.levels",
}

// Load builds the configuration from defaults, the optional config file,
// TRACEX_* environment variables and the flags that were set, in
// increasing order of precedence. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")
	v.SetDefault("password", "")
	v.SetDefault("output", "text")
	v.SetDefault("progress", false)

	v.SetDefault("filters.hide_threads", []int32{})
	v.SetDefault("filters.hide_thread_names", []string{})
	v.SetDefault("filters.hide_loggers", []string{})
	v.SetDefault("filters.hide_methods", []string{})
	v.SetDefault("filters.levels", []string{})

	v.SetDefault("export.sink", "sqlite")
	v.SetDefault("export.batch_size", 500)
	v.SetDefault("export.max_wait", "2s")
	v.SetDefault("export.queue_size", 5000)
	v.SetDefault("export.max_retries", 5)
	v.SetDefault("export.sqlite.path", "tracex.db")
	v.SetDefault("export.mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("export.mongodb.database", "tracex")
	v.SetDefault("export.mongodb.collection_prefix", "trace_")
	v.SetDefault("export.mongodb.timeout", "10s")
	v.SetDefault("export.mongodb.max_pool_size", 10)
	v.SetDefault("export.mongodb.ttl_days", 0)
	v.SetDefault("export.mongodb.tls.enabled", false)
	v.SetDefault("export.mongodb.tls.ca_cert", "")
	v.SetDefault("export.mongodb.tls.client_cert", "")
	v.SetDefault("export.mongodb.tls.client_key", "")
	v.SetDefault("export.mongodb.tls.server_name", "")
	v.SetDefault("export.mongodb.tls.x509", false)

	v.SetDefault("follow.poll_interval", "250ms")
	v.SetDefault("follow.metrics_address", "")
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	switch c.Output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("output must be text, json or yaml, got %q", c.Output)
	}
	switch c.Export.Sink {
	case "sqlite":
		if c.Export.SQLite.Path == "" {
			return fmt.Errorf("export.sqlite.path is required")
		}
	case "mongodb":
		if c.Export.MongoDB.URI == "" || c.Export.MongoDB.Database == "" {
			return fmt.Errorf("export.mongodb.uri and export.mongodb.database are required")
		}
	default:
		return fmt.Errorf("export.sink must be sqlite or mongodb, got %q", c.Export.Sink)
	}
	if c.Export.BatchSize <= 0 || c.Export.QueueSize <= 0 || c.Export.MaxWait <= 0 {
		return fmt.Errorf("export.batch_size, export.queue_size and export.max_wait must be positive")
	}
	if c.Export.MaxRetries < 0 {
		return fmt.Errorf("export.max_retries must not be negative")
	}
	if c.Follow.PollInterval < 0 {
		return fmt.Errorf("follow.poll_interval must not be negative")
	}
	for _, name := range c.Filters.Levels {
		if _, err := models.ParseTraceLevel(name); err != nil {
			return fmt.Errorf("filters.levels: %w", err)
		}
	}
	return nil
}
