package config

import (
	"time"

	"github.com/raaihank/binlog-scrub/internal/cache"
)

// Config is the ambient configuration loaded from file and environment. The
// six core run options arrive separately as an Options value from the CLI.
type Config struct {
	Patterns PatternsConfig `yaml:"patterns" mapstructure:"patterns"`
	Cache    cache.Config   `yaml:"cache" mapstructure:"cache"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Audit    AuditConfig    `yaml:"audit" mapstructure:"audit"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// PatternsConfig tunes how explicit literal patterns match.
type PatternsConfig struct {
	CaseInsensitive bool `yaml:"case_insensitive" mapstructure:"case_insensitive"`
}

// ReportConfig controls the findings export written alongside the console
// summary.
type ReportConfig struct {
	// ExportPath, when set, receives a Parquet file of findings metadata
	// (pattern names, record indexes, field names; never original content).
	ExportPath string `yaml:"export_path" mapstructure:"export_path"`
}

// AuditConfig controls the optional PostgreSQL run audit trail.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// Options is the validated per-run option set handed over by the CLI layer.
type Options struct {
	// InputPath is the container to redact.
	InputPath string
	// OutputFileName is the destination path for the redacted container.
	OutputFileName string
	// Overwrite allows replacing an existing destination file.
	Overwrite bool
	// DisableBuiltinPatterns drops the built-in heuristics; explicit
	// patterns must then be non-empty or the run fails validation.
	DisableBuiltinPatterns bool
	// IdentifyReplacements suffixes each marker with its match ordinal.
	IdentifyReplacements bool
	// ExplicitPatterns are caller-supplied literal values to redact.
	ExplicitPatterns []string
}

// GetDefaults returns a configuration with sensible defaults.
func GetDefaults() *Config {
	cfg := &Config{
		Cache: cache.Config{
			Backend:        "memory",
			MaxEntries:     65536,
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     24 * time.Hour,
			KeyPrefix:      "binscrub",
		},
		Audit: AuditConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
	return cfg
}
