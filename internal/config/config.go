// Package config loads filelog settings from defaults, an optional YAML file
// and FILELOG_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/coffersTech/filelog/internal/format"
	"github.com/coffersTech/filelog/internal/storage"
)

// EnvPrefix is the prefix of environment overrides, e.g. FILELOG_LOG_DIR.
const EnvPrefix = "FILELOG"

// Config is the complete filelog configuration.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
	Diag   DiagConfig   `mapstructure:"diag"`
}

// LogConfig controls the managed log files.
type LogConfig struct {
	// Dir holds <name>.log files and their backups.
	Dir string `mapstructure:"dir" validate:"required"`
	// MaxSizeBytes triggers rotation (0 disables it).
	MaxSizeBytes int64 `mapstructure:"max_size_bytes" validate:"gte=0"`
	MaxBackups   int   `mapstructure:"max_backups" validate:"gte=0"`
	Compress     bool  `mapstructure:"compress"`
	// Encoding is "text" or "json".
	Encoding string `mapstructure:"encoding" validate:"oneof=text json"`
	// Console mirrors writes to stdout.
	Console bool `mapstructure:"console"`
	// Timezone for text timestamps: empty for local time, or an IANA name.
	Timezone string `mapstructure:"timezone"`
}

// ServerConfig controls the read-only HTTP query surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
	// TokenHash is a bcrypt hash of the bearer token; empty disables auth.
	TokenHash       string        `mapstructure:"token_hash"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DiagConfig controls the tool's own diagnostics.
type DiagConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Dir:          "logs",
			MaxSizeBytes: storage.DefaultMaxSizeBytes,
			MaxBackups:   storage.DefaultMaxBackups,
			Encoding:     string(format.EncodingText),
		},
		Server: ServerConfig{
			Addr:            ":8089",
			ShutdownTimeout: 5 * time.Second,
		},
		Diag: DiagConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SetDefaults registers every key with its default so that environment
// overrides are honoured by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.max_size_bytes", d.Log.MaxSizeBytes)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("log.timezone", d.Log.Timezone)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.token_hash", d.Server.TokenHash)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("diag.level", d.Diag.Level)
	v.SetDefault("diag.format", d.Diag.Format)
}

// NewViper returns a viper instance with defaults and environment binding.
// When file is empty, filelog.yaml is looked up in the working directory
// and in ConfigDir; a missing file is not an error.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("filelog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

var validate = validator.New()

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field rules and the timezone name.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Log.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Rotation converts the file limits for the writer.
func (c LogConfig) Rotation() storage.RotationConfig {
	return storage.RotationConfig{
		MaxSizeBytes: c.MaxSizeBytes,
		MaxBackups:   c.MaxBackups,
		Compress:     c.Compress,
	}
}

// Location resolves Timezone.
func (c LogConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ConfigDir returns the user's filelog config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "filelog")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".filelog"
	}
	return filepath.Join(home, ".config", "filelog")
}
