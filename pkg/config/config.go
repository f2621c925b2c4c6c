// Package config loads shotlog settings from defaults, an optional shotlog.yaml,
// a .env file and SHOTLOG_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// FileName is the config file base name, searched in the working directory.
	FileName = "shotlog"
	// EnvPrefix prefixes every environment override, e.g. SHOTLOG_SERVER_ADDR.
	EnvPrefix = "SHOTLOG"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Media    MediaConfig    `mapstructure:"media"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Log      LogConfig      `mapstructure:"log"`
	Import   ImportConfig   `mapstructure:"import"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
}

// MaxUploadBytes is the request body limit for uploads.
func (s ServerConfig) MaxUploadBytes() int64 { return s.MaxUploadMB << 20 }

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	LogLevel    string `mapstructure:"log_level"`
}

type MediaConfig struct {
	Root      string `mapstructure:"root"`
	URLPrefix string `mapstructure:"url_prefix"`
}

type OCRConfig struct {
	Language       string        `mapstructure:"language"`
	TessdataPrefix string        `mapstructure:"tessdata_prefix"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ImportConfig struct {
	Workers  int           `mapstructure:"workers"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8081")
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("media.root", "uploads")
	v.SetDefault("media.url_prefix", "/media")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.tessdata_prefix", "")
	v.SetDefault("ocr.timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("import.workers", 2)
	v.SetDefault("import.debounce", 500*time.Millisecond)
}

// Load reads configuration into a Config. file overrides the default search
// for shotlog.yaml; a missing default file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	// .env never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by earlier deployments.
	_ = v.BindEnv("database.dsn", EnvPrefix+"_DATABASE_DSN", "DB_DSN")
	_ = v.BindEnv("database.auto_migrate", EnvPrefix+"_DATABASE_AUTO_MIGRATE", "DB_AUTO_MIGRATE")
	_ = v.BindEnv("media.root", EnvPrefix+"_MEDIA_ROOT", "UPLOAD_BASE")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted sensibly.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "postgresql", "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver: unsupported %q", c.Database.Driver)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.OCR.Timeout <= 0 {
		return fmt.Errorf("ocr.timeout must be positive, got %s", c.OCR.Timeout)
	}
	if c.Import.Workers <= 0 {
		c.Import.Workers = 1
	}
	if c.Media.URLPrefix == "" || !strings.HasPrefix(c.Media.URLPrefix, "/") {
		return fmt.Errorf("media.url_prefix must start with /, got %q", c.Media.URLPrefix)
	}
	c.Media.URLPrefix = strings.TrimRight(c.Media.URLPrefix, "/")
	if c.Media.URLPrefix == "" {
		return errors.New("media.url_prefix must not be the site root")
	}
	return nil
}

// Logger builds the process logger described by c.
func (c LogConfig) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
