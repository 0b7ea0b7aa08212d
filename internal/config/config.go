// Package config loads runtime settings from the environment.
//
// Every setting has an env var (prefixed RECIPE_) and most have a default,
// so `recipe-api serve` works out of the box once RECIPE_JWT_SECRET is set.
// A .env file in the working directory is read first if present; real
// environment variables always win over values from the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every setting the server and CLI commands need.
type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	DBDriver      string        `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN         string        `env:"DB_DSN" envDefault:"data/recipes.db"`
	DBWaitTimeout time.Duration `env:"DB_WAIT_TIMEOUT" envDefault:"30s"`

	JWTSecret  string        `env:"JWT_SECRET"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"12"`

	MediaRoot      string `env:"MEDIA_ROOT" envDefault:"data/media"`
	MediaURL       string `env:"MEDIA_URL" envDefault:"/media/"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// Prefix is prepended to every env var name.
const Prefix = "RECIPE_"

// Load reads the optional .env file and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment (without touching .env) into a Config.
func Parse() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports settings that would make the server unusable.
// Called by `serve`; `migrate` and `wait-for-db` only need the DB settings
// and use ValidateDB instead.
func (c Config) Validate() error {
	if err := c.ValidateDB(); err != nil {
		return err
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("config: %sJWT_SECRET must be at least 16 characters", Prefix)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: %sTOKEN_TTL must be positive", Prefix)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: %sMAX_UPLOAD_BYTES must be positive", Prefix)
	}
	if !strings.HasPrefix(c.MediaURL, "/") {
		return fmt.Errorf("config: %sMEDIA_URL must start with /", Prefix)
	}
	return nil
}

// ValidateDB checks the database settings only.
func (c Config) ValidateDB() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: unsupported %sDB_DRIVER %q", Prefix, c.DBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("config: %sDB_DSN is required", Prefix)
	}
	return nil
}

// NewLogger builds the process logger from the log settings.
// Unknown levels fall back to info; unknown formats fall back to text.
func NewLogger(c Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
