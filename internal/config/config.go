// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

// Package config loads usersvc settings.
//
// Later sources win: file, then USERSVC_* environment variables, then flags
// set explicitly on the command line. Flag defaults fill whatever is left.
// DATABASE_URL is honoured when no database URL is configured otherwise.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/usersvc/usersvc/internal/auth"
	"github.com/usersvc/usersvc/internal/logging"
	"github.com/usersvc/usersvc/internal/xdg"
)

// EnvPrefix is the prefix of environment variables mapped onto config keys.
// USERSVC_HTTP_ADDR sets http-addr.
const EnvPrefix = "USERSVC_"

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds the service settings.
type Config struct {
	Storage           string `koanf:"storage"`
	DatabaseURL       string `koanf:"database-url"`
	HTTPAddr          string `koanf:"http-addr"`
	MetricsAddr       string `koanf:"metrics-addr"`
	LogFormat         string `koanf:"log-format"`
	LogLevel          string `koanf:"log-level"`
	Hasher            string `koanf:"hasher"`
	BcryptCost        int    `koanf:"bcrypt-cost"`
	TokenLifetimeDays int    `koanf:"token-lifetime-days"`
	Timezone          string `koanf:"timezone"`
	AutoMigrate       bool   `koanf:"auto-migrate"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Storage:           StorageMemory,
		HTTPAddr:          "localhost:8080",
		MetricsAddr:       "",
		LogFormat:         logging.FormatJSON,
		LogLevel:          "info",
		Hasher:            "bcrypt",
		BcryptCost:        bcrypt.DefaultCost,
		TokenLifetimeDays: auth.DefaultTokenLifetimeDays,
		Timezone:          "Local",
	}
}

// RegisterFlags adds a flag for every key, defaulting to Default().
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("storage", d.Storage, "storage backend (memory|postgres)")
	flags.String("database-url", d.DatabaseURL, "PostgreSQL connection URL (defaults to $DATABASE_URL)")
	flags.String("http-addr", d.HTTPAddr, "HTTP API listen address")
	flags.String("metrics-addr", d.MetricsAddr, "metrics and health listen address (empty disables)")
	flags.String("log-format", d.LogFormat, "log format (json|text)")
	flags.String("log-level", d.LogLevel, "log level (debug|info|warn|error)")
	flags.String("hasher", d.Hasher, "password hasher (bcrypt|argon2id)")
	flags.Int("bcrypt-cost", d.BcryptCost, "bcrypt cost factor")
	flags.Int("token-lifetime-days", d.TokenLifetimeDays, "calendar days a login token stays valid")
	flags.String("timezone", d.Timezone, "IANA zone whose midnight ends a token's life")
	flags.Bool("auto-migrate", d.AutoMigrate, "apply pending migrations on startup")
}

// Load reads path (or the XDG default when path is empty and the file
// exists), the environment, and flags into a validated Config.
// flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	filePath, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", filePath).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if k.String("database-url") == "" {
		if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
			if err := k.Set("database-url", dsn); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "DATABASE_URL").Wrap(err)
			}
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	candidate := xdg.ConfigFile()
	_, err := os.Stat(candidate)
	switch {
	case err == nil:
		return candidate, nil
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	default:
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", candidate).Wrap(err)
	}
}

// envKey maps USERSVC_TOKEN_LIFETIME_DAYS to token-lifetime-days.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "_", "-")
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	invalid := func(key string, value any, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf(format, args...)
	}

	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return invalid("database-url", "", "database-url is required for postgres storage")
		}
	default:
		return invalid("storage", c.Storage, "storage must be %q or %q", StorageMemory, StoragePostgres)
	}
	if c.HTTPAddr == "" {
		return invalid("http-addr", c.HTTPAddr, "http-addr is required")
	}
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		return invalid("log-format", c.LogFormat, "log-format must be json or text")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log-level", c.LogLevel, "log-level must be debug, info, warn, or error")
	}
	if _, err := auth.NewHasher(c.Hasher, c.BcryptCost); err != nil {
		return invalid("hasher", c.Hasher, "hasher settings rejected: %v", err)
	}
	if c.TokenLifetimeDays <= 0 {
		return invalid("token-lifetime-days", c.TokenLifetimeDays, "token-lifetime-days must be positive")
	}
	if _, err := c.Location(); err != nil {
		return invalid("timezone", c.Timezone, "unknown timezone")
	}
	return nil
}

// Location resolves Timezone. "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("timezone", c.Timezone).Wrap(err)
	}
	return loc, nil
}
