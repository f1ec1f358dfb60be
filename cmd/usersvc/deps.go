// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"

	"github.com/usersvc/usersvc/internal/auth"
	"github.com/usersvc/usersvc/internal/auth/memory"
	"github.com/usersvc/usersvc/internal/auth/postgres"
	"github.com/usersvc/usersvc/internal/config"
	"github.com/usersvc/usersvc/internal/httpapi"
	"github.com/usersvc/usersvc/internal/observability"
	"github.com/usersvc/usersvc/internal/store"
)

// Deps holds the injectable dependencies of the CLI.
// Nil fields use their default implementations.
type Deps struct {
	// BackendOpener opens the configured storage backend.
	// Default: openBackend
	BackendOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// APIServerFactory creates the HTTP API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, svc httpapi.AuthService, opts ...httpapi.Option) APIServer

	// SignalNotifier delivers shutdown signals.
	// Default: signal.Notify for SIGINT and SIGTERM
	SignalNotifier func(ch chan<- os.Signal)

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer
}

func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.BackendOpener == nil {
		out.BackendOpener = openBackend
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, svc httpapi.AuthService, opts ...httpapi.Option) APIServer {
			return httpapi.NewServer(addr, svc, opts...)
		}
	}
	if out.SignalNotifier == nil {
		out.SignalNotifier = func(ch chan<- os.Signal) {
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		}
	}
	if out.LogOutput == nil {
		out.LogOutput = os.Stderr
	}
	return out
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// APIServer wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// Backend is an opened storage backend.
type Backend struct {
	Users  auth.UserStore
	Tokens auth.TokenStore
	Events auth.EventPublisher
	// Ready reports whether the backend can serve requests.
	Ready observability.ReadinessChecker
	// Close releases the backend. It may be nil.
	Close func()
}

// MemoryBackend returns a Backend over a fresh in-memory database.
func MemoryBackend(logger *slog.Logger) *Backend {
	db := memory.New()
	return &Backend{
		Users:  db.Users(),
		Tokens: db.Tokens(),
		Events: memory.NewPublisher(logger),
	}
}

// openBackend opens the backend named by cfg.Storage.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		return MemoryBackend(logger), nil
	case config.StoragePostgres:
		if cfg.AutoMigrate {
			if err := migrateUp(cfg.DatabaseURL, logger); err != nil {
				return nil, err
			}
		}
		opts := store.DefaultConnectOptions()
		opts.Logger = logger
		pool, err := store.Connect(ctx, cfg.DatabaseURL, opts)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Users:  postgres.NewUserRepository(pool),
			Tokens: postgres.NewTokenRepository(pool),
			Events: postgres.NewOutboxPublisher(pool),
			Ready:  store.Ready(pool),
			Close:  pool.Close,
		}, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("storage", cfg.Storage).Errorf("unknown storage backend")
	}
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("schema migrated", "version", version)
	return nil
}

// newService builds the auth service over b using the settings in cfg.
func newService(cfg *config.Config, b *Backend, logger *slog.Logger, metrics auth.Metrics) (*auth.Service, error) {
	hasher, err := auth.NewHasher(cfg.Hasher, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithLocation(loc),
		auth.WithTokenLifetime(cfg.TokenLifetimeDays),
	}
	if metrics != nil {
		opts = append(opts, auth.WithMetrics(metrics))
	}
	return auth.NewService(b.Users, b.Tokens, b.Events, hasher, opts...)
}
