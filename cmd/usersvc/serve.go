// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/usersvc/usersvc/internal/auth"
	"github.com/usersvc/usersvc/internal/config"
	"github.com/usersvc/usersvc/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the auth JSON API, plus metrics and health endpoints when
--metrics-addr is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd, opts.deps)
		},
	}
}

// runServe runs the API until a shutdown signal arrives or ctx ends. A
// server failure stops the other server and is returned.
func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *Deps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := setupLogging(cfg, deps.LogOutput); err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "set up logging").Wrap(err)
	}
	logger := slog.Default()

	logger.Info("starting usersvc",
		"version", version,
		"storage", cfg.Storage,
		"http_addr", cfg.HTTPAddr,
	)

	backend, err := deps.BackendOpener(ctx, cfg, logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "open backend").Wrap(err)
	}
	if backend.Close != nil {
		defer backend.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each monitored server sends at most one failure.
	serverErrs := make(chan error, 2)

	var (
		obsServer   ObservabilityServer
		authMetrics auth.Metrics
		apiOpts     = []httpapi.Option{httpapi.WithLogger(logger)}
	)
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, backend.Ready, logger)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, obsErrCh, "observability", serverErrs)
		authMetrics = obsServer.Metrics()
		apiOpts = append(apiOpts, httpapi.WithObserver(obsServer.Metrics()))
	}

	svc, err := newService(cfg, backend, logger, authMetrics)
	if err != nil {
		stopServers(logger, obsServer)
		return oops.Code("SERVE_FAILED").With("operation", "build service").Wrap(err)
	}

	apiServer := deps.APIServerFactory(cfg.HTTPAddr, svc, apiOpts...)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopServers(logger, obsServer)
		return oops.Code("SERVE_FAILED").With("operation", "start http api").Wrap(err)
	}
	go monitorServerErrors(ctx, apiErrCh, "http-api", serverErrs)

	sigChan := make(chan os.Signal, 1)
	deps.SignalNotifier(sigChan)
	defer signal.Stop(sigChan)

	cmd.Printf("usersvc listening on %s\n", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErrs:
		stopServers(logger, apiServer, obsServer)
		return oops.Code("SERVE_FAILED").With("operation", "serve").Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopServers(logger, apiServer, obsServer)
	logger.Info("shutdown complete")
	return nil
}

type stoppable interface {
	Stop(ctx context.Context) error
}

// stopServers stops each non-nil server in order within shutdownTimeout.
func stopServers(logger *slog.Logger, servers ...stoppable) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if s == nil {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			logger.Warn("error stopping server", "error", err)
		}
	}
}

// monitorServerErrors forwards the first error a server reports to failures.
func monitorServerErrors(ctx context.Context, errCh <-chan error, serverName string, failures chan<- error) {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return
		}
		slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
		select {
		case failures <- oops.With("server", serverName).Wrap(err):
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}
}
