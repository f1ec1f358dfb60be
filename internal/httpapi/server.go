// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

// Package httpapi exposes the auth service as a JSON API.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/usersvc/usersvc/internal/auth"
)

// AuthService is the subset of *auth.Service the API calls.
type AuthService interface {
	SignUp(ctx context.Context, name, email, password string) (*auth.User, error)
	Login(ctx context.Context, email, password string) (*auth.Token, error)
	Logout(ctx context.Context, value string) error
	ValidateToken(ctx context.Context, value string) (*auth.User, error)
}

// RequestObserver records per-route request outcomes.
type RequestObserver interface {
	ObserveRequest(route string, status int, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, int, time.Duration) {}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server serves the auth API.
type Server struct {
	addr     string
	svc      AuthService
	logger   *slog.Logger
	observer RequestObserver

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver records each request with o.
func WithObserver(o RequestObserver) Option {
	return func(s *Server) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewServer creates a Server that will listen on addr.
func NewServer(addr string, svc AuthService, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		svc:      svc,
		logger:   slog.Default(),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "httpapi")
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /auth/signup", s.instrument("/auth/signup", s.handleSignUp))
	mux.Handle("POST /auth/login", s.instrument("/auth/login", s.handleLogin))
	mux.Handle("POST /auth/logout", s.instrument("/auth/logout", s.handleLogout))
	mux.Handle("POST /auth/validate", s.instrument("/auth/validate", s.handleValidate))
	return mux
}

// Start begins serving in the background. The returned channel receives a
// serve error, if any, and is closed when serving stops.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil, oops.Code("HTTP_ALREADY_STARTED").Errorf("http api server already started")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	srv := s.server
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http api server error", "error", err)
			errCh <- err
		}
	}()

	s.logger.Info("http api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("http api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
