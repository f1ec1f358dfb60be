// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/usersvc/usersvc/internal/config"
	"github.com/usersvc/usersvc/internal/httpapi"
	"github.com/usersvc/usersvc/internal/observability"
	"github.com/usersvc/usersvc/pkg/errutil"
)

// serveHarness runs "usersvc serve" in the background.
type serveHarness struct {
	api  chan APIServer
	obs  chan ObservabilityServer
	done chan error
	out  *bytes.Buffer
}

func startServe(ctx context.Context, t *testing.T, deps *Deps, args ...string) *serveHarness {
	t.Helper()
	h := &serveHarness{
		api:  make(chan APIServer, 1),
		obs:  make(chan ObservabilityServer, 1),
		done: make(chan error, 1),
		out:  new(bytes.Buffer),
	}
	deps.LogOutput = io.Discard
	if deps.SignalNotifier == nil {
		deps.SignalNotifier = func(chan<- os.Signal) {}
	}
	newAPI := deps.APIServerFactory
	if newAPI == nil {
		newAPI = func(addr string, svc httpapi.AuthService, opts ...httpapi.Option) APIServer {
			return httpapi.NewServer(addr, svc, opts...)
		}
	}
	deps.APIServerFactory = func(addr string, svc httpapi.AuthService, opts ...httpapi.Option) APIServer {
		srv := newAPI(addr, svc, opts...)
		h.api <- srv
		return srv
	}
	deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
		srv := observability.NewServer(addr, ready, logger)
		h.obs <- srv
		return srv
	}

	cmd := newRootCmd(deps)
	cmd.SetOut(h.out)
	cmd.SetErr(h.out)
	cmd.SetArgs(append([]string{"serve", "--http-addr=127.0.0.1:0", "--bcrypt-cost=4"}, args...))
	go func() { h.done <- cmd.ExecuteContext(ctx) }()
	return h
}

// apiAddr waits until the API server is listening.
func (h *serveHarness) apiAddr(t *testing.T) string {
	t.Helper()
	var srv APIServer
	select {
	case srv = <-h.api:
	case err := <-h.done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("api server not created")
	}
	require.Eventually(t, func() bool { return srv.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	return srv.Addr()
}

func (h *serveHarness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
		return nil
	}
}

// post sends a JSON body and returns the status code. The response body is
// drained and closed before returning so the connection can be reused.
func post(t *testing.T, url, body string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body)) //nolint:noctx // test
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	return resp.StatusCode
}

func TestServe_ServesAPIUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	isolateEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := startServe(ctx, t, &Deps{})
	addr := h.apiAddr(t)

	status := post(t, "http://"+addr+"/auth/signup", `{"name":"A","email":"a@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusCreated, status)
	status = post(t, "http://"+addr+"/auth/login", `{"email":"a@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusOK, status)
	http.DefaultClient.CloseIdleConnections()

	cancel()
	require.NoError(t, h.wait(t))
	assert.Contains(t, h.out.String(), "usersvc listening on "+addr)
}

func TestServe_ExposesMetrics(t *testing.T) {
	isolateEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := startServe(ctx, t, &Deps{}, "--metrics-addr=127.0.0.1:0")
	addr := h.apiAddr(t)
	obs := <-h.obs
	require.Eventually(t, func() bool { return obs.Addr() != "" }, 5*time.Second, 10*time.Millisecond)

	status := post(t, "http://"+addr+"/auth/validate", `{"token":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	mresp, err := http.Get("http://" + obs.Addr() + "/metrics") //nolint:noctx // test
	require.NoError(t, err)
	defer func() { _ = mresp.Body.Close() }()
	body, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `usersvc_auth_operations_total{op="validate",outcome="invalid"} 1`)
	assert.Contains(t, string(body), `usersvc_http_requests_total{route="/auth/validate",status="401"} 1`)

	rresp, err := http.Get("http://" + obs.Addr() + "/healthz/readiness") //nolint:noctx // test
	require.NoError(t, err)
	_ = rresp.Body.Close()
	assert.Equal(t, http.StatusOK, rresp.StatusCode)
	http.DefaultClient.CloseIdleConnections()

	cancel()
	require.NoError(t, h.wait(t))
}

func TestServe_StopsOnSignal(t *testing.T) {
	isolateEnv(t)
	deps := &Deps{
		SignalNotifier: func(ch chan<- os.Signal) { ch <- syscall.SIGTERM },
	}

	h := startServe(context.Background(), t, deps)
	require.NoError(t, h.wait(t))
}

func TestServe_BackendOpenFailure(t *testing.T) {
	isolateEnv(t)
	deps := &Deps{
		BackendOpener: func(context.Context, *config.Config, *slog.Logger) (*Backend, error) {
			return nil, errors.New("database unreachable")
		},
	}

	h := startServe(context.Background(), t, deps)
	err := h.wait(t)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SERVE_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "open backend")
	assert.Contains(t, err.Error(), "database unreachable")
}

func TestServe_ListenFailure(t *testing.T) {
	isolateEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := startServe(ctx, t, &Deps{})
	addr := first.apiAddr(t)

	second := startServe(context.Background(), t, &Deps{}, "--http-addr="+addr)
	err := second.wait(t)
	require.Error(t, err)
	// The listener's own code is the deepest in the chain; the command adds
	// the failing step as context.
	errutil.AssertErrorCode(t, err, "HTTP_LISTEN_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "start http api")
	errutil.AssertErrorContext(t, err, "addr", addr)

	cancel()
	require.NoError(t, first.wait(t))
}

// failingAPIServer starts cleanly and then reports a serve error.
type failingAPIServer struct {
	errCh   chan error
	stopped chan struct{}
}

func newFailingAPIServer(err error) *failingAPIServer {
	s := &failingAPIServer{errCh: make(chan error, 1), stopped: make(chan struct{})}
	s.errCh <- err
	return s
}

func (s *failingAPIServer) Start() (<-chan error, error) { return s.errCh, nil }

func (s *failingAPIServer) Stop(context.Context) error {
	close(s.stopped)
	return nil
}

func (s *failingAPIServer) Addr() string { return "127.0.0.1:0" }

func TestServe_ServerFailureReturnsError(t *testing.T) {
	isolateEnv(t)
	srv := newFailingAPIServer(errors.New("accept: too many open files"))
	deps := &Deps{
		APIServerFactory: func(string, httpapi.AuthService, ...httpapi.Option) APIServer { return srv },
	}

	h := startServe(context.Background(), t, deps)
	err := h.wait(t)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SERVE_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "serve")
	errutil.AssertErrorContext(t, err, "server", "http-api")
	assert.Contains(t, err.Error(), "too many open files")

	select {
	case <-srv.stopped:
	default:
		t.Fatal("api server not stopped")
	}
}

func TestServe_ClosesBackend(t *testing.T) {
	isolateEnv(t)
	closed := make(chan struct{})
	deps := &Deps{
		BackendOpener: func(context.Context, *config.Config, *slog.Logger) (*Backend, error) {
			b := MemoryBackend(slog.New(slog.NewTextHandler(io.Discard, nil)))
			b.Close = func() { close(closed) }
			return b, nil
		},
		SignalNotifier: func(ch chan<- os.Signal) { ch <- syscall.SIGINT },
	}

	h := startServe(context.Background(), t, deps)
	require.NoError(t, h.wait(t))
	select {
	case <-closed:
	default:
		t.Fatal("backend not closed")
	}
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("error is forwarded with server name", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		cause := errors.New("listener died")
		errCh <- cause
		failures := make(chan error, 1)

		monitorServerErrors(ctx, errCh, "test", failures)
		require.Len(t, failures, 1)
		err := <-failures
		assert.ErrorIs(t, err, cause)
		errutil.AssertErrorContext(t, err, "server", "test")
	})

	t.Run("closed channel forwards nothing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)
		failures := make(chan error, 1)

		monitorServerErrors(ctx, errCh, "test", failures)
		assert.Empty(t, failures)
	})

	t.Run("returns when context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		monitorServerErrors(ctx, make(chan error), "test", make(chan error))
	})

	t.Run("does not block once shutdown started", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		errCh <- errors.New("late failure")
		cancel()

		// Unbuffered with no reader: only ctx lets the monitor return.
		monitorServerErrors(ctx, errCh, "test", make(chan error))
	})
}
