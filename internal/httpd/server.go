// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package httpd exposes the login gate over HTTP. Game clients POST
// their login submission to the root path and read the session token
// from a response header, with the bootstrap packets as the body.
package httpd

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/beatgate/beatgate/internal/login"
	"github.com/beatgate/beatgate/pkg/errutil"
)

// TokenHeader carries the session ID back to the client. Clients echo
// it on every subsequent request.
const TokenHeader = "cho-token"

// maxBodyBytes bounds the login submission size.
const maxBodyBytes = 64 << 10

// Gate runs a login attempt to its outcome.
type Gate interface {
	Handle(ctx context.Context, req *login.Request) login.Outcome
}

// MetricsRecorder counts finished login attempts.
type MetricsRecorder interface {
	RecordLogin(outcome string, elapsed time.Duration)
}

// Server is the public-facing login endpoint.
type Server struct {
	addr       string
	gate       Gate
	metrics    MetricsRecorder
	logger     *slog.Logger
	certFile   string
	keyFile    string
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates the login HTTP server. metrics may be nil.
func NewServer(addr string, gate Gate, metrics MetricsRecorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		addr:    addr,
		gate:    gate,
		metrics: metrics,
		logger:  logger,
	}
}

// UseTLS makes Start serve TLS with the given certificate pair. Must
// be called before Start.
func (s *Server) UseTLS(certFile, keyFile string) {
	s.certFile = certFile
	s.keyFile = keyFile
}

// Router builds the HTTP routes. Exposed for tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	return r
}

// Start begins serving. It returns an error channel that receives any
// serve-loop error; the channel closes on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("login server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		var serveErr error
		if s.certFile != "" {
			serveErr = httpSrv.ServeTLS(listener, s.certFile, s.keyFile)
		} else {
			serveErr = httpSrv.Serve(listener)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			errutil.LogError(s.logger, "login server error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("login server started",
		"addr", listener.Addr().String(),
		"tls", s.certFile != "",
	)
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_login_server").Wrap(err)
		}
	}
	s.logger.Info("login server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	//nolint:errcheck // banner write error is acceptable
	w.Write([]byte("beatgate is running\n"))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.logger.Warn("login body read failed", "error", err)
		w.Header().Set(TokenHeader, login.FailureSessionID)
		w.WriteHeader(http.StatusOK)
		return
	}

	out := s.gate.Handle(r.Context(), &login.Request{
		Body:    body,
		Origin:  clientOrigin(r),
		Headers: r.Header,
	})

	if s.metrics != nil {
		s.metrics.RecordLogin(out.Reason.String(), time.Since(start))
	}

	// Failures still answer 200: the client reads the reply packet,
	// not the HTTP status.
	w.Header().Set(TokenHeader, out.SessionID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Payload); err != nil {
		s.logger.Warn("login response write failed",
			"session_id", out.SessionID,
			"error", err,
		)
	}
}

// clientOrigin extracts the client address, preferring the
// reverse-proxy header over the socket peer.
func clientOrigin(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// logRequests is the access-log middleware.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}
