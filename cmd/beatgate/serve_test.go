// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatgate/beatgate/internal/config"
	"github.com/beatgate/beatgate/internal/geoloc"
	"github.com/beatgate/beatgate/internal/httpd"
	"github.com/beatgate/beatgate/internal/observability"
)

// fakePool satisfies Pool without a database.
type fakePool struct {
	closed bool
}

func (f *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePool) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (f *fakePool) Close() { f.closed = true }

// fakeVerifiedCache satisfies VerifiedCache without Redis.
type fakeVerifiedCache struct {
	closed bool
}

func (f *fakeVerifiedCache) SetVerified(context.Context, int32, bool) error { return nil }

func (f *fakeVerifiedCache) Verified(context.Context, int32) (bool, bool, error) {
	return false, false, nil
}

func (f *fakeVerifiedCache) Close() error {
	f.closed = true
	return nil
}

// fakeServer satisfies both LoginServer and ObservabilityServer.
type fakeServer struct {
	mu       sync.Mutex
	startErr error
	started  bool
	stopped  bool
	errCh    chan error
}

func (f *fakeServer) Start() (<-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = true
	f.errCh = make(chan error, 1)
	return f.errCh, nil
}

func (f *fakeServer) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.errCh != nil {
		close(f.errCh)
		f.errCh = nil
	}
	return nil
}

func (f *fakeServer) runningErrCh() chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errCh
}

func (f *fakeServer) wasStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeServer) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeServer) Addr() string { return "127.0.0.1:0" }

func (f *fakeServer) Metrics() *observability.Metrics { return nil }

func testDeps(pool *fakePool, cache *fakeVerifiedCache, loginSrv, obsSrv *fakeServer) *ServeDeps {
	return &ServeDeps{
		PoolFactory: func(context.Context, string) (Pool, error) { return pool, nil },
		VerifiedCacheFactory: func(context.Context, string) (VerifiedCache, error) {
			return cache, nil
		},
		GeoResolverFactory: func(string) geoloc.Resolver { return &geoloc.Static{} },
		LoginServerFactory: func(string, httpd.Gate, httpd.MetricsRecorder, *slog.Logger) LoginServer {
			return loginSrv
		},
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, observability.SessionCounter) ObservabilityServer {
			return obsSrv
		},
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DatabaseURL = "postgres://localhost/beatgate"
	cfg.RedisURL = "redis://localhost:6379"
	cfg.ObservePort = ""
	return &cfg
}

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd
}

func TestRunServe(t *testing.T) {
	t.Run("starts and shuts down on context cancel", func(t *testing.T) {
		pool := &fakePool{}
		cache := &fakeVerifiedCache{}
		loginSrv := &fakeServer{}

		ctx, cancel := context.WithCancel(context.Background())
		cancel() // shut down immediately after startup

		err := runServeWithDeps(ctx, testConfig(), newTestCmd(), testDeps(pool, cache, loginSrv, nil))
		require.NoError(t, err)

		assert.True(t, loginSrv.wasStarted())
		assert.True(t, loginSrv.wasStopped())
		assert.True(t, pool.closed)
		assert.True(t, cache.closed)
	})

	t.Run("starts the observability server when configured", func(t *testing.T) {
		pool := &fakePool{}
		cache := &fakeVerifiedCache{}
		loginSrv := &fakeServer{}
		obsSrv := &fakeServer{}

		cfg := testConfig()
		cfg.ObservePort = ":9090"

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := runServeWithDeps(ctx, cfg, newTestCmd(), testDeps(pool, cache, loginSrv, obsSrv))
		require.NoError(t, err)

		assert.True(t, obsSrv.wasStarted())
		assert.True(t, obsSrv.wasStopped())
	})

	t.Run("missing database url fails", func(t *testing.T) {
		cfg := testConfig()
		cfg.DatabaseURL = ""

		err := runServeWithDeps(context.Background(), cfg, newTestCmd(), testDeps(&fakePool{}, &fakeVerifiedCache{}, &fakeServer{}, nil))
		assert.Error(t, err)
	})

	t.Run("missing redis url fails", func(t *testing.T) {
		cfg := testConfig()
		cfg.RedisURL = ""

		err := runServeWithDeps(context.Background(), cfg, newTestCmd(), testDeps(&fakePool{}, &fakeVerifiedCache{}, &fakeServer{}, nil))
		assert.Error(t, err)
	})

	t.Run("pool factory failure is fatal", func(t *testing.T) {
		deps := testDeps(&fakePool{}, &fakeVerifiedCache{}, &fakeServer{}, nil)
		deps.PoolFactory = func(context.Context, string) (Pool, error) {
			return nil, errors.New("connection refused")
		}

		err := runServeWithDeps(context.Background(), testConfig(), newTestCmd(), deps)
		assert.Error(t, err)
	})

	t.Run("login server start failure is fatal", func(t *testing.T) {
		pool := &fakePool{}
		cache := &fakeVerifiedCache{}
		loginSrv := &fakeServer{startErr: errors.New("address in use")}

		err := runServeWithDeps(context.Background(), testConfig(), newTestCmd(), testDeps(pool, cache, loginSrv, nil))
		assert.Error(t, err)
		assert.True(t, pool.closed)
	})

	t.Run("login server failure triggers shutdown", func(t *testing.T) {
		pool := &fakePool{}
		cache := &fakeVerifiedCache{}
		loginSrv := &fakeServer{}

		done := make(chan error, 1)
		go func() {
			done <- runServeWithDeps(context.Background(), testConfig(), newTestCmd(), testDeps(pool, cache, loginSrv, nil))
		}()

		// Wait for startup, then simulate a serve-loop failure.
		require.Eventually(t, func() bool { return loginSrv.runningErrCh() != nil }, 2*time.Second, 10*time.Millisecond)
		loginSrv.runningErrCh() <- errors.New("listener died")

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not shut down after server failure")
		}
	})
}

func TestBuildChannels(t *testing.T) {
	cfg := config.Default()
	channels := buildChannels(&cfg)

	require.Len(t, channels, 3)
	assert.Equal(t, "#osu", channels[0].Name)
	assert.True(t, channels[0].PublicRead)
	assert.Equal(t, "#admin", channels[2].Name)
	assert.True(t, channels[2].Hidden)
}
