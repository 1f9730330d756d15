// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/beatgate/beatgate/internal/alert"
	"github.com/beatgate/beatgate/internal/geoloc"
	"github.com/beatgate/beatgate/internal/httpd"
	"github.com/beatgate/beatgate/internal/observability"
	"github.com/beatgate/beatgate/internal/user"
	"github.com/beatgate/beatgate/internal/user/postgres"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory creates a database pool from a connection URL.
	// Default: pgxpool.New
	PoolFactory func(ctx context.Context, url string) (Pool, error)

	// VerifiedCacheFactory creates the hardware-verification cache.
	// Default: rediscache.New
	VerifiedCacheFactory func(ctx context.Context, url string) (VerifiedCache, error)

	// GeoResolverFactory creates the origin resolver. Default:
	// geoloc.NewHTTPResolver, or geoloc.Static when no URL is set.
	GeoResolverFactory func(baseURL string) geoloc.Resolver

	// NotifierFactory creates the staff alert notifier. Default:
	// alert.NewWebhookNotifier, or alert.LogNotifier when no URL is set.
	NotifierFactory func(webhookURL string, logger *slog.Logger) alert.Notifier

	// LoginServerFactory creates the public login endpoint.
	// Default: httpd.NewServer
	LoginServerFactory func(addr string, gate httpd.Gate, metrics httpd.MetricsRecorder, logger *slog.Logger) LoginServer

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, sessions observability.SessionCounter) ObservabilityServer
}

// Pool is the database pool surface the serve command needs.
type Pool interface {
	postgres.DB
	Close()
}

// VerifiedCache extends user.VerifiedCache with connection lifecycle.
type VerifiedCache interface {
	user.VerifiedCache
	Close() error
}

// LoginServer wraps the methods used from httpd.Server.
type LoginServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// loginMetrics adapts observability.Metrics to httpd.MetricsRecorder.
type loginMetrics struct {
	m *observability.Metrics
}

func (l loginMetrics) RecordLogin(outcome string, elapsed time.Duration) {
	l.m.RecordLogin(outcome, elapsed)
}
