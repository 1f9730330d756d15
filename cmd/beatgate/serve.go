// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/beatgate/beatgate/internal/alert"
	"github.com/beatgate/beatgate/internal/channel"
	"github.com/beatgate/beatgate/internal/config"
	"github.com/beatgate/beatgate/internal/geoloc"
	"github.com/beatgate/beatgate/internal/httpd"
	"github.com/beatgate/beatgate/internal/logging"
	"github.com/beatgate/beatgate/internal/login"
	"github.com/beatgate/beatgate/internal/observability"
	"github.com/beatgate/beatgate/internal/session"
	"github.com/beatgate/beatgate/internal/stream"
	"github.com/beatgate/beatgate/internal/user"
	"github.com/beatgate/beatgate/internal/user/postgres"
	"github.com/beatgate/beatgate/internal/user/rediscache"
	"github.com/beatgate/beatgate/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the login server",
		Long: `Start the login server: the public login endpoint, the session
registry, and the metrics/health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	// Flag names match config keys so the file and flags layer cleanly.
	cmd.Flags().String("listen", "", "login endpoint listen address")
	cmd.Flags().String("observe_addr", "", "metrics/health listen address (empty = disabled)")
	cmd.Flags().String("database_url", "", "PostgreSQL connection URL")
	cmd.Flags().String("redis_url", "", "Redis connection URL")
	cmd.Flags().String("log_format", "", "log format (json or text)")
	cmd.Flags().String("log_level", "", "log level (debug, info, warn, error)")

	return cmd
}

// runServeWithDeps starts the login server with injectable
// dependencies. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, url string) (Pool, error) {
			return pgxpool.New(ctx, url) //nolint:wrapcheck // caller wraps
		}
	}
	if deps.VerifiedCacheFactory == nil {
		deps.VerifiedCacheFactory = func(ctx context.Context, url string) (VerifiedCache, error) {
			return rediscache.New(ctx, url) //nolint:wrapcheck // caller wraps
		}
	}
	if deps.GeoResolverFactory == nil {
		deps.GeoResolverFactory = func(baseURL string) geoloc.Resolver {
			if baseURL == "" {
				return &geoloc.Static{}
			}
			return geoloc.NewHTTPResolver(baseURL)
		}
	}
	if deps.NotifierFactory == nil {
		deps.NotifierFactory = func(webhookURL string, logger *slog.Logger) alert.Notifier {
			if webhookURL == "" {
				return &alert.LogNotifier{Logger: logger}
			}
			return alert.NewWebhookNotifier(webhookURL, logger)
		}
	}
	if deps.LoginServerFactory == nil {
		deps.LoginServerFactory = func(addr string, gate httpd.Gate, metrics httpd.MetricsRecorder, logger *slog.Logger) LoginServer {
			srv := httpd.NewServer(addr, gate, metrics, logger)
			if cfg.TLSCert != "" {
				srv.UseTLS(cfg.TLSCert, cfg.TLSKey)
			}
			return srv
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, sessions observability.SessionCounter) ObservabilityServer {
			return observability.NewServer(addr, ready, sessions)
		}
	}

	logging.SetDefault("beatgate", version, logging.Options{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
	})
	logger := slog.Default()

	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required")
	}
	if cfg.RedisURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("redis_url is required")
	}

	pool, err := deps.PoolFactory(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	verified, err := deps.VerifiedCacheFactory(ctx, cfg.RedisURL)
	if err != nil {
		return oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := verified.Close(); closeErr != nil {
			logger.Debug("error closing verified cache", "error", closeErr)
		}
	}()
	logger.Info("connected to verified-hardware cache")

	sessions := session.NewRegistry()
	flags := &login.Flags{}

	pipeline, err := login.NewPipeline(login.Deps{
		Users:     postgres.NewStore(pool, user.NewArgon2idHasher()),
		Verified:  verified,
		Sessions:  sessions,
		Channels:  channel.NewRegistry(buildChannels(cfg)...),
		Geo:       deps.GeoResolverFactory(cfg.GeolocAPIURL),
		Alerts:    deps.NotifierFactory(cfg.WebhookURL, logger),
		Broadcast: stream.NewBroadcaster(),
		Config: login.Config{
			MinimumVersion:  cfg.Login.MinimumVersion,
			ProtocolVersion: cfg.Login.ProtocolVersion,
			AntiCheat:       cfg.Login.AntiCheat,
			Announcement:    cfg.Login.Announcement,
			MenuIcon:        cfg.Login.MenuIcon,
			DefaultChannels: cfg.Login.DefaultChannels,
			AdminChannel:    cfg.Login.AdminChannel,
		},
		Flags:  flags,
		Logger: logger,
	})
	if err != nil {
		return oops.Code("PIPELINE_INIT_FAILED").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer ObservabilityServer
	var metrics httpd.MetricsRecorder
	if cfg.ObservePort != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.ObservePort, func() bool { return true }, func() float64 {
			return float64(sessions.Len())
		})
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		if m := obsServer.Metrics(); m != nil {
			metrics = loginMetrics{m: m}
		}
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	loginServer := deps.LoginServerFactory(cfg.Listen, pipeline, metrics, logger)
	loginErrChan, err := loginServer.Start()
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("LOGIN_SERVER_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, loginErrChan, "login")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Login server started")
	logger.Info("login server ready", "addr", loginServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := loginServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping login server", "error", err)
	}
	stopObservability(obsServer, logger)

	logger.Info("shutdown complete")
	return nil
}

// buildChannels materializes the configured channel set.
func buildChannels(cfg *config.Config) []*channel.Channel {
	channels := make([]*channel.Channel, 0, len(cfg.Login.DefaultChannels)+1)
	for _, name := range cfg.Login.DefaultChannels {
		channels = append(channels, &channel.Channel{
			Name:       name,
			Topic:      "general chat",
			PublicRead: true,
		})
	}
	if cfg.Login.AdminChannel != "" {
		channels = append(channels, &channel.Channel{
			Name:   cfg.Login.AdminChannel,
			Topic:  "staff only",
			Hidden: true,
		})
	}
	return channels
}

func stopObservability(obsServer ObservabilityServer, logger *slog.Logger) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error so a failed server triggers graceful shutdown.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			errutil.LogError(slog.Default().With("server", serverName),
				"server error, triggering shutdown", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
