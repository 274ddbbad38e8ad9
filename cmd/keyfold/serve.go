// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/auth"
	"github.com/keyfold/keyfold/internal/auth/memory"
	"github.com/keyfold/keyfold/internal/auth/postgres"
	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/observability"
	"github.com/keyfold/keyfold/internal/store"
	"github.com/keyfold/keyfold/internal/web"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential API server",
		Long: `Start the HTTP credential API and the observability endpoints.
Configuration comes from the config file, overridden by flags.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", ":8080", "credential API listen address")
	cmd.Flags().String("metrics_listen", ":9100", "observability listen address")
	cmd.Flags().String("database_url", "", "PostgreSQL connection string")
	cmd.Flags().Bool("in_memory", false, "use the in-process repository instead of PostgreSQL")
	cmd.Flags().String("log_format", "json", "log format (json or text)")
	cmd.Flags().String("log_level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault("keyfold", version, cfg.LogFormat, cfg.LogLevel)
	logger := slog.Default()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var users auth.UserRepository
	var ready observability.ReadinessChecker
	if cfg.InMemory {
		logger.Warn("using in-memory repository, state will not survive restarts")
		users = memory.NewUserRepository()
	} else {
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		users = postgres.NewUserRepository(pool)
		ready = func() bool {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx) == nil
		}
	}

	svc, err := auth.NewServiceWithLogger(users, auth.NewArgon2idHasher(), logger)
	if err != nil {
		return err
	}

	obsSrv := observability.NewServer(cfg.MetricsListen, ready)
	obsErrs, err := obsSrv.Start()
	if err != nil {
		return oops.Code("SERVER_START_FAILED").With("server", "observability").Wrap(err)
	}

	webSrv := web.NewServer(cfg.Listen, svc, obsSrv.Metrics(), logger)
	webErrs, err := webSrv.Start()
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = obsSrv.Stop(stopCtx)
		return oops.Code("SERVER_START_FAILED").With("server", "web").Wrap(err)
	}

	logger.Info("keyfold started",
		slog.String("listen", webSrv.Addr()),
		slog.String("metrics_listen", obsSrv.Addr()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-webErrs:
		serveErr = oops.Code("SERVER_FAILED").With("server", "web").Wrap(err)
	case err := <-obsErrs:
		serveErr = oops.Code("SERVER_FAILED").With("server", "observability").Wrap(err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := webSrv.Stop(stopCtx); err != nil {
		logger.Error("web server shutdown failed", slog.Any("error", err))
	}
	if err := obsSrv.Stop(stopCtx); err != nil {
		logger.Error("observability server shutdown failed", slog.Any("error", err))
	}

	logger.Info("keyfold stopped")
	return serveErr
}
