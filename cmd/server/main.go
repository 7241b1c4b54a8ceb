// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/warden/internal/api"
	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/authz"
	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/mail"
	"github.com/tomtom215/warden/internal/supervisor"
	"github.com/tomtom215/warden/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Warden with supervisor tree")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	directory, err := database.NewCachedDirectory(db, cfg.Database.UserCacheSize)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create user directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The policy must be loaded before any request is served.
	enforcer, err := authz.NewEnforcer(ctx, &cfg.Authz,
		authz.NewAdapter(db, cfg.Authz.StoreTimeout),
		authz.WithUserLookup(directory))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize policy enforcer")
	}
	defer func() {
		if err := enforcer.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing policy enforcer")
		}
	}()
	logging.Info().Int("rules", len(enforcer.Rules())).Msg("Policy loaded")
	resolver := authz.NewRoleResolver(enforcer)

	blocklist, err := auth.OpenBadgerBlocklist(cfg.Security.BlocklistPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open token blocklist")
	}
	defer func() {
		if err := blocklist.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing token blocklist")
		}
	}()

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	mailer, err := mail.New(&cfg.Mail)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize mailer")
	}

	svc := auth.NewService(cfg, db, db, resolver, mailer, jwtManager, blocklist,
		auth.WithUserCache(directory), auth.WithReservedNames(enforcer))

	eventStore := audit.NewDuckDBStore(db.Conn())
	if err := eventStore.CreateTable(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event log table")
	}
	events := audit.NewLogger(eventStore, cfg.Audit)

	health := api.NewHandler(db, enforcer, version)
	authzMW := authz.NewMiddleware(enforcer, events)
	router := api.NewRouter(api.RouterDeps{
		Health:        health,
		Accounts:      api.NewAccountHandlers(svc, resolver, events, cfg.Authz.GlobalDomain, cfg.IsProduction()),
		Events:        api.NewEventHandlers(events, cfg.Authz.GlobalDomain),
		AuthzHandlers: authz.NewHandlers(enforcer, resolver, authzMW, directory, events),
		Authz:         authzMW,
		Auth:          auth.NewMiddleware(jwtManager, blocklist),
		ChiMiddleware: api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security)),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), treeCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Policy layer services
	tree.AddPolicyService(services.NewPolicyReloadService(enforcer, cfg.Authz.ReloadInterval))
	tree.AddPolicyService(services.NewEventLogService(events))

	maintenance, err := services.NewMaintenanceService(cfg.Maintenance.Schedule,
		services.MaintenanceJob{Name: "activation-codes", Run: func(ctx context.Context) error {
			_, err := db.PurgeCodes(ctx, time.Now().UTC())
			return err
		}},
		services.MaintenanceJob{Name: "event-log", Run: func(ctx context.Context) error {
			_, err := events.Purge(ctx)
			return err
		}},
		services.MaintenanceJob{Name: "token-blocklist", Run: func(context.Context) error {
			return blocklist.RunGC()
		}},
		services.MaintenanceJob{Name: "login-throttle", Run: func(context.Context) error {
			svc.Throttle().Cleanup()
			return nil
		}},
	)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create maintenance service")
	}
	tree.AddPolicyService(maintenance)
	logging.Info().
		Dur("reload_interval", cfg.Authz.ReloadInterval).
		Str("maintenance_schedule", cfg.Maintenance.Schedule).
		Msg("Policy layer services added to supervisor tree")

	// API layer services
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout, services.WithDrainer(health)))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// The channel receives exactly one value and is never closed.
	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		serveErr = <-errCh
	case serveErr = <-errCh:
		cancel()
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logging.Error().Err(serveErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
