package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/nyukoku/external/config"
	denylistimpl "github.com/foxseedlab/nyukoku/external/denylist"
	discordimpl "github.com/foxseedlab/nyukoku/external/discord"
	extractorimpl "github.com/foxseedlab/nyukoku/external/extractor"
	"github.com/foxseedlab/nyukoku/external/httpserver"
	repositoryimpl "github.com/foxseedlab/nyukoku/external/repository"
	sponsorimpl "github.com/foxseedlab/nyukoku/external/sponsor"
	verifierimpl "github.com/foxseedlab/nyukoku/external/verifier"
	webhookimpl "github.com/foxseedlab/nyukoku/external/webhook"
	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/confirmation"
	"github.com/foxseedlab/nyukoku/internal/discord"
	"github.com/foxseedlab/nyukoku/internal/inspection"
	"github.com/foxseedlab/nyukoku/internal/metrics"
	"github.com/foxseedlab/nyukoku/internal/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

const discordConnectTimeout = 20 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review bot (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	slog.Info("startup: loading configuration")
	cfg, err := configloader.Load()
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)
	return runBot(cfg, injector)
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	denylistimpl.RegisterDI(injector)
	verifierimpl.RegisterDI(injector)
	sponsorimpl.RegisterDI(injector)
	extractorimpl.RegisterDI(injector)
	discordimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	metrics.RegisterDI(injector)
	confirmation.RegisterDI(injector)
	inspection.RegisterDI(injector)
	session.RegisterDI(injector)
	httpserver.RegisterDI(injector)

	return injector
}

func runBot(cfg *config.Config, injector do.Injector) error {
	pool, err := do.Invoke[*pgxpool.Pool](injector)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer pool.Close()

	dc, err := do.Invoke[discord.Client](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve discord client: %w", err)
	}
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve session manager: %w", err)
	}
	server, err := do.Invoke[*httpserver.Server](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve http server: %w", err)
	}
	metrics.RegisterOpenGauges(prometheus.DefaultRegisterer, manager.OpenSessions, manager.OpenRounds)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancelConnect()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		return fmt.Errorf("discord connect failed: %w", err)
	}
	slog.Info("startup: discord connected")
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	dc.RegisterMessageHandler(manager.HandleMessage)
	dc.RegisterComponentHandler(manager.HandleComponent)
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID, "ticket_category_id", cfg.TicketCategoryID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go manager.Run(ctx)
	go func() {
		if err := server.Run(ctx); err != nil {
			slog.Error("http server failed", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case <-done:
	}
	return nil
}
