package commands

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/assistant"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/bus"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/channels"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/channels/discord"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/channels/telegram"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/claudecode"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/config"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/scheduler"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/storage"
)

// newServeCmd creates the `homeclaw serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon with messaging channels",
		Long: `Start homeclaw as a daemon service, connecting to enabled
channels (Telegram, Discord) and processing messages.

Examples:
  homeclaw serve
  homeclaw serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	// Resolve secrets from vault → keyring → env before wiring anything.
	assistant.ResolveSecrets(cfg, logger)

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Register the configured messaging channels.
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		tg := telegram.New(telegram.Config{
			Token:           cfg.Channels.Telegram.Token,
			AllowedChats:    cfg.Channels.Telegram.AllowedChats,
			RespondToGroups: true,
			RespondToDMs:    true,
			ParseMode:       cfg.Channels.Telegram.ParseMode,
		}, logger)
		if err := app.manager.Register(tg); err != nil {
			logger.Error("failed to register Telegram", "error", err)
		}
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		dc := discord.New(discord.Config{
			Token:           cfg.Channels.Discord.Token,
			AllowedGuilds:   cfg.Channels.Discord.AllowedGuilds,
			AllowedChannels: cfg.Channels.Discord.AllowedChannels,
		}, logger)
		if err := app.manager.Register(dc); err != nil {
			logger.Error("failed to register Discord", "error", err)
		}
	}

	if err := app.start(ctx); err != nil {
		return err
	}

	logger.Info("homeclaw running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")
	app.stop(cancel)
	return nil
}

// app bundles the wired components shared by serve and chat.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	bus       *bus.Bus
	manager   *channels.Manager
	executor  *claudecode.Executor
	scheduler *scheduler.Scheduler
	assistant *assistant.Assistant
}

// buildApp wires the core components from config. Channels are registered
// by the caller before start.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	b := bus.New()
	manager := channels.NewManager(logger)

	registry := claudecode.NewRegistry(cfg.ClaudeCode.RegistryPath)
	perms := claudecode.NewPermissionStore(cfg.ClaudeCode.PermissionsPath, logger)
	runner := claudecode.NewCLIRunner(cfg.ClaudeCode.CLIPath, logger)
	executor := claudecode.NewExecutor(registry, perms, runner, b, logger)

	history := assistant.NewHistory(
		cfg.History.MaxEntries,
		time.Duration(cfg.History.TTLHours)*time.Hour,
		assistant.NewSQLiteHistory(db, logger),
		logger,
	)

	sched := scheduler.New(scheduler.NewSQLiteStorage(db, logger), b, logger)

	tools := assistant.NewToolRegistry(logger)
	assistant.RegisterTodoistTools(tools, cfg.Tools.Todoist)
	assistant.RegisterNotionTools(tools, cfg.Tools.Notion)
	assistant.RegisterSearchTools(tools, cfg.Tools.Brave)
	assistant.RegisterReminderTools(tools, sched)
	asst := assistant.New(cfg, b, manager, registry, perms, executor, history, tools, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		bus:       b,
		manager:   manager,
		executor:  executor,
		scheduler: sched,
		assistant: asst,
	}, nil
}

// start connects the channels and launches executor, scheduler and the
// assistant loop.
func (a *app) start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}
	a.executor.Start(ctx)
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	go a.assistant.Start(ctx)
	return nil
}

// stop shuts everything down, waiting briefly for in-flight work.
func (a *app) stop(cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		a.scheduler.Stop()
		a.manager.Stop()
		cancel()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		a.logger.Warn("shutdown timed out, forcing exit")
	}
}
