package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vktrack/vktrack/internal/api"
	"github.com/vktrack/vktrack/internal/auth"
	"github.com/vktrack/vktrack/internal/bot"
	"github.com/vktrack/vktrack/internal/config"
	"github.com/vktrack/vktrack/internal/database"
	"github.com/vktrack/vktrack/internal/logging"
	"github.com/vktrack/vktrack/internal/metrics"
	"github.com/vktrack/vktrack/internal/notify"
	"github.com/vktrack/vktrack/internal/server"
	"github.com/vktrack/vktrack/internal/telegram"
	"github.com/vktrack/vktrack/internal/tracker"
	"github.com/vktrack/vktrack/internal/vk"
)

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		bootLogger.Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting vktrack")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(db, "./migrations", logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	store := database.NewPostgresStore(db)

	vkClient := vk.NewClient(cfg.VK, logging.Component(logger, "vk"))
	tgClient := telegram.NewClient(cfg.Telegram, logging.Component(logger, "telegram"))

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(
		tgClient,
		vk.NewNameCache(vkClient),
		collector,
		logging.Component(logger, "notify"),
	)

	trk := tracker.New(store, vkClient, dispatcher, collector,
		logging.Component(logger, "tracker"), cfg.Tracker)

	if err := trk.Start(ctx); err != nil {
		logger.Error("tracker failed to start", "error", err)
		notifyAdmin(ctx, tgClient, cfg.Telegram.AdminChatID, logger,
			fmt.Sprintf("vktrack started without tracking: %v", err))
		// The admin API stays up so the problem can be inspected.
	}

	commandBot := bot.New(store, tgClient, tgClient, vkClient,
		logging.Component(logger, "bot"))
	go commandBot.Run(ctx)

	authConfig := auth.LoadConfigFromEnv()

	mux := http.NewServeMux()
	api.SetupRoutes(mux, store, trk, db, authConfig, collector, logger)

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	waitForSignal(ctx, logger)

	cancel()
	trk.Stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("vktrack stopped")
}

func notifyAdmin(ctx context.Context, tg *telegram.Client, chatID int64, logger *slog.Logger, text string) {
	if chatID == 0 {
		return
	}
	if err := tg.Deliver(ctx, chatID, text, false); err != nil {
		logger.Error("failed to notify admin", "error", err)
	}
}

func waitForSignal(ctx context.Context, logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}
}
