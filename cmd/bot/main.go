package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bestieSonya/StarBotShop/internal/config"
	"github.com/bestieSonya/StarBotShop/internal/referral"
	"github.com/bestieSonya/StarBotShop/internal/settlement"
	"github.com/bestieSonya/StarBotShop/internal/shop"
	"github.com/bestieSonya/StarBotShop/internal/storage"
	"github.com/bestieSonya/StarBotShop/internal/telegram"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	// Initialize ledger store
	store := storage.New(cfg.DataPath, log)
	log.Info("ledger initialized", "path", store.Path())

	// Initialize telegram adapter
	tg, err := telegram.New(cfg.BotToken, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}

	// Wire the core: referral engine, settlement, conversation engine
	refs := referral.New(store, cfg.BotUsername, cfg.RefShare(), log)
	settler := settlement.New(cfg, store, refs, tg, log)
	engine := shop.NewEngine(cfg, store, refs, settler, tg, log)
	tg.Attach(engine)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...", "bot", cfg.BotUsername, "admin_id", cfg.AdminID)
	tg.Start(ctx)
}
