package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ledgerbot/internal/amqp"
	"ledgerbot/internal/bot"
	"ledgerbot/internal/charts"
	"ledgerbot/internal/config"
	"ledgerbot/internal/log"
	"ledgerbot/internal/nlp"
	"ledgerbot/internal/service"
	"ledgerbot/internal/session"
	"ledgerbot/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	logger.Info("Starting ledgerbot")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	llm := nlp.NewOpenAIClient(nlp.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.OpenAITimeout,
	})
	resolver := nlp.NewResolver(llm, logger)
	classifier := nlp.NewClassifier(llm, repo, logger)

	dispatcher := service.NewDispatcher(
		repo,
		classifier,
		session.NewStore(),
		service.NewAlertEvaluator(repo, logger),
		logger,
	).WithCharts(charts.NewGenerator())

	// The export pipeline is optional; without a broker the bot still records
	// everything locally.
	if cfg.ExportEnabled() {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()
		dispatcher.WithPublisher(amqpClient)
		logger.Info("Export pipeline enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Export pipeline disabled - no AMQP_URL provided")
	}

	tgBot, err := bot.New(cfg.TelegramToken, resolver, dispatcher, logger)
	if err != nil {
		logger.Error("Failed to initialize Telegram bot", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tgBot.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("Bot stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}
