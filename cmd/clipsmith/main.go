package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/clipsmith/clipsmith/internal/agent"
	"github.com/clipsmith/clipsmith/internal/api"
	"github.com/clipsmith/clipsmith/internal/config"
	"github.com/clipsmith/clipsmith/internal/events"
	"github.com/clipsmith/clipsmith/internal/llm"
	"github.com/clipsmith/clipsmith/internal/pipeline"
	"github.com/clipsmith/clipsmith/internal/store"
	"github.com/clipsmith/clipsmith/internal/style"
	"github.com/clipsmith/clipsmith/internal/transcript"
	"github.com/clipsmith/clipsmith/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("clipsmith starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// OpenRouter client
	if cfg.OpenRouterAPIKey == "" {
		slog.Error("OPENROUTER_API_KEY is required")
		os.Exit(1)
	}
	client := llm.NewClient(cfg.OpenRouterAPIKey)
	slog.Info("llm client ready",
		"generator", cfg.GeneratorModel,
		"critic", cfg.CriticModel,
		"refiner", cfg.RefinerModel,
	)

	resolver := transcript.NewResolver()

	orch := pipeline.New(client, resolver, pipeline.Models{
		Generator: cfg.GeneratorModel,
		Critic:    cfg.CriticModel,
		Refiner:   cfg.RefinerModel,
	}, slog.Default())

	analyzer := style.New(client, cfg.StyleModel, slog.Default())

	tools := agent.NewToolbox(client, analyzer, resolver, cfg.GeneratorModel, cfg.CriticModel, slog.Default())
	loop := agent.NewLoop(client, tools, cfg.AgentModel, slog.Default())

	// Database (optional — generation works without persistence)
	var db *store.Store
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set — running without persistence")
	}

	// NATS (optional — HTTP-only mode without it)
	var eventsClient *events.Client
	if cfg.NatsURL != "" {
		var err error
		eventsClient, err = events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Warn("failed to connect to NATS — running without events", "error", err)
		} else {
			defer eventsClient.Close()
			slog.Info("NATS connected", "url", cfg.NatsURL)
		}
	}

	if eventsClient != nil {
		var saver worker.Saver
		var publisher worker.Publisher
		if db != nil {
			saver = db
		}
		publisher = eventsClient

		w := worker.New(orch, saver, publisher, slog.Default())
		if err := eventsClient.Subscribe(events.SubjectTranscriptStored, w.HandleTranscriptStored); err != nil {
			slog.Error("failed to subscribe to transcript events", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	deps := api.Deps{
		Pipeline: orch,
		Analyzer: analyzer,
		Agent:    loop,
		Logger:   slog.Default(),
	}
	if db != nil {
		deps.Store = db
	}
	if eventsClient != nil {
		deps.Events = eventsClient
	}
	srv := api.NewServer(cfg.Port, deps)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	if eventsClient != nil {
		if err := eventsClient.Publish("clipsmith.service.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("clipsmith ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("clipsmith stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
