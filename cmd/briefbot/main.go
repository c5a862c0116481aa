package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"briefbot/internal/api"
	"briefbot/internal/config"
	"briefbot/internal/db"
	"briefbot/internal/executor"
	"briefbot/internal/llm"
	"briefbot/internal/notify"
	"briefbot/internal/planner"
	"briefbot/internal/scheduler"
	"briefbot/internal/services"
	"briefbot/internal/stream"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			// Default behavior, fall through
		case "help", "--help", "-h":
			printHelp()
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
			printHelp()
			os.Exit(1)
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "briefbot",
	})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer database.Close()

	// Sweep runs interrupted by a previous crash
	if n, err := database.MarkStaleRunsAsFailed(); err == nil && n > 0 {
		logger.Warn("marked stale runs as failed", "count", n)
	}

	provider, err := llm.New(llm.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
	})
	if err != nil {
		return fmt.Errorf("initializing LLM provider: %w", err)
	}

	svcs := services.Map{
		"llm":      services.NewLLMService(provider),
		"search":   services.NewSearchService(),
		"calendar": services.NewUnconfiguredService("calendar", "a calendar provider"),
		"youtube":  services.NewUnconfiguredService("youtube", "a YouTube API client"),
		"gmail": services.NewMailService(services.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}),
	}

	streamMgr := stream.NewManager()
	exec := executor.New(database, svcs, logger,
		executor.WithStreamManager(streamMgr),
		executor.WithNotifier(notify.NewNotifier(logger)),
		executor.WithStepTimeout(cfg.StepTimeout),
	)

	sched := scheduler.New(database, exec, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	translator := planner.New(provider, logger)
	server := api.NewServer(database, sched, exec, translator, streamMgr)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("API server listening", "addr", cfg.ListenAddr, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func printHelp() {
	fmt.Println(`briefbot - Describe recurring briefings in plain language, get them on schedule

Usage:
  briefbot [serve]          Run the scheduler and HTTP API
  briefbot help             Show this help message

Environment Variables:
  BRIEFBOT_LISTEN_ADDR      HTTP listen address (default :8080)
  BRIEFBOT_DB_PATH          SQLite path (default ~/.briefbot/briefbot.db)
  BRIEFBOT_LLM_PROVIDER     openai | anthropic | ollama (default openai)
  BRIEFBOT_LLM_MODEL        Model name (default gpt-4o-mini)
  BRIEFBOT_LLM_API_KEY      Provider API key
  BRIEFBOT_LLM_BASE_URL     Override provider endpoint
  BRIEFBOT_SMTP_HOST        SMTP host for gmail.send
  BRIEFBOT_SMTP_PORT        SMTP port (default 587)
  BRIEFBOT_SMTP_USERNAME    SMTP username
  BRIEFBOT_SMTP_PASSWORD    SMTP password
  BRIEFBOT_SMTP_FROM        From address for outgoing mail
  BRIEFBOT_STEP_TIMEOUT     Per-step timeout (default 2m)`)
}
