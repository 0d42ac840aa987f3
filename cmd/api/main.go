package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-assistant/internal/api"
	"github.com/dvloznov/expense-assistant/internal/api/handlers"
	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/app"
	"github.com/dvloznov/expense-assistant/internal/config"
	"github.com/dvloznov/expense-assistant/internal/jobs"
	"github.com/dvloznov/expense-assistant/internal/jobs/inmemory"
	"github.com/dvloznov/expense-assistant/internal/logger"
)

func main() {
	cfgFile := flag.String("config", "", "Optional config file (env vars take precedence)")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logger.NewWithConfig(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueSize, cfg.WorkerCount, jobStore)

	var fetcher jobs.Fetcher
	var archiver handlers.MessageArchiver
	if a.Storage != nil {
		fetcher = a.Storage
		archiver = a.Storage
	} else {
		log.Warn().Msg("No GCS bucket configured - raw messages will not be archived")
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Int("workers", cfg.WorkerCount).Msg("Starting job workers")
		if err := jobQueue.Start(workerCtx, jobs.NewProcessMessageHandler(a.Processor, fetcher)); err != nil {
			log.Error().Err(err).Msg("Job workers stopped with error")
		}
	}()

	router := api.NewRouter(api.Handlers{
		Transactions: handlers.NewTransactionsHandler(a.Processor, log),
		Balance:      handlers.NewBalanceHandler(a.Store, a.Cache, log),
		Messages:     handlers.NewMessagesHandler(jobQueue, archiver, log),
		Jobs:         handlers.NewJobsHandler(jobStore, log),
		Rules:        handlers.NewRulesHandler(a.Store, a.Gemini, log),
	}, middleware.AuthConfig{
		Keys:          a.Store,
		StaticKey:     cfg.APIKey,
		DefaultUserID: cfg.DefaultUserID,
		JWTSecret:     cfg.JWTSecret,
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ModelTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
