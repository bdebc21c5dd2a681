package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kardiahealth/kardia/internal/ai"
	"github.com/kardiahealth/kardia/internal/cache"
	"github.com/kardiahealth/kardia/internal/chat"
	"github.com/kardiahealth/kardia/internal/config"
	"github.com/kardiahealth/kardia/internal/httpapi"
	"github.com/kardiahealth/kardia/internal/report"
	"github.com/kardiahealth/kardia/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	db, err := store.NewBoltStore(cfg.DataDir + "/kardia.db")
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer db.Close()

	cacheStore := cache.NewMemory()

	// Expired entries are dropped lazily on read; sweep the rest so the
	// map does not leak between reads.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cacheStore.Sweep()
		}
	}()

	chatClient := ai.NewClient(ai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.ChatTimeout,
		Retries: cfg.Retries,
		Backoff: cfg.Backoff,
	}, logger)
	reportClient := ai.NewClient(ai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.ReportTimeout,
		Retries: cfg.Retries,
		Backoff: cfg.Backoff,
	}, logger)

	chatSvc := chat.NewService(db, chatClient, cacheStore, logger)
	reportSvc := report.NewService(db, reportClient, cacheStore, logger)
	handler := httpapi.NewHandler(db, chatSvc, reportSvc, cacheStore, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	handler.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ReportTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("kardia listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
