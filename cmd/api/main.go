package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cogmanager/internal/api"
	"cogmanager/internal/app"
	"cogmanager/internal/config"
	"cogmanager/pkg/logger"
	"cogmanager/pkg/otel"
)

var version = "dev"

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting cogmanager api...",
		zap.String("port", cfg.Server.Port),
		zap.String("db_host", cfg.DB.Host),
		zap.String("timezone", cfg.Scheduler.Timezone),
	)

	shutdownTracing, err := otel.Init(cfg.Otel, version, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to init app", zap.Error(err))
	}
	defer a.Close()

	router := api.NewRouter(api.Deps{
		Intentions:                  a.Intentions,
		Push:                        a.Pushes,
		Checks:                      a.Reminders,
		DB:                          a.DB,
		JWTSecret:                   cfg.JWT.Secret,
		RequireServiceRoleForChecks: cfg.Auth.RequireServiceRoleForChecks,
		Logger:                      log,
	})

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down api gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("api shutdown complete")
}
