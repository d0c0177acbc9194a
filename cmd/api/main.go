package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/heydoc-scheduler/internal/api/router"
	"github.com/wolfman30/heydoc-scheduler/internal/app/bootstrap"
	appconfig "github.com/wolfman30/heydoc-scheduler/internal/config"
	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

func main() {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting heydoc-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	metricsHandler, registry := setupMetrics()

	engine, err := bootstrap.BuildEngine(ctx, cfg, logger, registry)
	if err != nil {
		logger.Error("failed to build scheduling engine", "error", err)
		os.Exit(1)
	}
	if engine.Session.Authenticated() {
		if _, err := engine.Appointments.Refresh(ctx); err != nil {
			logger.Warn("initial appointment load failed", "error", err)
		}
	}

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Scheduling:         engine.Handler(),
		Session:            engine.Session,
		OnSessionChange:    engine.ResetSession,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:          cfg.APIRateLimit,
		RateBurst:          cfg.APIBurst,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := engine.Close(); err != nil {
		logger.Warn("engine close failed", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics builds a dedicated registry with the runtime collectors and
// returns its scrape handler.
func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

