package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/dormant-leads/internal/api"
	"github.com/ignite/dormant-leads/internal/app"
	"github.com/ignite/dormant-leads/internal/config"
)

func main() {
	log.Println("Starting dormant-leads API server...")

	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Environment: %s", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// A single-binary deployment runs the schedulers next to the API; the
	// distributed lease keeps replicas from doubling up.
	if strings.EqualFold(os.Getenv("RUN_WORKERS"), "true") {
		a.StartWorkers(ctx)
	}

	handlers := api.NewHandlers(a.Services(), cfg.Dispatch.LandingURL)
	server := api.NewServer(cfg.Server, handlers, api.RouteOptions{
		Metrics: a.Metrics.Handler(),
		Health:  api.NewHealthChecker(a.DB, a.Redis),
	})

	go func() {
		addr := cfg.Server.Addr()
		log.Printf("API server listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	log.Println("Server stopped")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}
