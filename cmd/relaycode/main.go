package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/relaycode/internal/config"
	"github.com/tjfontaine/relaycode/pkg/relaycode"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	seedPath := flag.String("seed", "", "seed YAML file (overrides seed.path)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	opts := []relaycode.Option{
		relaycode.WithLogger(logger),
		relaycode.WithFileConfig(*configPath),
	}
	if *seedPath != "" {
		opts = append(opts, relaycode.WithSeedFile(*seedPath))
	}

	app, err := relaycode.New(opts...)
	if err != nil {
		log.Fatalf("Failed to create relay: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start relay: %v", err)
	}

	logger.Info("relay listening", slog.String("addr", app.Addr().String()))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping relay...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
