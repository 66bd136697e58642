package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/tolmv/elasticsearch/internal/config"
	"github.com/tolmv/elasticsearch/internal/container"
)

func main() {
	log.Info("Starting product matching service...")

	// Load configuration using viper
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}
	log.Info("Configuration loaded successfully")

	// Initialize container with all dependencies
	app, err := container.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	// Run the full matching run
	if err := app.Run(context.Background()); err != nil {
		app.Close()
		log.Fatalf("Application exited with error: %v", err)
	}

	app.Close()
	log.Info("Application finished successfully")
}
