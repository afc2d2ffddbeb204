package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/amrheing/mytools-gps-suite/internal/config"
	httpserver "github.com/amrheing/mytools-gps-suite/internal/http"
	"github.com/amrheing/mytools-gps-suite/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	srv, err := httpserver.NewServer(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("server stopped with error: %v", err)
	}
}
