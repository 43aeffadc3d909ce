package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/janus/internal/config"
	"github.com/dropDatabas3/janus/internal/http/server"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// version se inyecta en build time via -ldflags.
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfgPath := flag.String("config", "config.yaml", "path al archivo de configuración")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       os.Getenv("JANUS_LOG_LEVEL"),
		ServiceName: "janus",
		Version:     version,
	})
	defer logger.L().Sync()

	handler, cleanup, err := server.Build(context.Background(), cfg, version)
	if err != nil {
		logger.L().Fatal("wiring failed", logger.Err(err))
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.L().Warn("cleanup error", logger.Err(err))
		}
	}()

	logger.L().Info("janus listening",
		logger.String("addr", cfg.Server.Addr),
		logger.String("issuer", cfg.Server.BaseURL),
		logger.String("storage", cfg.Storage.Driver),
	)

	if err := server.Serve(cfg.Server.Addr, handler); err != nil {
		logger.L().Fatal("server failed", logger.Err(err))
	}
	logger.L().Info("shutdown complete")
}
