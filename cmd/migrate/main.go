package main

import (
	"log"

	"tmpshare/internal/config"
	"tmpshare/internal/logging"
	"tmpshare/internal/migrations"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	version, err := migrations.Apply(cfg)
	if err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	logger.Info("migrations applied", zap.String("driver", cfg.DBDriver), zap.Uint("version", version))
}
