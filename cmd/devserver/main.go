package main

import (
	"fmt"
	"os"

	"github.com/lalith-99/chatcore/internal/config"
	"github.com/lalith-99/chatcore/internal/devserver"
	"github.com/lalith-99/chatcore/internal/models"
	"github.com/lalith-99/chatcore/internal/observ"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	server := devserver.New(cfg.JWTSecret, logger)

	// One elevated account so the approval workflow is usable out of the
	// box; everyone registered through the API is standard.
	admin := server.Store().SeedUser("admin", models.CapabilityElevated)
	logger.Info("seeded elevated user",
		zap.String("user_id", admin.ID),
		zap.String("display_name", admin.DisplayName),
	)

	return server.Run(":" + cfg.Port)
}
