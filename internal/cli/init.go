// Package cli provides the shared initialization used by cmd/finbook:
// env loading, logging setup, config validation, and store wiring.
package cli

import (
	"os"

	"github.com/joho/godotenv"

	"finbook/internal/config"
	"finbook/internal/log"
	"finbook/internal/storage"
)

// LoadEnvFile loads the .env file for local development. Errors are
// ignored; the file is optional.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the root logger at the configured level and sets
// it as the slog default.
func SetupLogger(level string) *log.Logger {
	logger := log.New(log.Config{Level: log.ParseLevel(level)})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration or exits the process on
// validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenStores opens both databases or exits the process on failure.
func OpenStores(logger *log.Logger, cfg *config.Config) (*storage.UserStore, *storage.FinanceStore) {
	users, err := storage.OpenUserStore(cfg.UsersDBPath)
	if err != nil {
		logger.Error("Failed to open user store", log.FieldError, err, "path", cfg.UsersDBPath)
		os.Exit(1)
	}

	finance, err := storage.OpenFinanceStore(cfg.FinanceDBPath)
	if err != nil {
		users.Close()
		logger.Error("Failed to open finance store", log.FieldError, err, "path", cfg.FinanceDBPath)
		os.Exit(1)
	}

	return users, finance
}
