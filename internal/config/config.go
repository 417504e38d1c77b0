package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Databases. Identity and finance data live in separate files so
	// credential storage can be backed up and permissioned on its own.
	UsersDBPath   string
	FinanceDBPath string

	// Import worker
	ImportWorkers int
	ImportTimeout time.Duration

	// Login history default page size (0 means unlimited)
	HistoryLimit int

	// Logging
	LogLevel string
}

func Load() *Config {
	return &Config{
		UsersDBPath:   getEnv("FINBOOK_USERS_DB", "./data/users.db"),
		FinanceDBPath: getEnv("FINBOOK_FINANCE_DB", "./data/finance.db"),

		ImportWorkers: getEnvInt("FINBOOK_IMPORT_WORKERS", 2),
		ImportTimeout: getEnvDuration("FINBOOK_IMPORT_TIMEOUT", 0),

		HistoryLimit: getEnvInt("FINBOOK_HISTORY_LIMIT", 10),

		LogLevel: getEnv("FINBOOK_LOG_LEVEL", "info"),
	}
}

// Validate checks the configuration and returns all problems at once.
func (c *Config) Validate() error {
	var errs []string

	for _, p := range []struct{ name, path string }{
		{"users database", c.UsersDBPath},
		{"finance database", c.FinanceDBPath},
	} {
		if p.path == "" {
			errs = append(errs, fmt.Sprintf("%s path cannot be empty", p.name))
			continue
		}
		dir := filepath.Dir(p.path)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create %s directory '%s': %v", p.name, dir, err))
				}
			}
		}
	}

	if c.UsersDBPath != "" && c.UsersDBPath == c.FinanceDBPath {
		errs = append(errs, "users and finance databases must be separate files")
	}

	if c.ImportWorkers < 1 {
		errs = append(errs, fmt.Sprintf("invalid import workers %d: must be at least 1", c.ImportWorkers))
	} else if c.ImportWorkers > 32 {
		errs = append(errs, fmt.Sprintf("invalid import workers %d: must be at most 32", c.ImportWorkers))
	}

	if c.ImportTimeout < 0 {
		errs = append(errs, fmt.Sprintf("invalid import timeout %v: must not be negative", c.ImportTimeout))
	}

	if c.HistoryLimit < 0 {
		errs = append(errs, fmt.Sprintf("invalid history limit %d: must not be negative", c.HistoryLimit))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
