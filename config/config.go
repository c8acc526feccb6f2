// Package config loads process configuration from the environment, an
// optional .env file and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	Port                int
	DBPath              string
	SeedFile            string
	CutoffCheckInterval time.Duration
	CutoffCheckEnabled  bool
	CORSOrigins         []string
	ShutdownTimeout     time.Duration
}

// Load reads .env (if present), the environment, then args as flags.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Environment:         getEnv("APP_ENV", "production"),
		Port:                getEnvInt("HTTP_PORT", 8080),
		DBPath:              getEnv("DB_PATH", "attendance.db"),
		SeedFile:            getEnv("SEED_FILE", ""),
		CutoffCheckInterval: getEnvDuration("CUTOFF_CHECK_INTERVAL", time.Hour),
		CutoffCheckEnabled:  getEnvBool("CUTOFF_CHECK_ENABLED", false),
		CORSOrigins:         splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		ShutdownTimeout:     getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, `SQLite database path (":memory:" for in-memory)`)
	fs.StringVar(&cfg.SeedFile, "seed", cfg.SeedFile, "JSON master document loaded at startup")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) IsDevelopment() bool { return c.Environment == "development" }

func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.CutoffCheckEnabled && c.CutoffCheckInterval <= 0 {
		return fmt.Errorf("CUTOFF_CHECK_INTERVAL must be positive when the cutoff check is enabled")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
