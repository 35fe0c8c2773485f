/*
Package config loads the server configuration.

SOURCES (later wins):
  1. Defaults
  2. .env file in the working directory, if present (godotenv)
  3. Environment variables
  4. Command-line flags (applied by cmd/server)

ENVIRONMENT:
  PORT          HTTP port (default 8080)
  DB_PATH       SQLite database path (default ppug.db, ":memory:" allowed)
  LOG_LEVEL     debug|info|warn|error (default info)
  LOG_FORMAT    json|console (default json)
  CORS_ORIGINS  comma-separated allowed origins
*/
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	DBPath      string
	CORSOrigins []string

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	cfg := &Config{}
	cfg.Port = 8080
	if v, err := strconv.Atoi(getEnv("PORT", "")); err == nil && v > 0 {
		cfg.Port = v
	}
	cfg.DBPath = getEnv("DB_PATH", "ppug.db")
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080"))
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
