// Package common provides shared configuration and telemetry for the
// space weather tools.
package common

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds common configuration for all applications.
type Config struct {
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	DataDir            string
	LogLevel           string
	RefreshMinutes     int
}

// DefaultConfig returns configuration from the environment with sensible
// defaults. A .env file in the working directory is loaded first when
// present, so deployments can keep credentials out of unit files.
func DefaultConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		ClickHouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "swx"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		DataDir:            getEnv("SWX_DATA_DIR", "/var/lib/swx"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RefreshMinutes:     getEnvInt("SWX_REFRESH_MINUTES", 180),
	}
}

// BulletinDir returns the bulletin mirror directory path.
func (c *Config) BulletinDir() string {
	return filepath.Join(c.DataDir, "bulletins")
}

// CombinedDir returns the combined series output directory path.
func (c *Config) CombinedDir() string {
	return filepath.Join(c.DataDir, "combined")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
