// Package config handles application configuration loading.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL = "https://api.saptiva.com/v1"
	DefaultAPIURL  = "http://localhost:8001"
	DefaultModel   = "Saptiva Turbo"
	AppName        = "copilotos"
)

var ErrMissingAPIKey = errors.New("SAPTIVA_API_KEY is not set")

// Config holds all configuration for the application.
type Config struct {
	Saptiva SaptivaConfig
	API     APIConfig
	Model   string
	// DBPath is the SQLite chat history file.
	DBPath string
	// ToolsFile is the optional YAML tool visibility file.
	ToolsFile string
	Log       LogConfig
}

// SaptivaConfig holds the model gateway settings.
type SaptivaConfig struct {
	APIKey  string
	BaseURL string
}

// APIConfig holds the Copilotos API settings used for uploads and reviews.
type APIConfig struct {
	URL   string
	Token string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
	// File is where logs are written; stdout belongs to the terminal UI.
	File string
}

// Load loads configuration from a .env file, when present, and the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Saptiva: SaptivaConfig{
			APIKey:  getEnv("SAPTIVA_API_KEY", ""),
			BaseURL: getEnv("SAPTIVA_BASE_URL", DefaultBaseURL),
		},
		API: APIConfig{
			URL:   getEnv("COPILOTOS_API_URL", DefaultAPIURL),
			Token: getEnv("COPILOTOS_API_TOKEN", ""),
		},
		Model:     getEnv("COPILOTOS_MODEL", DefaultModel),
		DBPath:    getEnv("COPILOTOS_DB", filepath.Join(dir, AppName+".db")),
		ToolsFile: getEnv("COPILOTOS_TOOLS_FILE", filepath.Join(dir, "tools.yaml")),
		Log: LogConfig{
			Level: getEnv("COPILOTOS_LOG_LEVEL", "info"),
			File:  getEnv("COPILOTOS_LOG_FILE", filepath.Join(dir, AppName+".log")),
		},
	}
	return cfg, nil
}

// Validate reports settings the application cannot start without.
func (c *Config) Validate() error {
	if c.Saptiva.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Dir returns the per-user configuration directory, creating it if needed.
func Dir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, AppName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
