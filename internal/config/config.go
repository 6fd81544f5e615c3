// Package config loads Neyasbook settings from defaults, a JSON config
// file, a .env file and NEYAS_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	OpenAI  OpenAIConfig
	Chat    ChatConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port       int
	CORSOrigin string
	// APIToken, when set, is required as a bearer token by the HTTP API.
	APIToken string
}

type StorageConfig struct {
	Backend     string
	DataDir     string
	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	RedisURL    string
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	SweepModel string
}

type ChatConfig struct {
	MaxLoreTokens int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:       3001,
			CORSOrigin: "*",
		},
		Storage: StorageConfig{
			Backend:  "fs",
			DataDir:  defaultDataDir(),
			S3Region: "us-east-1",
			S3UseSSL: true,
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4o",
			SweepModel: "gpt-4o-mini",
		},
		Chat: ChatConfig{
			MaxLoreTokens: 4000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ErrMissingAPIKey is returned by RequireAPIKey when no OpenAI key is set.
var ErrMissingAPIKey = errors.New("missing required config: OpenAI API key")

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/neyasbook/config.json, then a .env file in the working
// directory, then environment variables. Variables already present in the
// environment win over .env entries.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), ".env")
}

func loadWith(b ConfigBackend, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("could not read env file", "path", envFile, "error", err)
		}
	}
	applyEnvOverrides(&cfg)

	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case "fs", "s3", "sqlite", "redis":
	default:
		return Config{}, fmt.Errorf("invalid storage.backend %q: want fs, s3, sqlite or redis", cfg.Storage.Backend)
	}
	return cfg, nil
}

// RequireAPIKey reports an error when commands that call the model have
// no key to do so.
func (c Config) RequireAPIKey() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("%w. Set it via environment variable %s or a .env file", ErrMissingAPIKey, envPrefix+"OPENAI_API_KEY")
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "neyasbook-data"
		}
	}
	return filepath.Join(dir, "neyasbook")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "neyasbook", "config.json")
}
