package config

import (
	"fmt"
	"os"
	"strconv"
)

// envPrefix namespaces every environment variable the config reads.
const envPrefix = "NEYAS_"

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// Secrets are only read from the environment (or .env), never from the
// config file.
var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: envPrefix + "SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.cors_origin", typ: kString, env: envPrefix + "SERVER_CORS_ORIGIN",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigin = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigin },
	},
	{
		key: "server.api_token", typ: kString, env: envPrefix + "SERVER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.backend", typ: kString, env: envPrefix + "STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: envPrefix + "STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.s3_endpoint", typ: kString, env: envPrefix + "STORAGE_S3_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Storage.S3Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.S3Endpoint },
	},
	{
		key: "storage.s3_bucket", typ: kString, env: envPrefix + "STORAGE_S3_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Storage.S3Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.S3Bucket },
	},
	{
		key: "storage.s3_region", typ: kString, env: envPrefix + "STORAGE_S3_REGION",
		apply:   func(cfg *Config, v any) { cfg.Storage.S3Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.S3Region },
	},
	{
		key: "storage.s3_access_key", typ: kString, env: envPrefix + "STORAGE_S3_ACCESS_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.S3AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.S3AccessKey },
	},
	{
		key: "storage.s3_secret_key", typ: kString, env: envPrefix + "STORAGE_S3_SECRET_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.S3SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.S3SecretKey },
	},
	{
		key: "storage.s3_use_ssl", typ: kBool, env: envPrefix + "STORAGE_S3_USE_SSL",
		apply:   func(cfg *Config, v any) { cfg.Storage.S3UseSSL = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.S3UseSSL },
	},
	{
		key: "storage.redis_url", typ: kString, env: envPrefix + "STORAGE_REDIS_URL",
		apply:   func(cfg *Config, v any) { cfg.Storage.RedisURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.RedisURL },
	},
	{
		key: "openai.api_key", typ: kString, env: envPrefix + "OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: envPrefix + "OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.chat_model", typ: kString, env: envPrefix + "OPENAI_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.ChatModel },
	},
	{
		key: "openai.sweep_model", typ: kString, env: envPrefix + "OPENAI_SWEEP_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.SweepModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.SweepModel },
	},
	{
		key: "chat.max_lore_tokens", typ: kInt, env: envPrefix + "CHAT_MAX_LORE_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Chat.MaxLoreTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.MaxLoreTokens },
	},
	{
		key: "log.level", typ: kString, env: envPrefix + "LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
