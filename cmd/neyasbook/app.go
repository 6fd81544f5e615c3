package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/neyasbook/neyasbook/internal/blob"
	"github.com/neyasbook/neyasbook/internal/chat"
	"github.com/neyasbook/neyasbook/internal/config"
	"github.com/neyasbook/neyasbook/internal/llm"
	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/persona"
	"github.com/neyasbook/neyasbook/internal/sweep"
)

// app wires the components every command shares. LLM-backed fields are
// nil unless the app was opened with withLLM.
type app struct {
	cfg     config.Config
	store   blob.Store
	repo    *manuscript.Repository
	prompts *persona.Builder
	sweeper *sweep.Engine
	chat    *chat.Service
}

// openApp loads config, sets up logging and opens storage. With withLLM it
// also requires an API key and builds the sweep engine and chat service.
func openApp(ctx context.Context, withLLM bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)

	if withLLM {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
	}

	store, err := blob.Open(ctx, storageOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}

	a := &app{cfg: cfg, store: store, repo: manuscript.NewRepository(store)}
	a.prompts = persona.NewBuilder(a.repo, cfg.Chat.MaxLoreTokens)

	if withLLM {
		client := llm.NewClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
		a.sweeper = sweep.NewEngine(a.repo, sweep.NewExtractor(client, cfg.OpenAI.SweepModel))
		a.chat = chat.NewService(a.repo, a.prompts, client, cfg.OpenAI.ChatModel)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}

func storageOptions(cfg config.Config) blob.Options {
	return blob.Options{
		Backend:     cfg.Storage.Backend,
		DataDir:     cfg.Storage.DataDir,
		S3Endpoint:  cfg.Storage.S3Endpoint,
		S3Bucket:    cfg.Storage.S3Bucket,
		S3Region:    cfg.Storage.S3Region,
		S3AccessKey: cfg.Storage.S3AccessKey,
		S3SecretKey: cfg.Storage.S3SecretKey,
		S3UseSSL:    cfg.Storage.S3UseSSL,
		RedisURL:    cfg.Storage.RedisURL,
	}
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
