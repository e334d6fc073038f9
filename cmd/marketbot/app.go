package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"marketbot/internal/agent"
	"marketbot/internal/config"
	"marketbot/internal/domain"
	"marketbot/internal/intent"
	"marketbot/internal/marketplace"
	"marketbot/internal/media"
	"marketbot/internal/memory"
	"marketbot/internal/provider"
	"marketbot/internal/speech"
	"marketbot/internal/vision"
)

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist, then loads the dotenv file it names into the environment.
// Variables already set in the process environment win over the file.
func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("config not found, using defaults", "path", path)
		cfg = config.Defaults()
	default:
		return nil, err
	}

	if cfg.General.EnvFile != "" {
		if err := godotenv.Load(cfg.General.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", cfg.General.EnvFile, err)
		}
	}
	return cfg, nil
}

// newLogger builds the process logger from general.logLevel and
// general.logFile. The returned closer releases the log file.
func newLogger(cfg config.GeneralConfig) (*slog.Logger, func() error, error) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closer := func() error { return nil }
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = f.Close
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}

// store is a DialogStore that can report its health.
type store interface {
	domain.DialogStore
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.MemoryConfig, log *slog.Logger) (store, error) {
	switch cfg.Driver {
	case "postgres":
		return memory.NewPostgresStore(ctx, cfg.DSN, log)
	case "sqlite", "":
		return memory.NewSQLiteStore(cfg.DBPath, log)
	default:
		return nil, fmt.Errorf("unknown memory driver %q", cfg.Driver)
	}
}

// app is the wired dialogue stack shared by serve and chat.
type app struct {
	cfg          *config.Config
	resolver     *config.Resolver
	store        store
	gateway      *provider.Gateway
	orchestrator *agent.Orchestrator
}

func (a *app) Close() error { return a.store.Close() }

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	st, err := openStore(ctx, cfg.Memory, log)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	resolver := config.NewResolverFromConfig(cfg)
	settings := provider.ResolveSettings(resolver)
	client := provider.SharedHTTPClient(settings.Timeout)

	gateway := provider.NewGateway(provider.GatewayConfig{
		Settings: settings,
		Resolver: resolver,
		Client:   client,
		Logger:   log,
	})
	log.Info("text provider configured",
		"provider", settings.Provider,
		"model", settings.Model,
		"credential", provider.Lookup(settings.Provider).Credential(resolver) != "",
	)

	// Without a bot token attachments cannot be fetched and both pipelines
	// answer from their demo tables.
	var files domain.FileSource
	if token := telegramToken(cfg, resolver); token != "" {
		files = media.NewTelegramFiles(media.TelegramFilesConfig{Token: token, Logger: log})
	}
	oauth := &media.BaiduOAuth{Client: client}

	market := marketplace.New(marketplace.Config{
		BaseURL: cfg.Marketplace.BaseURL,
		APIKey:  cfg.Marketplace.APIKey,
		Timeout: time.Duration(cfg.Marketplace.TimeoutSeconds) * time.Second,
		Logger:  log,
	})

	orch := agent.New(agent.Config{
		Store:       st,
		Marketplace: market,
		Generator:   gateway,
		Speech: speech.New(speech.Config{
			Files:  files,
			Stages: speech.DefaultStages(resolver, client, oauth),
			Logger: log,
		}),
		Vision: vision.New(vision.Config{
			Files:  files,
			Stages: vision.DefaultStages(resolver, client, oauth),
			Logger: log,
		}),
		Classifier:   intent.New(nil, log),
		HistoryLimit: cfg.Memory.HistoryLimit,
		Logger:       log,
	})

	return &app{
		cfg:          cfg,
		resolver:     resolver,
		store:        st,
		gateway:      gateway,
		orchestrator: orch,
	}, nil
}

// telegramToken prefers channels.telegram.token and falls back to the
// mcp.telegram.bot.token property.
func telegramToken(cfg *config.Config, r *config.Resolver) string {
	if cfg.Channels.Telegram.Token != "" {
		return cfg.Channels.Telegram.Token
	}
	return r.Resolve(config.KeyTelegramToken, "")
}
