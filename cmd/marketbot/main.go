package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"marketbot/internal/channel"
	"marketbot/internal/config"
	"marketbot/internal/domain"
	"marketbot/internal/metrics"
	"marketbot/internal/provider"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "marketbot",
		Short: "marketbot: conversational assistant for marketplace merchants",
		Long: "marketbot answers merchants over Telegram, HTTP and the terminal: it publishes\n" +
			"supply and demand listings, finds matches and reports statistics.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml or config.json (default: ~/.marketbot/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(providersCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.Save(path, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", path)
			return nil
		},
	}
}

// setup loads the config and replaces the bootstrap logger with the
// configured one.
func setup() (*config.Config, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	l, closeLog, err := newLogger(cfg.General)
	if err != nil {
		return nil, nil, err
	}
	logger = l
	return cfg, closeLog, nil
}

func chatCmd() *cobra.Command {
	var merchantID, sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive dialogue in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			cli := channel.NewCLI(channel.CLIConfig{
				Processor:  a.orchestrator,
				SessionID:  sessionID,
				MerchantID: merchantID,
				Logger:     logger,
			})
			return cli.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&merchantID, "merchant", "cli", "merchant id for the session")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: cli_<merchant>)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the enabled channels (Telegram, HTTP API)",
		Long:  "Starts every enabled channel against one dialogue stack. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	limiter := channel.NewLimiter(0, 0)
	var channels []domain.Channel

	if tg := cfg.Channels.Telegram; tg.Enabled {
		token := telegramToken(cfg, a.resolver)
		if token == "" {
			return fmt.Errorf("telegram channel enabled but no token configured (channels.telegram.token or %s)", config.KeyTelegramToken)
		}
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:     token,
			AllowFrom: tg.AllowFrom,
			ParseMode: tg.ParseMode,
			Processor: a.orchestrator,
			Limiter:   limiter,
			Logger:    logger,
		}))
	}

	if api := cfg.Channels.API; api.Enabled {
		apiCfg := channel.APIConfig{
			Host:       api.Host,
			Port:       api.Port,
			APIKey:     api.APIKey,
			TrustProxy: api.TrustProxy,
			Processor:  a.orchestrator,
			Store:      a.store,
			Limiter:    limiter,
			Logger:     logger,
		}
		if cfg.Metrics.Enabled {
			apiCfg.MetricsPath = cfg.Metrics.Endpoint
			apiCfg.Metrics = metrics.Default.Handler()
		}
		channels = append(channels, channel.NewAPI(apiCfg))
	}

	if len(channels) == 0 {
		return fmt.Errorf("no channels enabled; enable channels.telegram or channels.api")
	}

	errCh := make(chan error, len(channels))
	for _, ch := range channels {
		go func(ch domain.Channel) {
			if err := ch.Start(ctx); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
				errCh <- fmt.Errorf("%s: %w", ch.Name(), err)
				return
			}
			errCh <- nil
		}(ch)
		logger.Info("channel enabled", "channel", ch.Name())
	}

	logger.Info("marketbot started. Press Ctrl+C to stop.", "version", version)

	var firstErr error
	done := 0
	select {
	case <-ctx.Done():
	case firstErr = <-errCh:
		done++
		stop()
	}
	logger.Info("shutting down...")

	// Channels return once ctx is done; give them a bounded time to drain.
	const shutdownTimeout = 10 * time.Second
	deadline := time.After(shutdownTimeout)
	for ; done < len(channels); done++ {
		select {
		case err := <-errCh:
			if firstErr == nil {
				firstErr = err
			}
		case <-deadline:
			for _, ch := range channels {
				ch.Stop()
			}
			logger.Warn("shutdown timed out, forcing exit")
			return fmt.Errorf("shutdown timed out")
		}
	}
	logger.Info("shutdown complete")
	return firstErr
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show the active text provider and the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r := config.NewResolverFromConfig(cfg)
			s := provider.ResolveSettings(r)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "active:  %s\nbase:    %s\nmodel:   %s\ntimeout: %s\n\n", s.Provider, s.BaseURL, s.Model, s.Timeout)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tREGION\tMODEL\tCREDENTIAL")
			for _, spec := range provider.All() {
				cred := "missing"
				if spec.Credential(r) != "" {
					cred = "set"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.ID, spec.Region, spec.Model, cred)
			}
			return tw.Flush()
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. memory.driver)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every config path and its value",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			keys := make([]string, 0, len(paths))
			for k := range paths {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, paths[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}
