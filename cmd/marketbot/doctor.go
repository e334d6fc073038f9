package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"marketbot/internal/config"
	"marketbot/internal/provider"

	"github.com/spf13/cobra"
)

// doctorReport counts check outcomes and prints one line per check.
type doctorReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	fmt.Fprintf(r.out, "  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *doctorReport) warn(check, detail string) {
	fmt.Fprintf(r.out, "  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func (r *doctorReport) fail(check, detail string) {
	fmt.Fprintf(r.out, "  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the marketbot installation",
		Long: `Verifies that the configuration, dialogue store, AI credentials and
marketplace service are reachable. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep := &doctorReport{out: cmd.OutOrStdout()}
			fmt.Fprintf(rep.out, "marketbot doctor v%s\n\n", version)

			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err != nil {
				rep.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
			} else {
				rep.pass("Config file", cfgPath)
			}

			cfg, err := loadConfig()
			if err != nil {
				rep.fail("Config validation", err.Error())
				return rep.summary()
			}
			rep.pass("Config validation", "valid")

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			runDoctorChecks(ctx, cfg, rep)
			return rep.summary()
		},
	}
}

func runDoctorChecks(ctx context.Context, cfg *config.Config, rep *doctorReport) {
	if st, err := openStore(ctx, cfg.Memory, logger); err != nil {
		rep.fail("Dialogue store", err.Error())
	} else {
		if err := st.Ping(ctx); err != nil {
			rep.fail("Dialogue store", err.Error())
		} else {
			rep.pass("Dialogue store", cfg.Memory.Driver)
		}
		st.Close()
	}

	r := config.NewResolverFromConfig(cfg)
	s := provider.ResolveSettings(r)
	if provider.Lookup(s.Provider).Credential(r) == "" {
		rep.warn("Text provider", fmt.Sprintf("%s has no credential, replies come from the local responder", s.Provider))
	} else {
		rep.pass("Text provider", fmt.Sprintf("%s (%s)", s.Provider, s.Model))
	}

	if err := checkMarketplace(ctx, cfg.Marketplace.BaseURL); err != nil {
		rep.warn("Marketplace", err.Error())
	} else {
		rep.pass("Marketplace", cfg.Marketplace.BaseURL)
	}

	if cfg.Channels.Telegram.Enabled {
		if telegramToken(cfg, r) == "" {
			rep.fail("Telegram", "enabled but no bot token")
		} else {
			rep.pass("Telegram", "token configured")
		}
	}

	if api := cfg.Channels.API; api.Enabled {
		addr := net.JoinHostPort(api.Host, strconv.Itoa(api.Port))
		if err := checkPort(addr); err != nil {
			rep.warn("API port", fmt.Sprintf("%s may be in use: %v", addr, err))
		} else {
			rep.pass("API port", addr+" available")
		}
		if api.APIKey == "" && api.Host != "127.0.0.1" && api.Host != "localhost" {
			rep.warn("API key", "API listens beyond loopback without a key")
		}
	}
}

func (r *doctorReport) summary() error {
	fmt.Fprintf(r.out, "\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

// checkMarketplace treats any HTTP answer as reachable; only transport
// errors count.
func checkMarketplace(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
