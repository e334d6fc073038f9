package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"marketbot/internal/config"
	"marketbot/internal/domain"
	"marketbot/internal/metrics"
	"marketbot/internal/reply"
)

const maxReplyBytes = 4 << 20

// Gateway sends a turn to the configured provider and falls back to the
// local responder when the provider is unconfigured, unreachable, or
// returns something unusable. Generate never fails.
type Gateway struct {
	settings Settings
	spec     Spec
	backend  Backend
	resolver *config.Resolver
	client   *http.Client
	local    func(string) string
	logger   *slog.Logger
}

type GatewayConfig struct {
	Settings Settings
	Resolver *config.Resolver
	Backends []Backend           // defaults to DefaultBackends()
	Client   *http.Client        // defaults to SharedHTTPClient(Settings.Timeout)
	Local    func(string) string // defaults to reply.Local
	Logger   *slog.Logger
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Backends == nil {
		cfg.Backends = DefaultBackends()
	}
	if cfg.Settings.Timeout <= 0 {
		cfg.Settings.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Settings.Timeout)
	}
	if cfg.Local == nil {
		cfg.Local = reply.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var backend Backend
	for _, b := range cfg.Backends {
		if b.ID() == cfg.Settings.Provider {
			backend = b
			break
		}
	}

	return &Gateway{
		settings: cfg.Settings,
		spec:     Lookup(cfg.Settings.Provider),
		backend:  backend,
		resolver: cfg.Resolver,
		client:   cfg.Client,
		local:    cfg.Local,
		logger:   cfg.Logger,
	}
}

// Settings returns the configuration the gateway was built with.
func (g *Gateway) Settings() Settings { return g.settings }

// Generate implements domain.TextGenerator.
func (g *Gateway) Generate(ctx context.Context, userMessage, conversationContext string, intent domain.Intent) string {
	res := g.remote(ctx, userMessage, conversationContext, intent)
	metrics.StageOutcome("text", string(g.settings.Provider), res.Outcome.String())

	switch res.Outcome {
	case domain.Succeeded:
		return res.Text
	case domain.Declined:
		g.logger.Debug("provider skipped, using local responder",
			"provider", g.settings.Provider,
			"reason", res.Err,
		)
	default:
		g.logger.Warn("provider failed, using local responder",
			"provider", g.settings.Provider,
			"error", res.Err,
		)
	}

	metrics.Fallback("text")
	return g.local(userMessage)
}

func (g *Gateway) remote(ctx context.Context, userMessage, conversationContext string, intent domain.Intent) domain.StageResult {
	if g.backend == nil {
		return domain.Decline(fmt.Errorf("no backend for %s", g.settings.Provider))
	}
	if g.resolver == nil {
		return domain.Decline(domain.ErrMissingCredential)
	}
	apiKey := g.spec.Credential(g.resolver)
	if apiKey == "" {
		return domain.Decline(domain.ErrMissingCredential)
	}

	prompt := BuildPrompt(g.settings.SystemPrompt, userMessage, conversationContext, intent)
	body, err := g.backend.BuildRequest(g.settings.Model, prompt)
	if err != nil {
		return domain.Failure(err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.settings.Timeout)
	defer cancel()

	endpoint := JoinEndpoint(g.settings.BaseURL, g.backend.EndpointPath())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Failure(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	g.backend.Authorize(req, apiKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	metrics.ProviderLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Failure(fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, g.settings.Provider, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return domain.Failure(fmt.Errorf("%w: %s: read body: %w", domain.ErrProviderUnavailable, g.settings.Provider, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Failure(fmt.Errorf("%w: %s %d: %s", domain.ErrProviderUnavailable, g.settings.Provider, resp.StatusCode, snippet(data)))
	}

	text, err := g.backend.ParseReply(data)
	if err != nil {
		return domain.Failure(fmt.Errorf("%w: %s: %w", domain.ErrUnparsableResponse, g.settings.Provider, err))
	}
	if strings.TrimSpace(text) == "" {
		return domain.Failure(fmt.Errorf("%w: %s: blank reply", domain.ErrUnparsableResponse, g.settings.Provider))
	}

	g.logger.Info("provider replied",
		"provider", g.settings.Provider,
		"model", g.settings.Model,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return domain.Success(text)
}

// snippet trims a response body for log output.
func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
