package provider

import (
	"time"

	"marketbot/internal/config"
)

const defaultTimeoutSeconds = 30

// Settings is the provider configuration an instance runs with. It is
// resolved once and passed by value, so a running request never observes
// a change.
type Settings struct {
	Provider     ID
	BaseURL      string
	Model        string
	Timeout      time.Duration
	SystemPrompt string
}

// ResolveSettings reads the active provider configuration from r.
// Base URL and model default to the provider's registry entry.
func ResolveSettings(r *config.Resolver) Settings {
	id := ParseID(r.Resolve(config.KeyProvider, string(OpenAI)))
	spec := Lookup(id)

	secs := r.ResolveInt(config.KeyTimeoutSeconds, defaultTimeoutSeconds)
	if secs <= 0 {
		secs = defaultTimeoutSeconds
	}

	return Settings{
		Provider:     id,
		BaseURL:      r.Resolve(config.KeyAPIBase, spec.BaseURL),
		Model:        r.Resolve(config.KeyModel, spec.Model),
		Timeout:      time.Duration(secs) * time.Second,
		SystemPrompt: r.Resolve(config.KeySystemPrompt, config.DefaultSystemPrompt),
	}
}
