package config

import (
	"maps"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Resolver looks up named settings through four tiers, first non-blank wins:
// runtime overrides, the environment, the default-property table, and
// finally the caller's default. Lookups are never cached.
type Resolver struct {
	mu        sync.RWMutex
	overrides map[string]string
	defaults  map[string]string
	lookupEnv func(string) (string, bool)
}

// ResolverConfig holds the tiers a Resolver reads from.
type ResolverConfig struct {
	Overrides map[string]string
	Defaults  map[string]string
	LookupEnv func(string) (string, bool) // nil means os.LookupEnv
}

func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		overrides: make(map[string]string, len(cfg.Overrides)),
		defaults:  make(map[string]string, len(cfg.Defaults)),
		lookupEnv: cfg.LookupEnv,
	}
	maps.Copy(r.overrides, cfg.Overrides)
	maps.Copy(r.defaults, cfg.Defaults)
	if r.lookupEnv == nil {
		r.lookupEnv = os.LookupEnv
	}
	return r
}

// NewResolverFromConfig layers cfg.Properties over DefaultProperties and uses
// cfg.Overrides as the override tier.
func NewResolverFromConfig(cfg *Config) *Resolver {
	defaults := DefaultProperties()
	maps.Copy(defaults, cfg.Properties)
	return NewResolver(ResolverConfig{
		Overrides: cfg.Overrides,
		Defaults:  defaults,
	})
}

// EnvName maps a property name to its environment variable name:
// upper-cased, with '.' and '-' replaced by '_'.
func EnvName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(strings.ToUpper(name))
}

// Resolve returns the first non-blank value for name, or def.
func (r *Resolver) Resolve(name, def string) string {
	r.mu.RLock()
	v, d := r.overrides[name], r.defaults[name]
	r.mu.RUnlock()

	if !isBlank(v) {
		return v
	}
	if env, ok := r.lookupEnv(EnvName(name)); ok && !isBlank(env) {
		return env
	}
	if !isBlank(d) {
		return d
	}
	return def
}

// ResolveInt resolves name and parses it as an int. Unparsable values yield def.
func (r *Resolver) ResolveInt(name string, def int) int {
	s := strings.TrimSpace(r.Resolve(name, ""))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// FirstNonBlank resolves each name in order and returns the first non-blank
// value, or "" when none is set.
func (r *Resolver) FirstNonBlank(names ...string) string {
	for _, name := range names {
		if v := r.Resolve(name, ""); !isBlank(v) {
			return v
		}
	}
	return ""
}

// Override sets a runtime override. Settings already built from this
// resolver keep the values they were constructed with.
func (r *Resolver) Override(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if isBlank(value) {
		delete(r.overrides, name)
		return
	}
	r.overrides[name] = value
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
