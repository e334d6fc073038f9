package config

import "testing"

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestEnvName(t *testing.T) {
	cases := map[string]string{
		"marketplace.ai.provider": "MARKETPLACE_AI_PROVIDER",
		"openai.api.key":          "OPENAI_API_KEY",
		"baidu.speech-api.key":    "BAIDU_SPEECH_API_KEY",
	}
	for in, want := range cases {
		if got := EnvName(in); got != want {
			t.Errorf("EnvName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolve_Precedence(t *testing.T) {
	r := NewResolver(ResolverConfig{
		Overrides: map[string]string{"a": "override"},
		Defaults:  map[string]string{"a": "table", "b": "table", "c": "table"},
		LookupEnv: envMap(map[string]string{"A": "env", "B": "env"}),
	})

	if got := r.Resolve("a", "def"); got != "override" {
		t.Fatalf("override tier: got %q", got)
	}
	if got := r.Resolve("b", "def"); got != "env" {
		t.Fatalf("env tier: got %q", got)
	}
	if got := r.Resolve("c", "def"); got != "table" {
		t.Fatalf("default table tier: got %q", got)
	}
	if got := r.Resolve("d", "def"); got != "def" {
		t.Fatalf("caller default: got %q", got)
	}
}

func TestResolve_BlankValuesFallThrough(t *testing.T) {
	r := NewResolver(ResolverConfig{
		Overrides: map[string]string{"a": "   "},
		Defaults:  map[string]string{"a": ""},
		LookupEnv: envMap(map[string]string{"A": "\t"}),
	})
	if got := r.Resolve("a", "def"); got != "def" {
		t.Fatalf("expected blank tiers to be skipped, got %q", got)
	}
}

func TestResolve_RealEnvironment(t *testing.T) {
	t.Setenv("MARKETBOT_RESOLVER_PROBE", "from-env")
	r := NewResolver(ResolverConfig{})
	if got := r.Resolve("marketbot.resolver-probe", ""); got != "from-env" {
		t.Fatalf("expected os environment lookup, got %q", got)
	}
}

func TestResolveInt(t *testing.T) {
	r := NewResolver(ResolverConfig{
		Defaults:  map[string]string{"good": " 45 ", "bad": "soon"},
		LookupEnv: envMap(nil),
	})
	if got := r.ResolveInt("good", 30); got != 45 {
		t.Fatalf("expected 45, got %d", got)
	}
	if got := r.ResolveInt("bad", 30); got != 30 {
		t.Fatalf("unparsable should yield default, got %d", got)
	}
	if got := r.ResolveInt("missing", 30); got != 30 {
		t.Fatalf("missing should yield default, got %d", got)
	}
}

func TestFirstNonBlank(t *testing.T) {
	r := NewResolver(ResolverConfig{
		Defaults:  map[string]string{"glm.api.key": "k2", "marketplace.ai.api.key": "generic"},
		LookupEnv: envMap(nil),
	})
	if got := r.FirstNonBlank("zhipu.api.key", "glm.api.key", "marketplace.ai.api.key"); got != "k2" {
		t.Fatalf("expected first configured key, got %q", got)
	}
	if got := r.FirstNonBlank("none.a", "none.b"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestOverride_RuntimeChange(t *testing.T) {
	r := NewResolver(ResolverConfig{
		Defaults:  map[string]string{KeyProvider: "OPENAI"},
		LookupEnv: envMap(nil),
	})
	r.Override(KeyProvider, "CLAUDE")
	if got := r.Resolve(KeyProvider, ""); got != "CLAUDE" {
		t.Fatalf("expected override, got %q", got)
	}
	r.Override(KeyProvider, "")
	if got := r.Resolve(KeyProvider, ""); got != "OPENAI" {
		t.Fatalf("clearing override should restore table value, got %q", got)
	}
}

func TestNewResolverFromConfig_LayersProperties(t *testing.T) {
	cfg := Defaults()
	cfg.Properties = map[string]string{KeyModel: "qwen-max"}
	t.Setenv("MARKETPLACE_AI_MODEL", "")
	t.Setenv("MARKETPLACE_AI_TIMEOUT_SECONDS", "")
	r := NewResolverFromConfig(cfg)

	if got := r.Resolve(KeyModel, ""); got != "qwen-max" {
		t.Fatalf("expected property table value, got %q", got)
	}
	if got := r.ResolveInt(KeyTimeoutSeconds, 0); got != 30 {
		t.Fatalf("expected built-in timeout default 30, got %d", got)
	}
}
