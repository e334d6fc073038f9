package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetByPath retrieves a config value by dot-notation path (e.g. "memory.driver").
// Keys under properties and overrides contain dots themselves, so a path such as
// "properties.marketplace.ai.provider" is matched by the longest key first.
func GetByPath(cfg *Config, path string) (any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	parts := strings.Split(path, ".")
	var current any = m
	for i := 0; i < len(parts); i++ {
		switch v := current.(type) {
		case map[string]any:
			key, n := longestKey(v, parts[i:])
			if n == 0 {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = v[key]
			i += n - 1
		case []any:
			idx, err := strconv.Atoi(parts[i])
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", parts[i])
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, parts[i])
		}
	}
	return current, nil
}

// longestKey finds the longest dotted prefix of parts that is a key of m.
func longestKey(m map[string]any, parts []string) (string, int) {
	for n := len(parts); n > 0; n-- {
		key := strings.Join(parts[:n], ".")
		if _, ok := m[key]; ok {
			return key, n
		}
	}
	return "", 0
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var copy Config
	if err := json.Unmarshal(data, &copy); err != nil {
		return cfg
	}

	if copy.Channels.Telegram.Token != "" {
		copy.Channels.Telegram.Token = maskString(copy.Channels.Telegram.Token)
	}
	if copy.Channels.API.APIKey != "" {
		copy.Channels.API.APIKey = maskString(copy.Channels.API.APIKey)
	}
	if copy.Marketplace.APIKey != "" {
		copy.Marketplace.APIKey = maskString(copy.Marketplace.APIKey)
	}
	if copy.Memory.DSN != "" {
		copy.Memory.DSN = "***"
	}
	maskSecrets(copy.Properties)
	maskSecrets(copy.Overrides)

	return &copy
}

// maskSecrets masks property values whose name looks like a credential.
func maskSecrets(props map[string]string) {
	for k, v := range props {
		if isSecretName(k) && v != "" {
			props[k] = maskString(v)
		}
	}
}

func isSecretName(name string) bool {
	name = strings.ToLower(name)
	for _, marker := range []string{"key", "secret", "token"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns all config leaves keyed by their dot-notation path.
func ListPaths(cfg *Config) map[string]any {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	result := make(map[string]any)
	flattenMap("", m, result)
	return result
}

func flattenMap(prefix string, m map[string]any, result map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenMap(path, child, result)
			continue
		}
		result[path] = v
	}
}
