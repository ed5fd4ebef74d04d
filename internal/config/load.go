package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spafront/spa-front/internal/crypto"
)

const defaultRequestTimeout = 10 * time.Second

// Load reads the config file, resolves {"$env": "NAME"} references, applies
// defaults, and validates everything that can be checked without touching
// the network.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config JSON: %w", err)
	}

	resolved, err := resolveEnvRefs(raw)
	if err != nil {
		return nil, fmt.Errorf("resolving environment references: %w", err)
	}

	resolvedData, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("re-encoding config: %w", err)
	}

	var config Config
	if err := json.Unmarshal(resolvedData, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.encryptionKey, err = crypto.ParseEncryptionKey(string(config.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: encryptionKey: %w", err)
	}

	config.requestTimeout = defaultRequestTimeout
	if config.RequestTimeout != "" {
		timeout, err := time.ParseDuration(config.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("config validation failed: requestTimeout: %w", err)
		}
		config.requestTimeout = timeout
	}

	return &config, nil
}

// resolveEnvRefs walks the decoded JSON tree and replaces any
// {"$env": "NAME"} object with the value of that environment variable.
func resolveEnvRefs(node any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if len(v) == 1 {
			if name, ok := v["$env"].(string); ok {
				value, exists := os.LookupEnv(name)
				if !exists {
					return nil, fmt.Errorf("environment variable %s is not set", name)
				}
				return value, nil
			}
		}
		resolved := make(map[string]any, len(v))
		for key, child := range v {
			r, err := resolveEnvRefs(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			resolved[key] = r
		}
		return resolved, nil
	case []any:
		resolved := make([]any, len(v))
		for i, child := range v {
			r, err := resolveEnvRefs(child)
			if err != nil {
				return nil, err
			}
			resolved[i] = r
		}
		return resolved, nil
	default:
		return node, nil
	}
}

func applyDefaults(c *Config) {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.CookieNamePrefix == "" {
		c.CookieNamePrefix = "spafront"
	}
}
