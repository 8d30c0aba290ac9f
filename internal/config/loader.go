package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads, expands, parses and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "mcp-outlet"
	}
	if c.Service.LogLevel == "" {
		c.Service.LogLevel = "info"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(os.TempDir(), "mcp-outlet-cache")
	}
	if c.Worker.RequestTimeout <= 0 {
		c.Worker.RequestTimeout = 30 * time.Second
	}
	if c.Worker.InstallTimeout <= 0 {
		c.Worker.InstallTimeout = 120 * time.Second
	}
	if c.State.Path == "" {
		c.State.Path = "mcp-outlet.db"
	}
	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:8137"
	}
}

func (c *Config) validate() error {
	switch c.Service.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", c.Service.LogLevel)
	}

	if c.API.Enabled && c.API.Auth.APIKey == "" && len(c.API.Auth.Tokens) == 0 {
		return fmt.Errorf("api.enabled requires api.auth.api_key or api.auth.tokens")
	}

	for i, t := range c.API.Auth.Tokens {
		if t.Token == "" {
			return fmt.Errorf("api.auth.tokens[%d]: empty token", i)
		}
		if len(t.Scopes) == 0 {
			return fmt.Errorf("api.auth.tokens[%d]: token has no scopes", i)
		}
	}
	return nil
}
