package config

import "time"

// Config is the root gateway configuration, loaded from YAML.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Cache   CacheConfig   `yaml:"cache"`
	Worker  WorkerConfig  `yaml:"worker"`
	State   StateConfig   `yaml:"state"`
	API     APIConfig     `yaml:"api"`
}

// ServiceConfig carries gateway-wide settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// CacheConfig locates the shared uv package cache.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// WorkerConfig bounds worker process lifecycles.
type WorkerConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	InstallTimeout time.Duration `yaml:"install_timeout"`
}

// StateConfig locates the trace archive database.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	Enabled bool       `yaml:"enabled"`
	Listen  string     `yaml:"listen"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig holds bearer credentials for the API.
type AuthConfig struct {
	APIKey string      `yaml:"api_key"`
	Tokens []TokenSpec `yaml:"tokens"`
}

// TokenSpec is a scoped API token.
type TokenSpec struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}
