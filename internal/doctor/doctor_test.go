package doctor

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outlethq/mcp-outlet/internal/config"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Service: config.ServiceConfig{Name: "test", LogLevel: "info"},
		Cache:   config.CacheConfig{Dir: filepath.Join(dir, "cache")},
		State:   config.StateConfig{Path: filepath.Join(dir, "state.db")},
		API: config.APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:0",
			Auth: config.AuthConfig{
				Tokens: []config.TokenSpec{{Token: "t", Scopes: []string{"rpc:call"}}},
			},
		},
	}
}

func newTestDoctor(cfg *config.Config) *Doctor {
	d := New(cfg)
	d.lookPath = func(string) (string, error) { return "/usr/bin/uv", nil }
	return d
}

func TestValidateHealthy(t *testing.T) {
	r := newTestDoctor(validConfig(t)).Validate()
	assert.True(t, r.Valid)
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
}

func TestValidateMissingUV(t *testing.T) {
	d := New(validConfig(t))
	d.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	r := d.Validate()
	assert.False(t, r.Valid)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "toolchain", r.Errors[0].Category)
}

func TestValidateMissingStateDir(t *testing.T) {
	cfg := validConfig(t)
	cfg.State.Path = "/nonexistent/dir/state.db"

	r := newTestDoctor(cfg).Validate()
	assert.False(t, r.Valid)
	require.NotEmpty(t, r.Errors)
	assert.Equal(t, "state.path", r.Errors[0].Field)
}

func TestValidateAPIWithoutCredentials(t *testing.T) {
	cfg := validConfig(t)
	cfg.API.Auth = config.AuthConfig{}

	r := newTestDoctor(cfg).Validate()
	assert.False(t, r.Valid)
}

func TestValidateDisabledAPIWarns(t *testing.T) {
	cfg := validConfig(t)
	cfg.API.Enabled = false
	cfg.API.Auth = config.AuthConfig{}

	r := newTestDoctor(cfg).Validate()
	assert.True(t, r.Valid)
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "api", r.Warnings[0].Category)
}

func TestValidateUnknownScopeWarns(t *testing.T) {
	cfg := validConfig(t)
	cfg.API.Auth.Tokens = append(cfg.API.Auth.Tokens,
		config.TokenSpec{Token: "x", Scopes: []string{"admin:everything"}})

	r := newTestDoctor(cfg).Validate()
	assert.True(t, r.Valid)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0].Message, "admin:everything")
}

func TestValidateEmptyCacheDir(t *testing.T) {
	cfg := validConfig(t)
	cfg.Cache.Dir = ""

	r := newTestDoctor(cfg).Validate()
	assert.False(t, r.Valid)
}
