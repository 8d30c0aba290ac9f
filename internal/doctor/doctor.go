// Package doctor validates the gateway's configuration and runtime
// environment before it accepts traffic.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/outlethq/mcp-outlet/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

var knownScopes = map[string]struct{}{
	"*":           {},
	"rpc:call":    {},
	"traces:read": {},
}

// Doctor validates a loaded configuration against the host environment.
type Doctor struct {
	cfg *config.Config

	// lookPath is swappable for tests.
	lookPath func(string) (string, error)
}

// New creates a Doctor for the given config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.checkUVBinary(r)
	d.checkCacheDir(r)
	d.checkStateDir(r)
	d.checkAPIConfig(r)
	d.warnUnknownScopes(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (r *Result) addError(category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (r *Result) addWarning(category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkUVBinary verifies the uv toolchain is reachable. Without it no worker
// can be installed or launched.
func (d *Doctor) checkUVBinary(r *Result) {
	if _, err := d.lookPath("uv"); err != nil {
		r.addError("toolchain", "", "uv binary not found in PATH")
	}
}

func (d *Doctor) checkCacheDir(r *Result) {
	dir := d.cfg.Cache.Dir
	if dir == "" {
		r.addError("cache", "cache.dir", "cache.dir is required")
		return
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.addError("cache", "cache.dir", fmt.Sprintf("cannot create cache dir: %v", err))
		return
	}
	if !writable(dir) {
		r.addError("cache", "cache.dir", fmt.Sprintf("cache dir %s is not writable", dir))
	}
}

func (d *Doctor) checkStateDir(r *Result) {
	if d.cfg.State.Path == "" {
		r.addError("state", "state.path", "state.path is required")
		return
	}

	dir := filepath.Dir(d.cfg.State.Path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		r.addError("state", "state.path", fmt.Sprintf("state directory %s does not exist", dir))
		return
	}
	if !writable(dir) {
		r.addError("state", "state.path", fmt.Sprintf("state directory %s is not writable", dir))
	}
}

func (d *Doctor) checkAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		r.addWarning("api", "api.enabled", "api is disabled; only the call subcommand will work")
		return
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		r.addError("api", "api.auth", "api.enabled requires api.auth.api_key or api.auth.tokens")
	}
}

func (d *Doctor) warnUnknownScopes(r *Result) {
	for i, t := range d.cfg.API.Auth.Tokens {
		for _, scope := range t.Scopes {
			if _, ok := knownScopes[scope]; !ok {
				r.addWarning("api", fmt.Sprintf("api.auth.tokens[%d]", i),
					fmt.Sprintf("unknown scope %q grants nothing", scope))
			}
		}
	}
}

func writable(dir string) bool {
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	return true
}
