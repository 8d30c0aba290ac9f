package uvx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/outlethq/mcp-outlet/internal/log"
)

const (
	defaultInstallTimeout = 120 * time.Second
	depInstallTimeout     = 500 * time.Second
	inspectTimeout        = 10 * time.Second
)

//go:generate mockgen -destination=mocks/mock_installer.go -package=mocks github.com/outlethq/mcp-outlet/internal/uvx Installer

// Installer abstracts the package toolchain so resolution can be tested
// without shelling out to uv.
type Installer interface {
	// IsInstalled reports whether pkg is already importable.
	IsInstalled(ctx context.Context, pkg string) bool
	// Install installs one requirement into the isolated prefix.
	Install(ctx context.Context, spec *LaunchSpec, requirement string, timeout time.Duration) error
	// ConsoleScripts returns advertised console-script entry points for pkg,
	// as name -> "module:function". Best effort; an empty map is valid.
	ConsoleScripts(ctx context.Context, pkg string) map[string]string
}

// UV shells out to the uv binary with an isolated cache prefix.
type UV struct {
	CacheDir string
	logger   *slog.Logger
}

// NewUV creates an installer rooted at cacheDir.
func NewUV(cacheDir string) *UV {
	return &UV{
		CacheDir: cacheDir,
		logger:   log.WithComponent("uvx"),
	}
}

// env builds the uv environment: cache-dir install prefix first, no project
// state, no bytecode, copy link mode.
func (u *UV) env() []string {
	env := os.Environ()
	env = append(env,
		"UV_CACHE_DIR="+u.CacheDir,
		"UV_LINK_MODE=copy",
		"UV_NO_SYNC=1",
		"UV_COMPILE_BYTECODE=0",
		"UV_NO_PROJECT=1",
		"UV_BREAK_SYSTEM_PACKAGES=1",
	)

	sitePackages := filepath.Join(u.CacheDir, "lib", "site-packages")
	if existing := os.Getenv("PYTHONPATH"); existing != "" {
		env = append(env, "PYTHONPATH="+sitePackages+string(os.PathListSeparator)+existing)
	} else {
		env = append(env, "PYTHONPATH="+sitePackages)
	}
	return env
}

// IsInstalled probes pkg with `uv pip show`.
func (u *UV) IsInstalled(ctx context.Context, pkg string) bool {
	cctx, cancel := context.WithTimeout(ctx, inspectTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "uv", "pip", "show", pkg)
	cmd.Env = u.env()
	return cmd.Run() == nil
}

// Install runs `uv pip install --prefix <cache>` for one requirement.
func (u *UV) Install(ctx context.Context, spec *LaunchSpec, requirement string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultInstallTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"pip", "install", "--prefix", u.CacheDir}
	if spec.IndexURL != "" {
		args = append(args, "--index-url", spec.IndexURL)
	}
	for _, extra := range spec.ExtraIndexURLs {
		args = append(args, "--extra-index-url", extra)
	}
	args = append(args, requirement)

	cmd := exec.CommandContext(cctx, "uv", args...)
	cmd.Env = u.env()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	u.logger.Debug("installing requirement", "requirement", requirement, "cache_dir", u.CacheDir)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("uv install failed: %s: %w", stderr.String(), err)
	}
	return nil
}

// ConsoleScripts asks `uv pip inspect` for console-script entry points.
// Inspect is optional tooling; failures simply yield no scripts.
func (u *UV) ConsoleScripts(ctx context.Context, pkg string) map[string]string {
	cctx, cancel := context.WithTimeout(ctx, inspectTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "uv", "pip", "inspect", pkg)
	cmd.Env = u.env()
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	var payload struct {
		EntryPoints struct {
			ConsoleScripts map[string]string `json:"console_scripts"`
		} `json:"entry_points"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		u.logger.Debug("unparseable inspect output", "package", pkg, "error", err)
		return nil
	}
	return payload.EntryPoints.ConsoleScripts
}
