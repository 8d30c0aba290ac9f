package uvx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/outlethq/mcp-outlet/internal/log"
)

// Resolution is the outcome of argument resolution: the entry point to launch
// and the package it came from.
type Resolution struct {
	PackageName  string
	ModulePath   string
	FunctionName string
}

// Resolver parses launch arguments, ensures the target package and its extra
// dependencies are installed, and resolves the entry point.
type Resolver struct {
	installer      Installer
	installTimeout time.Duration
	logger         *slog.Logger
}

// NewResolver creates a resolver backed by the given installer. installTimeout
// bounds each package install; zero or negative selects the default.
func NewResolver(installer Installer, installTimeout time.Duration) *Resolver {
	if installTimeout <= 0 {
		installTimeout = defaultInstallTimeout
	}
	return &Resolver{
		installer:      installer,
		installTimeout: installTimeout,
		logger:         log.WithComponent("uvx"),
	}
}

// Resolve parses args and returns the launchable entry point. Installation
// failures are fatal and abort resolution before any worker launches.
func (r *Resolver) Resolve(ctx context.Context, args []string) (*Resolution, error) {
	spec, err := ParseArgs(args)
	if err != nil {
		return nil, err
	}

	if !r.installer.IsInstalled(ctx, spec.PackageName) {
		requirement := spec.PackageName
		if spec.SourcePath != "" {
			requirement = spec.SourcePath
		}
		if err := r.installer.Install(ctx, spec, requirement, r.installTimeout); err != nil {
			return nil, fmt.Errorf("install %s: %w", spec.PackageName, err)
		}
	}

	// Dependency sets resolve whole trees; never bound them tighter than
	// the dedicated dep budget.
	depTimeout := r.installTimeout
	if depTimeout < depInstallTimeout {
		depTimeout = depInstallTimeout
	}

	for _, dep := range spec.WithDeps {
		if r.installer.IsInstalled(ctx, dep) {
			continue
		}
		if err := r.installer.Install(ctx, spec, dep, depTimeout); err != nil {
			return nil, fmt.Errorf("install dependency %s: %w", dep, err)
		}
	}

	scripts := r.installer.ConsoleScripts(ctx, spec.PackageName)
	module, function := ResolveEntryPoint(spec.PackageName, spec.EntryPoint, scripts)

	r.logger.Debug("entry point resolved",
		"package", spec.PackageName, "module", module, "function", function)

	return &Resolution{
		PackageName:  spec.PackageName,
		ModulePath:   module,
		FunctionName: function,
	}, nil
}
