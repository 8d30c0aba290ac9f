// Package uvx resolves uv/uvx-style worker launch arguments into an importable
// {module, function} entry point, installing the target package on demand into
// an isolated cache prefix.
package uvx

import (
	"fmt"
	"sort"
	"strings"
)

// LaunchSpec is the parsed form of a uv/uvx argument list.
type LaunchSpec struct {
	PackageName    string
	EntryPoint     string // raw entry from "pkg:entry", empty when unspecified
	SourcePath     string // --from override
	WithDeps       []string
	IndexURL       string
	ExtraIndexURLs []string
}

// ParseArgs walks the argument list left to right, first match wins per token.
// The first bare token is the package spec (optionally "name:entry"); later
// bare tokens are ignored. Unknown --flags consume a following non-flag value
// when present. A missing package spec is fatal.
func ParseArgs(args []string) (*LaunchSpec, error) {
	spec := &LaunchSpec{}

	i := 0
	for i < len(args) {
		arg := args[i]

		switch {
		case arg == "--from" && i+1 < len(args):
			spec.SourcePath = args[i+1]
			i += 2
		case arg == "--with" && i+1 < len(args):
			spec.WithDeps = append(spec.WithDeps, strings.Split(args[i+1], ",")...)
			i += 2
		case arg == "--index-url" && i+1 < len(args):
			spec.IndexURL = args[i+1]
			i += 2
		case arg == "--extra-index-url" && i+1 < len(args):
			spec.ExtraIndexURLs = append(spec.ExtraIndexURLs, args[i+1])
			i += 2
		case strings.HasPrefix(arg, "--"):
			// Unsupported option (--quiet, --verbose, ...): swallow its value
			// if it appears to have one.
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				i += 2
			} else {
				i++
			}
		case spec.PackageName == "":
			if name, entry, ok := strings.Cut(arg, ":"); ok {
				spec.PackageName = name
				spec.EntryPoint = entry
			} else {
				spec.PackageName = arg
			}
			i++
		default:
			// Trailing bare tokens carry no meaning here.
			i++
		}
	}

	if spec.PackageName == "" {
		return nil, fmt.Errorf("no package name found in arguments")
	}
	return spec, nil
}

// DefaultModule converts a package name to its conventional import module name.
func DefaultModule(packageName string) string {
	return strings.ReplaceAll(packageName, "-", "_")
}

// ResolveEntryPoint determines the {module, function} pair to launch,
// first match wins:
//
//  1. an explicit entry from the package spec;
//  2. a console script whose name matches the package exactly;
//  3. any console script (stable pick);
//  4. the first of a fixed guess list, returned unverified.
func ResolveEntryPoint(packageName, requestedEntry string, consoleScripts map[string]string) (string, string) {
	defaultModule := DefaultModule(packageName)

	if requestedEntry != "" {
		if strings.Contains(requestedEntry, ".") && strings.Contains(requestedEntry, ":") {
			// Full path like "package.server:main".
			idx := strings.LastIndex(requestedEntry, ":")
			return requestedEntry[:idx], requestedEntry[idx+1:]
		}
		if module, function, ok := strings.Cut(requestedEntry, ":"); ok {
			if module == "" {
				module = defaultModule
			}
			return module, function
		}
		// Bare function name.
		return defaultModule, requestedEntry
	}

	if target, ok := consoleScripts[packageName]; ok {
		if module, function, ok := splitTarget(target); ok {
			return module, function
		}
	}

	for _, name := range sortedKeys(consoleScripts) {
		if module, function, ok := splitTarget(consoleScripts[name]); ok {
			return module, function
		}
	}

	// Best-effort guess; not validated by import.
	guesses := []string{
		defaultModule + ":main",
		defaultModule + ".main:main",
		defaultModule + ".cli:main",
		defaultModule + ".server:main",
		defaultModule + ".__main__:main",
	}
	module, function, _ := splitTarget(guesses[0])
	return module, function
}

func splitTarget(target string) (string, string, bool) {
	idx := strings.LastIndex(target, ":")
	if idx <= 0 || idx == len(target)-1 {
		return "", "", false
	}
	return target[:idx], target[idx+1:], true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
