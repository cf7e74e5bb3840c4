package app

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoverOptions controls app discovery.
type DiscoverOptions struct {
	// Target restricts the matrix to one chip target. Empty or "all"
	// enumerates every supported target per app.
	Target string

	// Recursive walks the whole tree below each path instead of only
	// looking at the path itself.
	Recursive bool

	// ConfigRules are sdkconfig glob patterns relative to the app
	// directory, e.g. "sdkconfig.ci.*". The wildcard part of a matched
	// filename becomes the config name. No match means a single unnamed
	// variant.
	ConfigRules []string

	// AppOptions is the template for every constructed App.
	AppOptions Options
}

type configVariant struct {
	name string
	path string
}

// FindApps discovers the buildable apps under the given paths and enumerates
// the (app, target, config) matrix, sorted deterministically.
func FindApps(paths []string, settings *Settings, opts DiscoverOptions) ([]*App, error) {
	var apps []*App

	for _, path := range paths {
		dirs, err := candidateDirs(path, opts.Recursive)
		if err != nil {
			return nil, err
		}

		for _, dir := range dirs {
			found, err := appsInDir(dir, settings, opts)
			if err != nil {
				return nil, err
			}

			apps = append(apps, found...)
		}
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].Less(apps[j]) })

	return apps, nil
}

func candidateDirs(path string, recursive bool) ([]string, error) {
	if !recursive {
		return []string{path}, nil
	}

	var dirs []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		name := d.Name()
		if p != path && (strings.HasPrefix(name, ".") || name == "build" || name == "managed_components") {
			return fs.SkipDir
		}

		dirs = append(dirs, p)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}

	return dirs, nil
}

func appsInDir(dir string, settings *Settings, opts DiscoverOptions) ([]*App, error) {
	type constructor func(dir, target string, settings *Settings, opts Options) (*App, error)

	var newFn constructor
	switch {
	case IsCMakeApp(dir):
		newFn = NewCMakeApp
	case IsMakeApp(dir):
		newFn = NewMakeApp
	default:
		return nil, nil
	}

	var apps []*App

	for _, variant := range configVariants(dir, opts.ConfigRules) {
		appOpts := opts.AppOptions
		appOpts.ConfigName = variant.name
		appOpts.SdkconfigPath = variant.path

		targets := []string{opts.Target}
		if opts.Target == "" || opts.Target == "all" {
			// A probe instance answers the supported-target query, which
			// needs the sdkconfig-declared target.
			probe, err := newFn(dir, "", settings, appOpts)
			if err != nil {
				return nil, err
			}

			targets = probe.SupportedTargets()
		}

		for _, target := range targets {
			a, err := newFn(dir, target, settings, appOpts)
			if err != nil {
				return nil, err
			}

			if !contains(a.SupportedTargets(), target) {
				slog.Debug("Skipping unsupported target", "app", a.String())
				continue
			}

			apps = append(apps, a)
		}
	}

	return apps, nil
}

// configVariants expands the sdkconfig config rules into variants.
func configVariants(dir string, rules []string) []configVariant {
	var variants []configVariant

	for _, rule := range rules {
		if rule == "" {
			continue
		}

		matches, err := filepath.Glob(filepath.Join(dir, rule))
		if err != nil {
			slog.Debug("Invalid config rule, skipping", "rule", rule, "error", err)
			continue
		}

		sort.Strings(matches)

		patternBase := filepath.Base(rule)
		star := strings.Index(patternBase, "*")

		for _, m := range matches {
			base := filepath.Base(m)

			name := base
			if star != -1 {
				name = strings.TrimSuffix(strings.TrimPrefix(base, patternBase[:star]), patternBase[star+1:])
			}

			variants = append(variants, configVariant{name: name, path: m})
		}
	}

	if len(variants) == 0 {
		variants = []configVariant{{}}
	}

	return variants
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}
