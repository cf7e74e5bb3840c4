package app

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// BuildOrNot is the tri-state rebuild verdict. It transitions from Unknown
// to Yes or No at most once; an Unknown verdict is resolved empirically by
// the CMake reconfigure probe.
type BuildOrNot int

const (
	// Unknown means no signal decided the verdict yet. Notably, an app
	// that declares no dependencies stays Unknown rather than No: silence
	// about dependencies is never read as "depends on nothing".
	Unknown BuildOrNot = iota

	// Yes means the app must be rebuilt.
	Yes

	// No means the change set cannot affect the app.
	No
)

func (b BuildOrNot) String() string {
	switch b {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// BuildOptions carries the change-set inputs for the build decision and the
// build invocation.
type BuildOptions struct {
	// ManifestRootPath anchors the dependency file patterns.
	ManifestRootPath string

	// ModifiedComponents is the set of changed component names. Nil means
	// the information is unavailable.
	ModifiedComponents []string

	// ModifiedFiles is the set of changed file paths. Nil means the
	// information is unavailable.
	ModifiedFiles []string

	// CheckAppDependencies enables the dependency-aware decision; when
	// false every app is rebuilt unconditionally.
	CheckAppDependencies bool
}

// ShouldBuild returns the current verdict.
func (a *App) ShouldBuild() BuildOrNot {
	return a.shouldBuild
}

// CheckShouldBuild decides whether this app must be rebuilt. The verdict is
// sticky: once decided, later calls are no-ops.
func (a *App) CheckShouldBuild(opts BuildOptions) {
	if a.shouldBuild != Unknown {
		return
	}

	if !opts.CheckAppDependencies {
		a.shouldBuild = Yes
		return
	}

	if a.isModified(opts.ModifiedFiles) {
		slog.Debug("Should be built, app directory modified", "app", a.String())
		a.shouldBuild = Yes
		return
	}

	componentSignal := Unknown
	fileSignal := Unknown

	if opts.ModifiedComponents != nil {
		depends := a.DependsComponents()
		if intersects(depends, opts.ModifiedComponents) {
			slog.Debug("Should be built, depends on modified components",
				"app", a.String(),
				"depends", strings.Join(depends, ","),
				"modified", strings.Join(opts.ModifiedComponents, ","))
			componentSignal = Yes
		} else if len(depends) > 0 {
			componentSignal = No
		}
	}

	if opts.ModifiedFiles != nil {
		patterns := a.DependsFilepatterns()
		if filesMatchPatterns(opts.ModifiedFiles, patterns, opts.ManifestRootPath) {
			slog.Debug("Should be built, depends on modified file patterns",
				"app", a.String(),
				"patterns", strings.Join(patterns, ","))
			fileSignal = Yes
		} else if len(patterns) > 0 {
			fileSignal = No
		}
	}

	switch {
	case componentSignal == Yes || fileSignal == Yes:
		a.shouldBuild = Yes
	case componentSignal == No:
		// The file signal is No or Unknown here; a strict component "no"
		// wins over file-pattern silence.
		a.shouldBuild = No
	}
	// Otherwise left Unknown, to be decided by the reconfigure probe.
}

// isModified reports whether any modified file lies inside the app directory
// subtree. Documentation files are not counted.
func (a *App) isModified(modifiedFiles []string) bool {
	appDir, err := filepath.Abs(a.Dir)
	if err != nil {
		return false
	}

	for _, f := range modifiedFiles {
		if strings.HasSuffix(filepath.Base(f), ".md") {
			continue
		}

		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}

		rel, err := filepath.Rel(appDir, abs)
		if err != nil || rel == "." {
			continue
		}

		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

// filesMatchPatterns reports whether any file matches any of the glob-style
// patterns, both resolved relative to rootPath.
func filesMatchPatterns(files, patterns []string, rootPath string) bool {
	if len(patterns) == 0 || len(files) == 0 {
		return false
	}

	root, err := filepath.Abs(rootPath)
	if err != nil {
		return false
	}

	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}

		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}

		rel = filepath.ToSlash(rel)
		for _, p := range patterns {
			if ok, _ := doublestar.Match(filepath.ToSlash(p), rel); ok {
				return true
			}
		}
	}

	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}

	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}

	for _, s := range b {
		if set[s] {
			return true
		}
	}

	return false
}
