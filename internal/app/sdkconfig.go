package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/edgefw/buildmatrix/internal/fsutil"
)

// The scratch directory for normalized sdkconfig copies, relative to the
// work directory.
const expandedSdkconfigDir = "expanded_sdkconfig_files"

// The sdkconfig key that declares the chip target.
const sdkconfigTargetKey = "CONFIG_IDF_TARGET"

// DefaultSdkconfig is the candidate used when neither an explicit defaults
// list nor $SDKCONFIG_DEFAULTS is given.
const DefaultSdkconfig = "sdkconfig.defaults"

var sdkconfigLineRegex = regexp.MustCompile(`^([^=]+)="?([^"\n]*)"?$`)

// parseSdkconfigLine splits a KEY=VALUE sdkconfig line, tolerating optional
// quotes around the value. ok is false for comments and blank lines.
func parseSdkconfigLine(line string) (key, value string, ok bool) {
	m := sdkconfigLineRegex.FindStringSubmatch(strings.TrimRight(line, "\n"))
	if m == nil {
		return "", "", false
	}

	return m[1], m[2], true
}

// sdkconfigCandidates returns the ordered list of sdkconfig files to
// process: the defaults, then the overlay.
func (a *App) sdkconfigCandidates() []string {
	var candidates []string

	switch {
	case a.sdkDefaults != "":
		candidates = strings.Split(a.sdkDefaults, ";")
	default:
		if env, ok := a.settings.Env("SDKCONFIG_DEFAULTS"); ok {
			candidates = strings.Split(env, ";")
		} else {
			candidates = []string{DefaultSdkconfig}
		}
	}

	if a.SdkconfigPath != "" {
		candidates = append(candidates, a.SdkconfigPath)
	}

	return candidates
}

// processSdkconfigFiles expands environment variables in the candidate
// sdkconfig files, routes toolchain-variant-specific keys, and writes
// normalized copies to the scratch directory when the content changed.
// Runs once at construction time; re-runs with unchanged inputs are no-ops.
func (a *App) processSdkconfigFiles() error {
	workDir := a.WorkDir()
	scratchRoot := filepath.Join(workDir, expandedSdkconfigDir)
	scratchDir := filepath.Join(scratchRoot, filepath.Base(a.BuildDir()))

	var res []string

	for _, f := range a.sdkconfigCandidates() {
		if f == "" {
			continue
		}

		if !filepath.IsAbs(f) {
			f = filepath.Join(workDir, f)
		}

		info, err := os.Stat(f)
		if err != nil || info.IsDir() {
			slog.Debug("Sdkconfig file not found, skipping", "path", f)
			continue
		}

		original, err := os.ReadFile(f)
		if err != nil {
			slog.Debug("Sdkconfig file not readable, skipping", "path", f, "error", err)
			continue
		}

		normalized := a.normalizeSdkconfig(string(original))
		if normalized == string(original) {
			slog.Debug("Using sdkconfig file", "path", f)
			res = append(res, f)
			continue
		}

		if err := os.MkdirAll(scratchDir, 0o755); err != nil {
			return fmt.Errorf("failed to create sdkconfig scratch directory: %w", err)
		}

		scratchPath := filepath.Join(scratchDir, filepath.Base(f))
		if err := os.WriteFile(scratchPath, []byte(normalized), 0o644); err != nil {
			return fmt.Errorf("failed to write normalized sdkconfig file: %w", err)
		}

		slog.Debug("Expanded sdkconfig file", "from", f, "to", scratchPath)

		// The target-specific override convention: a sibling literally named
		// <basename>.<target> travels with the normalized copy.
		sibling := f + "." + a.Target
		if _, err := os.Stat(sibling); err == nil {
			slog.Debug("Copying target-specific sdkconfig file", "path", sibling)
			if err := fsutil.CopyFile(sibling, filepath.Join(scratchDir, filepath.Base(sibling))); err != nil {
				return fmt.Errorf("failed to copy target-specific sdkconfig file: %w", err)
			}
		}

		res = append(res, scratchPath)
	}

	// Best-effort removal when nothing was written. Failures on non-empty
	// directories are swallowed.
	_ = os.Remove(scratchDir)
	_ = os.Remove(scratchRoot)

	a.sdkconfigFiles = res

	return nil
}

// normalizeSdkconfig expands environment references line by line, records
// the declared chip target, and applies the variant-specific key routing.
func (a *App) normalizeSdkconfig(content string) string {
	var sb strings.Builder

	for _, line := range splitAfterLines(content) {
		expanded := expandEnv(line, a.settings.Env)

		key, value, ok := parseSdkconfigLine(expanded)
		if ok {
			if key == sdkconfigTargetKey {
				a.sdkconfigDefinedTarget = value
			}

			switch a.system.routeSdkconfigKey(key) {
			case routeInject:
				a.buildVars[key] = value
				continue
			case routeDrop:
				continue
			case routeKeep:
			}
		}

		sb.WriteString(expanded)
	}

	return sb.String()
}

// splitAfterLines splits content into lines that keep their trailing
// newline, so rejoining reproduces the input byte-for-byte.
func splitAfterLines(content string) []string {
	if content == "" {
		return nil
	}

	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}
