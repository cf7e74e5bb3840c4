package app

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/mod/semver"

	"github.com/edgefw/buildmatrix/internal/fsutil"
	"github.com/edgefw/buildmatrix/internal/logscan"
	"github.com/edgefw/buildmatrix/internal/runner"
)

// runCommand is swapped out in tests.
var runCommand = runner.Run

// ErrUnignoredWarnings marks a build that succeeded but produced warnings
// not covered by the ignore list while strict warning checking was on.
var ErrUnignoredWarnings = errors.New("build succeeded with unignored warnings")

// BuildError is the single fatal outcome of a build. It carries the location
// of the captured log, which is always preserved on failure.
type BuildError struct {
	LogPath string
	Err     error
}

func (e *BuildError) Error() string {
	if e.LogPath != "" {
		return fmt.Sprintf("build failed (log: %s): %v", e.LogPath, e.Err)
	}

	return fmt.Sprintf("build failed: %v", e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Build runs the full lifecycle for this app: prepare the workspace, invoke
// the toolchain, classify the captured log, optionally emit the size report,
// and optionally clean the build directory. It returns whether the toolchain
// actually built the app (false means skipped).
func (a *App) Build(opts BuildOptions) (bool, error) {
	slog.Debug("Preparing", "app", a.String())

	workDir := a.WorkDir()
	buildPath := a.BuildPath()

	if workDir != a.Dir {
		if _, err := os.Stat(workDir); err == nil {
			slog.Debug("Work directory exists, removing", "path", workDir)
			if !a.DryRun {
				if err := os.RemoveAll(workDir); err != nil {
					return false, fmt.Errorf("failed to remove work directory: %w", err)
				}
			}
		}

		slog.Debug("Copying app", "from", a.Dir, "to", workDir)
		if !a.DryRun {
			if err := fsutil.CopyTree(a.Dir, workDir); err != nil {
				return false, fmt.Errorf("failed to copy app to work directory: %w", err)
			}
		}
	}

	if _, err := os.Stat(buildPath); err == nil {
		slog.Debug("Build directory exists, removing", "path", buildPath)
		if !a.DryRun {
			if err := os.RemoveAll(buildPath); err != nil {
				return false, fmt.Errorf("failed to remove build directory: %w", err)
			}
		}
	}

	if !a.DryRun {
		if err := os.MkdirAll(buildPath, 0o755); err != nil {
			return false, fmt.Errorf("failed to create build directory: %w", err)
		}
	}

	// The toolchain regenerates sdkconfig; a stray one from a prior run
	// would leak settings into this build.
	staleSdkconfig := filepath.Join(workDir, "sdkconfig")
	if _, err := os.Stat(staleSdkconfig); err == nil {
		slog.Debug("Removing stale sdkconfig file", "path", staleSdkconfig)
		if !a.DryRun {
			_ = os.Remove(staleSdkconfig)
		}
	}

	if p := a.BuildLogPath(); p != "" {
		slog.Info("Writing build log", "path", p)
	}

	if a.DryRun {
		slog.Debug("Skipping build (dry run)", "app", a.String())
		return true, nil
	}

	logfile, keepLog, err := a.openLogSink()
	if err != nil {
		return false, err
	}
	logPath := logfile.Name()

	built, buildErr := a.system.run(a, logfile, opts)
	if err := logfile.Close(); err != nil {
		slog.Debug("Failed to close build log", "path", logPath, "error", err)
	}

	lines, hasUnignoredWarning := a.classifyLog(logPath)

	if buildErr != nil {
		slog.Error("Last lines from the build log", "count", a.settings.LogDebugLines, "path", logPath)
		start := len(lines) - a.settings.LogDebugLines
		if start < 0 {
			start = 0
		}
		for _, line := range lines[start:] {
			slog.Error(line)
		}
	}

	// Diagnostic logs from failed builds are always preserved, even when no
	// persistent log was requested.
	if !keepLog && buildErr == nil {
		if err := os.Remove(logPath); err == nil {
			slog.Debug("Removed temporary build log", "path", logPath)
		}
	}

	if built && buildErr == nil && a.SizeJSONPath() != "" {
		if err := a.writeSizeJSON(); err != nil {
			return built, &BuildError{LogPath: logPath, Err: err}
		}
	}

	if !a.Preserve {
		slog.Info("Removing build directory", "path", buildPath)
		var excludes []string
		if p := a.SizeJSONPath(); p != "" {
			excludes = append(excludes, filepath.Base(p))
		}
		if p := a.BuildLogPath(); p != "" {
			excludes = append(excludes, filepath.Base(p))
		}
		if err := fsutil.RemoveDir(buildPath, excludes); err != nil {
			slog.Warn("Failed to clean build directory", "path", buildPath, "error", err)
		}
	}

	if buildErr != nil {
		return built, &BuildError{LogPath: logPath, Err: buildErr}
	}

	if a.CheckWarnings && hasUnignoredWarning {
		return built, &BuildError{LogPath: logPath, Err: ErrUnignoredWarnings}
	}

	if hasUnignoredWarning {
		slog.Info("Build succeeded with warnings", "app", a.String())
	} else {
		slog.Info("Build succeeded", "app", a.String())
	}

	return built, nil
}

// openLogSink opens the configured log path, or an anonymous scratch file
// that is deleted afterward unless the build failed.
func (a *App) openLogSink() (*os.File, bool, error) {
	if p := a.BuildLogPath(); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, false, fmt.Errorf("failed to create build log directory: %w", err)
		}

		f, err := os.Create(p)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create build log: %w", err)
		}

		return f, true, nil
	}

	f, err := os.CreateTemp("", "buildmatrix-*.log")
	if err != nil {
		return nil, false, fmt.Errorf("failed to create temporary build log: %w", err)
	}

	return f, false, nil
}

// classifyLog scans the captured log for error/warning markers and applies
// the ignore-pattern list. It returns the non-blank lines and whether any
// unignored warning was seen.
func (a *App) classifyLog(logPath string) ([]string, bool) {
	f, err := os.Open(logPath)
	if err != nil {
		slog.Debug("Failed to reopen build log", "path", logPath, "error", err)
		return nil, false
	}
	defer f.Close()

	classifier := logscan.NewClassifier(a.settings.IgnoreWarnings)

	var lines []string
	hasUnignoredWarning := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		lines = append(lines, line)

		flagged, ignored := classifier.Classify(line)
		if !flagged {
			continue
		}

		if ignored {
			slog.Info("Ignored warning", "line", line)
		} else {
			slog.Warn(line)
			hasUnignoredWarning = true
		}
	}

	// An over-long line stops the scan; lines past it escape classification.
	if err := scanner.Err(); err != nil {
		slog.Debug("Build log scan stopped early", "path", logPath, "error", err)
	}

	return lines, hasUnignoredWarning
}

// writeSizeJSON generates the size report from the linker map file. A
// missing map file is warned about and skipped.
func (a *App) writeSizeJSON() error {
	sizePath := a.SizeJSONPath()

	mapFile := fsutil.FindFirstMatch("*.map", a.BuildPath())
	if mapFile == "" {
		slog.Warn(".map file not found, cannot write size report", "path", sizePath)
		return nil
	}

	idfSizePy := filepath.Join(a.settings.IDFPath, "tools", "idf_size.py")

	args, toStdout := sizeCommandArgs(a.settings.IDFVersion, idfSizePy, mapFile, sizePath)
	if toStdout {
		f, err := os.Create(sizePath)
		if err != nil {
			return fmt.Errorf("failed to create size report: %w", err)
		}
		defer f.Close()

		if err := runCommand(a.settings.Python, args, runner.Options{LogSink: f}); err != nil {
			return fmt.Errorf("failed to generate size report: %w", err)
		}
	} else {
		if err := runCommand(a.settings.Python, args, runner.Options{}); err != nil {
			return fmt.Errorf("failed to generate size report: %w", err)
		}
	}

	slog.Info("Generated size report", "path", sizePath)

	return nil
}

// sizeCommandArgs builds the idf_size.py invocation for the given toolchain
// version. Newer versions take an explicit output file and format flag; the
// oldest branch writes raw stdout to the file.
func sizeCommandArgs(idfVersion, idfSizePy, mapFile, sizePath string) (args []string, toStdout bool) {
	v := "v" + idfVersion
	if idfVersion == "" || semver.Compare(v, "v4.1.0") < 0 {
		return []string{idfSizePy, "--json", mapFile}, true
	}

	args = []string{idfSizePy}
	if semver.Compare(v, "v5.1.0") < 0 {
		args = append(args, "--json")
	} else {
		args = append(args, "--format", "json")
	}
	args = append(args, "-o", sizePath, mapFile)

	return args, false
}
