package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/edgefw/buildmatrix/internal/app"
	"github.com/edgefw/buildmatrix/internal/config"
	"github.com/edgefw/buildmatrix/internal/logscan"
	"github.com/edgefw/buildmatrix/internal/manifest"
	"github.com/edgefw/buildmatrix/internal/runner"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:          "build [paths...]",
	Short:        "Build the app matrix",
	Long:         `Discover apps under the given paths and build every (app, target, config) combination.`,
	RunE:         runBuild,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForBuild(cmd, args)
	if err != nil {
		return err
	}

	setupLogging(cfg.Verbose)

	settings, err := buildSettings(cfg)
	if err != nil {
		return err
	}

	apps, err := discoverApps(cfg, args, settings)
	if err != nil {
		return err
	}

	if len(apps) == 0 {
		slog.Warn("No apps found", "paths", args)
		return nil
	}

	shard := shardApps(apps, cfg.ParallelCount, cfg.ParallelIndex)
	slog.Info("Building app matrix",
		"total", len(apps),
		"shard", len(shard),
		"parallel_index", cfg.ParallelIndex,
		"parallel_count", cfg.ParallelCount)

	buildOpts := app.BuildOptions{
		ManifestRootPath:     manifestRootPath(cfg),
		ModifiedComponents:   cfg.ModifiedComponents,
		ModifiedFiles:        cfg.ModifiedFiles,
		CheckAppDependencies: cfg.CheckAppDependencies,
	}

	var built, skipped, failed int
	for _, a := range shard {
		ok, err := a.Build(buildOpts)
		switch {
		case err != nil:
			failed++
			slog.Error("Build failed", "app", a.String(), "error", err)
		case ok:
			built++
		default:
			skipped++
		}
	}

	slog.Info("Build matrix finished", "built", built, "skipped", skipped, "failed", failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d builds failed", failed, len(shard))
	}

	return nil
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildSettings assembles the run-wide collaborators from the configuration
// and the ESP-IDF environment.
func buildSettings(cfg *config.Config) (*app.Settings, error) {
	patterns := append([]string{}, cfg.IgnoreWarningStrs...)
	if cfg.IgnoreWarningFile != "" {
		fromFile, err := logscan.LoadPatternFile(cfg.IgnoreWarningFile)
		if err != nil {
			return nil, err
		}

		patterns = append(patterns, fromFile...)
	}

	ignores, err := logscan.CompilePatterns(patterns)
	if err != nil {
		return nil, err
	}

	settings := &app.Settings{
		IgnoreWarnings: ignores,
		IDFPath:        os.Getenv("IDF_PATH"),
	}

	if len(cfg.ManifestFiles) > 0 {
		m, err := manifest.Load(manifestRootPath(cfg), cfg.ManifestFiles...)
		if err != nil {
			return nil, err
		}

		settings.Manifest = m
	}

	settings.Python = "python3"
	settings.IDFVersion = runner.DetectIDFVersion(settings.Python, runner.LookIDFPy())
	if settings.IDFVersion == "" {
		slog.Warn("ESP-IDF version not detected, version-dependent behavior uses defaults")
	}

	return settings, nil
}

func manifestRootPath(cfg *config.Config) string {
	if cfg.ManifestRootPath != "" {
		return cfg.ManifestRootPath
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}

	return cwd
}

func discoverApps(cfg *config.Config, args []string, settings *app.Settings) ([]*app.App, error) {
	paths := args
	if len(paths) == 0 {
		paths = []string{"."}
	}

	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", p, err)
		}

		paths[i] = abs
	}

	apps, err := app.FindApps(paths, settings, app.DiscoverOptions{
		Target:      cfg.Target,
		Recursive:   cfg.Recursive,
		ConfigRules: cfg.ConfigRules,
		AppOptions: app.Options{
			WorkDir:       cfg.WorkDir,
			BuildDir:      cfg.BuildDir,
			BuildLogPath:  cfg.BuildLogFilename,
			SizeJSONPath:  cfg.SizeFilename,
			DryRun:        cfg.DryRun,
			Verbose:       cfg.Verbose,
			CheckWarnings: cfg.CheckWarnings,
			Preserve:      !cfg.NoPreserve,
			ParallelIndex: cfg.ParallelIndex,
			ParallelCount: cfg.ParallelCount,
		},
	})
	if err != nil {
		return nil, err
	}

	for i, a := range apps {
		a.Index = i + 1
	}

	return apps, nil
}

// shardApps slices the sorted matrix into count contiguous chunks and returns
// chunk index (1-based). The chunks differ in size by at most one.
func shardApps(apps []*app.App, count, index int) []*app.App {
	if count <= 1 {
		return apps
	}

	chunk := (len(apps) + count - 1) / count
	start := (index - 1) * chunk
	if start >= len(apps) {
		return nil
	}

	end := start + chunk
	if end > len(apps) {
		end = len(apps)
	}

	return apps[start:end]
}
