package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultTarget        = "all"
	DefaultBuildDir      = "build"
	DefaultParallelCount = 1
	DefaultParallelIndex = 1
	DefaultVerbose       = false
)

// Holds the configuration options for buildmatrix
type Config struct {
	// Chip target to build for, or "all" for every supported target
	Target string

	// Work directory template, empty means build in place
	WorkDir string

	// Build directory template, relative to the work directory
	BuildDir string

	// Build log filename, relative to the build directory
	BuildLogFilename string

	// Size report filename, relative to the build directory
	SizeFilename string

	// Sdkconfig glob rules expanding each app into config variants
	ConfigRules []string

	// Walk the whole tree below each path
	Recursive bool

	// Manifest rule files
	ManifestFiles []string
	// Root path manifest folder rules are relative to
	ManifestRootPath string

	// Warning-classification ignore patterns
	IgnoreWarningStrs []string
	// File with one ignore pattern per line
	IgnoreWarningFile string

	// Dependency-driven build decision inputs
	ModifiedComponents   []string
	ModifiedFiles        []string
	CheckAppDependencies bool

	// Shard the sorted matrix across parallel jobs
	ParallelCount int
	ParallelIndex int

	DryRun        bool
	CheckWarnings bool
	NoPreserve    bool
	Verbose       bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Target:               viper.GetString("target"),
		WorkDir:              viper.GetString("work_dir"),
		BuildDir:             viper.GetString("build_dir"),
		BuildLogFilename:     viper.GetString("build_log_filename"),
		SizeFilename:         viper.GetString("size_filename"),
		ConfigRules:          viper.GetStringSlice("config_rules"),
		Recursive:            viper.GetBool("recursive"),
		ManifestFiles:        viper.GetStringSlice("manifest_files"),
		ManifestRootPath:     viper.GetString("manifest_rootpath"),
		IgnoreWarningStrs:    viper.GetStringSlice("ignore_warning_strs"),
		IgnoreWarningFile:    viper.GetString("ignore_warning_file"),
		ModifiedComponents:   viper.GetStringSlice("modified_components"),
		ModifiedFiles:        viper.GetStringSlice("modified_files"),
		CheckAppDependencies: viper.GetBool("check_app_dependencies"),
		ParallelCount:        viper.GetInt("parallel_count"),
		ParallelIndex:        viper.GetInt("parallel_index"),
		DryRun:               viper.GetBool("dry_run"),
		CheckWarnings:        viper.GetBool("check_warnings"),
		NoPreserve:           viper.GetBool("no_preserve"),
		Verbose:              viper.GetBool("verbose"),
	}

	// Apply defaults if not set
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}

	if cfg.BuildDir == "" {
		cfg.BuildDir = DefaultBuildDir
	}

	if cfg.ParallelCount <= 0 {
		cfg.ParallelCount = DefaultParallelCount
	}

	if cfg.ParallelIndex <= 0 {
		cfg.ParallelIndex = DefaultParallelIndex
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ParallelIndex > c.ParallelCount {
		return fmt.Errorf("parallel index %d exceeds parallel count %d", c.ParallelIndex, c.ParallelCount)
	}

	// Resolve manifest root path
	if c.ManifestRootPath != "" {
		abs, err := filepath.Abs(c.ManifestRootPath)
		if err != nil {
			return fmt.Errorf("invalid manifest root path: %v", err)
		}

		c.ManifestRootPath = abs
	}

	// Resolve manifest files
	for i, file := range c.ManifestFiles {
		if file != "" {
			abs, err := filepath.Abs(file)
			if err != nil {
				return fmt.Errorf("invalid manifest file path: %v", err)
			}

			c.ManifestFiles[i] = abs
		}
	}

	if c.IgnoreWarningFile != "" {
		abs, err := filepath.Abs(c.IgnoreWarningFile)
		if err != nil {
			return fmt.Errorf("invalid ignore warning file path: %v", err)
		}

		c.IgnoreWarningFile = abs
	}

	return nil
}
