package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from various sources
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForBuild loads configuration specifically for build operations
func (l *Loader) LoadForBuild(cmd *cobra.Command, args []string) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig(args)
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("target", DefaultTarget)
	viper.SetDefault("build_dir", DefaultBuildDir)
	viper.SetDefault("parallel_count", DefaultParallelCount)
	viper.SetDefault("parallel_index", DefaultParallelIndex)
	viper.SetDefault("verbose", DefaultVerbose)
}

// loadGlobalConfig loads global configuration from the user config directory
func (l *Loader) loadGlobalConfig() {
	configHome := os.Getenv("BUILDMATRIX_CONFIG_HOME")
	if configHome == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return
		}

		configHome = filepath.Join(base, "buildmatrix")
	}

	for _, ext := range configExts {
		globalPath := filepath.Join(configHome, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads local configuration from the first app directory,
// falling back to the working directory when no paths were given
func (l *Loader) loadLocalConfig(args []string) {
	dir, err := os.Getwd()
	if err != nil {
		return
	}

	if len(args) > 0 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return // silently ignore, config.Load() will handle validation
		}

		dir = abs
	}

	localPath := FindLocalConfig(dir)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.ReadInConfig()
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	for flag, key := range map[string]string{
		"target":                 "target",
		"work-dir":               "work_dir",
		"build-dir":              "build_dir",
		"build-log":              "build_log_filename",
		"size-file":              "size_filename",
		"config":                 "config_rules",
		"recursive":              "recursive",
		"manifest-file":          "manifest_files",
		"manifest-rootpath":      "manifest_rootpath",
		"ignore-warning-str":     "ignore_warning_strs",
		"ignore-warning-file":    "ignore_warning_file",
		"modified-components":    "modified_components",
		"modified-files":         "modified_files",
		"check-app-dependencies": "check_app_dependencies",
		"parallel-count":         "parallel_count",
		"parallel-index":         "parallel_index",
		"dry-run":                "dry_run",
		"check-warnings":         "check_warnings",
		"no-preserve":            "no_preserve",
		"verbose":                "verbose",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}
