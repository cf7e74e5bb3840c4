package cmd

import (
	"fmt"
	"os"

	"github.com/edgefw/buildmatrix/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:          "buildmatrix",
	Short:        "ESP-IDF build-matrix orchestrator",
	Long:         `Discover ESP-IDF apps and build them across chip targets and sdkconfig variants`,
	RunE:         runBuild,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)

	flags := rootCmd.PersistentFlags()
	flags.StringP("target", "t", "", "Chip target to build for, or \"all\" (e.g. esp32, esp32s2)")
	flags.StringSlice("config", []string{}, "Sdkconfig glob rules expanding each app into variants (e.g. sdkconfig.ci.*)")
	flags.String("work-dir", "", "Work directory template, supports @t/@w/@n/@f/@i/@p placeholders")
	flags.String("build-dir", "", "Build directory template, relative to the work directory")
	flags.String("build-log", "", "Build log filename, relative to the build directory")
	flags.String("size-file", "", "Size report filename, relative to the build directory")
	flags.BoolP("recursive", "r", false, "Walk the whole tree below each path")
	flags.Bool("dry-run", false, "Resolve the matrix without touching the filesystem")
	flags.Bool("check-warnings", false, "Fail builds that emit unignored warnings")
	flags.Bool("no-preserve", false, "Remove build artifacts after a successful build")
	flags.BoolP("verbose", "v", false, "Verbose output")
	flags.StringSlice("manifest-file", []string{}, "Manifest rule files")
	flags.String("manifest-rootpath", "", "Root path the manifest folder rules are relative to")
	flags.StringSlice("ignore-warning-str", []string{}, "Regexes of log warnings to ignore")
	flags.String("ignore-warning-file", "", "File with one ignore regex per line")
	flags.StringSlice("modified-components", nil, "Changed components driving the build decision")
	flags.StringSlice("modified-files", nil, "Changed files driving the build decision")
	flags.Bool("check-app-dependencies", false, "Only build apps affected by the modified components and files")
	flags.Int("parallel-count", 1, "Total number of parallel jobs the matrix is sharded over")
	flags.Int("parallel-index", 1, "1-based index of this job's shard")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(findCmd)

	viper.SetDefault("target", "all")
	viper.SetDefault("build_dir", "build")
	viper.SetDefault("parallel_count", 1)
	viper.SetDefault("parallel_index", 1)
	viper.SetDefault("verbose", false)
}
