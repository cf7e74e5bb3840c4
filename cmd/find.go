package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/edgefw/buildmatrix/internal/config"
	"github.com/spf13/cobra"
)

var findCmd = &cobra.Command{
	Use:          "find [paths...]",
	Short:        "Enumerate the app matrix",
	Long:         `Discover apps under the given paths and print every (app, target, config) combination as JSON, one per line.`,
	RunE:         runFind,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
}

func runFind(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	for _, a := range apps {
		line, err := json.Marshal(a)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, string(line))
	}

	return nil
}
