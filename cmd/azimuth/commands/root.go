// Package commands implements the azimuth CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// buildVersion is the running version, threaded into telemetry.
	buildVersion = "dev"
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "azimuth",
		Short: "Azimuth - autonomous infrastructure goal engine",
		Long: `Azimuth turns a natural-language infrastructure request into a goal
graph and drives it to completion: dependency-ordered scheduling, bounded
parallel execution, confidence-scored evaluation, and adaptive recovery
from transient faults, name conflicts, and quota limits.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
