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
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stowage",
		Short: "Stowage - item placement and waste tracking for storage containers",
		Long: `Stowage assigns items to storage containers, tracks retrievals and
identifies expired items for removal.

Features:
  - Greedy placement with zone preference, count and mass limits
  - Waste identification, undocking and day simulation
  - CSV, JSON and CUE catalogue files with schema validation
  - Rego admission policies for catalogue imports
  - HTTP API with Prometheus metrics and OpenTelemetry tracing
  - SQLite-backed workspace snapshots, events and audit trail`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default ./stowage.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newLoadCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newPlaceCommand())
	rootCmd.AddCommand(newRetrieveCommand())
	rootCmd.AddCommand(newSearchCommand())
	rootCmd.AddCommand(newWasteCommand())
	rootCmd.AddCommand(newSimulateDayCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
