package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/stowage/pkg/ingest"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the workspace catalogue",
		Long: `Check the stored catalogue against its invariants:
  - container members exist, are listed once and point back at the container
  - no container exceeds the item count or mass limit
  - every item reference names a container that lists the item

The store health is checked as well. Any violation makes the command fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *workspace) error {
				if err := ws.store.HealthCheck(ctx); err != nil {
					return fmt.Errorf("store health check failed: %w", err)
				}

				stats := ws.eng.Stats()
				violations := ws.eng.Verify()

				err := emit(map[string]interface{}{
					"stats":      stats,
					"violations": violations,
				}, func() {
					fmt.Printf("Containers: %d\nItems:      %d (%d stored)\n", stats.Containers, stats.Items, stats.Assigned)
					for _, v := range violations {
						fmt.Printf("✗ %s\n", v.Message)
					}
					if len(violations) == 0 {
						fmt.Println("✓ Catalogue is consistent")
					}
				})
				if err != nil {
					return err
				}
				if len(violations) > 0 {
					return fmt.Errorf("%d invariant violations", len(violations))
				}
				return nil
			})
		},
	}

	return cmd
}

func newValidateCommand() *cobra.Command {
	var noSchema bool

	cmd := &cobra.Command{
		Use:   "validate <containers-file> [items-file]",
		Short: "Validate catalogue files",
		Long: `Validate catalogue files without touching the workspace.

This command checks:
  - file syntax (CSV, JSON or CUE)
  - required columns and numeric fields
  - record schema conformance (CUE)

Without arguments the files named in the config are validated. Pass "-" as the
containers file to validate an items file alone.`,
		Example: `  # Validate the configured catalogue files
  stowage validate

  # Validate specific files
  stowage validate containers.csv input_items.csv`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			containersFile, itemsFile := cfg.Catalogue.ContainersFile, cfg.Catalogue.ItemsFile
			if len(args) > 0 {
				containersFile, itemsFile = args[0], ""
				if containersFile == "-" {
					containersFile = ""
				}
			}
			if len(args) > 1 {
				itemsFile = args[1]
			}

			log.Info().
				Str("containers", containersFile).
				Str("items", itemsFile).
				Bool("schema", !noSchema).
				Msg("Validating catalogue files")

			loader := ingest.NewLoader(log.Logger, !noSchema)
			cat, err := loader.LoadCatalogue(cmd.Context(), containersFile, itemsFile)
			if err != nil {
				return err
			}

			return emit(map[string]interface{}{
				"valid":      true,
				"containers": len(cat.Containers),
				"items":      len(cat.Items),
			}, func() {
				fmt.Printf("✓ %d containers, %d items are valid\n", len(cat.Containers), len(cat.Items))
			})
		},
	}

	cmd.Flags().BoolVar(&noSchema, "no-schema", false, "skip the CUE record schema check")

	return cmd
}
