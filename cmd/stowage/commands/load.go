package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/stowage/pkg/engine"
)

// Audit actions recorded by catalogue commands.
const (
	actionLoad = "load"
)

func newLoadCommand() *cobra.Command {
	var (
		containersFile string
		itemsFile      string
		placeAll       bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the catalogue files into the workspace",
		Long: `Import the container and item catalogue files into the workspace.

Files may be CSV (bootstrap layout), JSON or CUE; the format follows the file
extension. Records are merged into the current catalogue: new ids are added,
existing ids are replaced and assignments that no longer fit are evicted.`,
		Example: `  # Load the files named in stowage.yaml
  stowage load

  # Load explicit files and place every unassigned item
  stowage load --containers containers.csv --items input_items.csv --place`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *workspace) error {
				if containersFile != "" {
					ws.cfg.Catalogue.ContainersFile = containersFile
				}
				if itemsFile != "" {
					ws.cfg.Catalogue.ItemsFile = itemsFile
				}

				log.Info().
					Str("containers", ws.cfg.Catalogue.ContainersFile).
					Str("items", ws.cfg.Catalogue.ItemsFile).
					Msg("Loading catalogue")

				containers, items, err := ws.bootstrap(ctx)
				if err != nil {
					return err
				}

				var placed []engine.PlacementOutcome
				if placeAll {
					placed = ws.eng.PlaceAll(ctx, unassignedItems(ws))
				}

				if err := ws.save(ctx, actionLoad, "", map[string]interface{}{
					"containers_file": ws.cfg.Catalogue.ContainersFile,
					"items_file":      ws.cfg.Catalogue.ItemsFile,
				}); err != nil {
					return err
				}

				return emit(map[string]interface{}{
					"containers": containers,
					"items":      items,
					"placed":     placed,
				}, func() {
					printImport("containers", containers)
					printImport("items", items)
					if placeAll {
						printPlaceAll(placed)
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&containersFile, "containers", "", "container catalogue file (overrides config)")
	cmd.Flags().StringVar(&itemsFile, "items", "", "item catalogue file (overrides config)")
	cmd.Flags().BoolVar(&placeAll, "place", false, "place every unassigned item after loading")

	return cmd
}

// unassignedItems lists the ids of items without a container, in catalogue order.
func unassignedItems(ws *workspace) []string {
	var ids []string
	for _, entry := range ws.eng.Snapshot().Items {
		if entry.ContainerID == "" {
			ids = append(ids, entry.ID)
		}
	}
	return ids
}

func printPlaceAll(outcomes []engine.PlacementOutcome) {
	var ok int
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Printf("  ✗ %s: %s\n", o.ItemID, reason(o.Err))
			continue
		}
		ok++
	}
	fmt.Printf("✓ placed %d of %d items\n", ok, len(outcomes))
}

// reason returns the engine message of err, or err itself.
func reason(err error) string {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return ee.Reason()
	}
	return err.Error()
}
