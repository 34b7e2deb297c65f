package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/stowage/pkg/engine"
	"github.com/openfroyo/stowage/pkg/telemetry"
)

func newPlaceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place <item-id>...",
		Short: "Place items into containers",
		Long: `Assign each item to the best eligible container.

A container is eligible when the item fits its width, depth and height and the
container stays within the item count and mass limits. The highest score wins;
a matching preferred zone adds the zone bonus to the item priority. Placing an
item that is already stored moves it when a better container exists.`,
		Example: `  stowage place 000001
  stowage place 000001 000002 000003`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *workspace) error {
				var outcomes []engine.PlacementOutcome
				err := telemetry.InstrumentOperation(ctx, engine.OpPlace, func(ctx context.Context) error {
					outcomes = ws.eng.PlaceAll(ctx, args)
					return nil
				})
				if err != nil {
					return err
				}

				results := make([]*engine.PlacementResult, 0, len(outcomes))
				var failed []error
				for _, o := range outcomes {
					if o.Err != nil {
						failed = append(failed, o.Err)
						continue
					}
					results = append(results, o.Result)
				}

				if len(results) > 0 {
					if err := ws.save(ctx, engine.OpPlace, args[0], results); err != nil {
						return err
					}
				}

				err = emit(placeOutput(outcomes), func() {
					for _, o := range outcomes {
						if o.Err != nil {
							fmt.Printf("✗ %s: %s\n", o.ItemID, reason(o.Err))
							continue
						}
						fmt.Printf("✓ %s -> %s (score %d)\n", o.ItemID, o.Result.ContainerID, o.Result.Score)
					}
				})
				if err != nil {
					return err
				}
				if len(failed) > 0 {
					return fmt.Errorf("%d of %d placements failed", len(failed), len(outcomes))
				}
				return nil
			})
		},
	}

	return cmd
}

// placeOutput mirrors the API placement response for each item.
func placeOutput(outcomes []engine.PlacementOutcome) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, map[string]interface{}{
				"item_id": o.ItemID,
				"status":  engine.StatusError,
				"message": reason(o.Err),
			})
			continue
		}
		out = append(out, map[string]interface{}{
			"item_id":      o.ItemID,
			"status":       engine.StatusSuccess,
			"container_id": o.Result.ContainerID,
			"score":        o.Result.Score,
		})
	}
	return out
}

func newRetrieveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve <item-id>",
		Short: "Take an item out of its container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *workspace) error {
				var res *engine.RetrievalResult
				err := telemetry.InstrumentOperation(ctx, engine.OpRetrieve, func(ctx context.Context) error {
					var err error
					res, err = ws.eng.Retrieve(ctx, args[0])
					return err
				}, telemetry.AttrItemID.String(args[0]))
				if err != nil {
					return fmt.Errorf("%s", reason(err))
				}

				if err := ws.save(ctx, engine.OpRetrieve, res.ItemID, res); err != nil {
					return err
				}

				return emit(map[string]interface{}{
					"status":  engine.StatusSuccess,
					"item_id": res.ItemID,
				}, func() {
					fmt.Printf("✓ Retrieved %s from %s\n", res.ItemID, res.ContainerID)
				})
			})
		},
	}

	return cmd
}

func newSearchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find items by id or name",
		Long: `List the items whose id contains the query or whose name contains it,
ignoring case.`,
		Example: `  stowage search 0001
  stowage search "food packet"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *workspace) error {
				hits, err := ws.eng.Search(ctx, args[0])
				if err != nil {
					return fmt.Errorf("%s", reason(err))
				}

				return emit(hits, func() {
					for _, h := range hits {
						container := h.ContainerID
						if container == "" {
							container = "-"
						}
						fmt.Printf("%-10s %-30s %s\n", h.ItemID, h.Name, container)
					}
				})
			})
		},
	}

	return cmd
}
