package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/stowage/pkg/engine"
	"github.com/openfroyo/stowage/pkg/telemetry"
)

const asOfLayout = "2006-01-02"

// clockOption returns an engine clock fixed at asOf, or nothing when unset.
func clockOption(asOf string) ([]engine.Option, error) {
	if asOf == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(asOfLayout, asOf, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid --as-of date %q (want YYYY-MM-DD): %w", asOf, err)
	}
	return []engine.Option{engine.WithClock(func() time.Time { return t })}, nil
}

func newWasteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waste",
		Short: "Identify and remove expired items",
		Long: `Work with waste: items whose expiry date has passed.

An item expiring today already counts as waste. Items without an expiry date
("N/A" or empty) never expire; malformed dates are reported and skipped.`,
	}

	cmd.AddCommand(newWasteListCommand("identify", "List waste items", func(ws *workspace) func(context.Context) *engine.WasteReport {
		return ws.eng.IdentifyWaste
	}))
	cmd.AddCommand(newWasteListCommand("return-plan", "List the waste items to return", func(ws *workspace) func(context.Context) *engine.WasteReport {
		return ws.eng.ReturnPlan
	}))
	cmd.AddCommand(newRemovalCommand("undock", "Remove all waste from its containers", engine.OpUndock, "undocked",
		func(ws *workspace) func(context.Context) *engine.RemovalResult {
			return ws.eng.Undock
		}))

	return cmd
}

func newSimulateDayCommand() *cobra.Command {
	return newRemovalCommand("simulate-day", "Advance a day and remove waste", engine.OpSimulateDay, "waste_removed",
		func(ws *workspace) func(context.Context) *engine.RemovalResult {
			return ws.eng.SimulateDay
		})
}

func newWasteListCommand(use, short string, op func(*workspace) func(context.Context) *engine.WasteReport) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := clockOption(asOf)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *workspace) error {
				var report *engine.WasteReport
				_ = telemetry.InstrumentOperation(ctx, engine.OpIdentifyWaste, func(ctx context.Context) error {
					report = op(ws)(ctx)
					return nil
				})

				return emit(report, func() {
					if len(report.Items) == 0 {
						fmt.Println("No waste items")
					}
					for _, id := range report.Items {
						fmt.Println(id)
					}
					printDiagnostics(report.Diagnostics)
				})
			}, opts...)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "evaluate expiry at this date (YYYY-MM-DD)")

	return cmd
}

func newRemovalCommand(use, short, op, field string, run func(*workspace) func(context.Context) *engine.RemovalResult) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := clockOption(asOf)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *workspace) error {
				var res *engine.RemovalResult
				_ = telemetry.InstrumentOperation(ctx, op, func(ctx context.Context) error {
					res = run(ws)(ctx)
					return nil
				})

				if len(res.Removed) > 0 {
					if err := ws.save(ctx, op, "", res.RemovedIDs()); err != nil {
						return err
					}
				}

				return emit(map[string]interface{}{
					"status":  res.Status,
					"message": res.Message,
					field:     res.RemovedIDs(),
				}, func() {
					fmt.Printf("✓ %s: %d removed\n", res.Message, len(res.Removed))
					for _, rm := range res.Removed {
						fmt.Printf("  %s from %s\n", rm.ItemID, rm.ContainerID)
					}
					printDiagnostics(res.Diagnostics)
				})
			}, opts...)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "evaluate expiry at this date (YYYY-MM-DD)")

	return cmd
}

func printDiagnostics(diags []*engine.EngineError) {
	for _, d := range diags {
		fmt.Printf("  warning: %s: %s\n", d.ItemID, d.Reason())
	}
}
