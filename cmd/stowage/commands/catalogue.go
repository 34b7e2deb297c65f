package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/stowage/pkg/api"
	"github.com/openfroyo/stowage/pkg/engine"
	"github.com/openfroyo/stowage/pkg/ingest"
	"github.com/openfroyo/stowage/pkg/telemetry"
)

func newExportCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Show the container arrangement",
		Long: `Print every container with the items it holds, in placement order.

With --dir, the catalogue is also written as containers.csv and items.csv in
the bootstrap layout so it can be loaded into another workspace.`,
		Example: `  stowage export
  stowage export --dir ./backup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *workspace) error {
				arrangement := ws.eng.Arrangement(ctx)

				if dir != "" {
					if err := exportCSV(dir, ws.eng.Snapshot()); err != nil {
						return err
					}
				}

				return emit(arrangement, func() {
					for _, c := range arrangement {
						fmt.Printf("%s [%s] %.1f kg: %s\n", c.ContainerID, c.Zone, c.Mass, strings.Join(c.Items, ", "))
					}
					if dir != "" {
						fmt.Printf("✓ Wrote catalogue to %s\n", dir)
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "also write the catalogue as CSV files to this directory")

	return cmd
}

func exportCSV(dir string, snap *engine.Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	write := func(name string, fn func(f *os.File) error) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		if err := fn(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		return f.Close()
	}

	if err := write("containers.csv", func(f *os.File) error {
		return ingest.WriteContainersCSV(f, snap.Containers)
	}); err != nil {
		return err
	}
	return write("items.csv", func(f *os.File) error {
		return ingest.WriteItemsCSV(f, snap.Items)
	})
}

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import container or item records",
		Long: `Import records from a CSV, JSON or CUE file into the workspace.

An import is all-or-nothing: any invalid record, or an admission policy
denial, leaves the catalogue unchanged.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "items <file>",
		Short:   "Import item records",
		Example: `  stowage import items new_items.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), engine.OpImportItems, args[0], func(ctx context.Context, ws *workspace) (*engine.ImportResult, error) {
				records, err := ws.loader.LoadItems(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return ws.eng.ImportItems(ctx, records)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "containers <file>",
		Short:   "Import container records",
		Example: `  stowage import containers modules.cue`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), engine.OpImportContainer, args[0], func(ctx context.Context, ws *workspace) (*engine.ImportResult, error) {
				records, err := ws.loader.LoadContainers(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return ws.eng.ImportContainers(ctx, records)
			})
		},
	})

	return cmd
}

func runImport(ctx context.Context, op, file string, fn func(context.Context, *workspace) (*engine.ImportResult, error)) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *workspace) error {
		var res *engine.ImportResult
		err := telemetry.InstrumentOperation(ctx, op, func(ctx context.Context) error {
			var err error
			res, err = fn(ctx, ws)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s", reason(err))
		}

		if err := ws.save(ctx, op, "", map[string]interface{}{"file": file, "result": res}); err != nil {
			return err
		}

		return emit(res, func() {
			printImport(filepath.Base(file), res)
		})
	})
}

func newLogsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show where each stored item was placed and when",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *workspace) error {
				entries := ws.eng.PlacementLog(ctx)

				return emit(entries, func() {
					for _, e := range entries {
						fmt.Println(api.FormatLogEntry(e))
					}
				})
			})
		},
	}

	return cmd
}
