package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/stowage/pkg/api"
	"github.com/openfroyo/stowage/pkg/ingest"
	"github.com/openfroyo/stowage/pkg/policy"
)

const actionReload = "reload"

func newServeCommand() *cobra.Command {
	var (
		address string
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the placement API over HTTP",
		Long: `Start the HTTP API on the configured address.

An empty workspace is bootstrapped from the catalogue files first; missing
files are fatal. With --watch, changes to the catalogue files are re-imported
while serving, and policy files are reloaded when policy.watch is set.`,
		Example: `  # Serve on the configured address
  stowage serve

  # Serve on another port and re-import catalogue changes
  stowage serve --address :9000 --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *workspace) error {
				if address != "" {
					ws.cfg.Server.Address = address
				}
				if cmd.Flags().Changed("watch") {
					ws.cfg.Catalogue.Watch = watch
				}

				if !ws.restored {
					log.Info().Msg("Workspace is empty, loading catalogue files")
					containers, items, err := ws.bootstrap(ctx)
					if err != nil {
						return err
					}
					if err := ws.save(ctx, actionLoad, "", nil); err != nil {
						return err
					}
					printImport("containers", containers)
					printImport("items", items)
				}

				if err := ws.tel.StartMetricsServer(); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}

				if ws.cfg.Catalogue.Watch {
					watcher := ingest.NewWatcher(ws.logger, ws.cfg.Catalogue.Debounce,
						ws.cfg.Catalogue.ContainersFile, ws.cfg.Catalogue.ItemsFile)
					if err := watcher.Start(ctx, ws.reloadCatalogue); err != nil {
						return err
					}
					defer watcher.Stop()
				}

				if ws.policy != nil && ws.cfg.Policy.Watch && len(ws.cfg.Policy.Paths) > 0 {
					loader := policy.NewLoader(ws.logger)
					if err := loader.Watch(ctx, ws.cfg.Policy.Paths, ws.policy.Replace); err != nil {
						return err
					}
					defer loader.Stop()
				}

				srv, err := api.New(ws.eng, api.Config{
					Address:         ws.cfg.Server.Address,
					ReadTimeout:     ws.cfg.Server.ReadTimeout,
					WriteTimeout:    ws.cfg.Server.WriteTimeout,
					ShutdownTimeout: ws.cfg.Server.ShutdownTimeout,
					MaxBodyBytes:    ws.cfg.Server.MaxBodyBytes,
					Retain:          ws.cfg.Snapshots.Retain,
				},
					api.WithTelemetry(ws.tel),
					api.WithStore(ws.store),
					api.WithSchemas(ws.loader.Schemas()),
				)
				if err != nil {
					return err
				}

				return srv.ListenAndServe(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-import catalogue files when they change")

	return cmd
}

// reloadCatalogue re-imports the changed catalogue files.
func (ws *workspace) reloadCatalogue(ctx context.Context, changed []string) error {
	var containersPath, itemsPath string
	for _, f := range changed {
		switch f {
		case absPath(ws.cfg.Catalogue.ContainersFile):
			containersPath = f
		case absPath(ws.cfg.Catalogue.ItemsFile):
			itemsPath = f
		}
	}

	cat, err := ws.loader.LoadCatalogue(ctx, containersPath, itemsPath)
	if err != nil {
		return err
	}
	containers, items, err := ws.importCatalogue(ctx, cat)
	if err != nil {
		return err
	}

	ws.logger.Info().
		Strs("files", changed).
		Interface("containers", containers).
		Interface("items", items).
		Msg("Catalogue re-imported")

	return ws.save(ctx, actionReload, "", changed)
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}
