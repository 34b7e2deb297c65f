package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/stowage/pkg/config"
)

func newInitCommand() *cobra.Command {
	var (
		name  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a stowage workspace",
		Long: `Initialize a new workspace with a config file, a data directory and an
empty SQLite database.

The catalogue is not loaded; run 'stowage load' afterwards.`,
		Example: `  # Initialize a workspace in the current directory
  stowage init

  # Initialize with a custom config path
  stowage init --config /srv/station/stowage.yaml --name station-alpha`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.FileName
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			}

			log.Info().
				Str("config", path).
				Str("name", name).
				Msg("Initializing workspace")

			cfg := config.Default()
			if name != "" {
				cfg.Workspace.Name = name
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Printf("✓ Created config file: %s\n", path)

			// Load back so relative paths resolve against the config directory
			resolved, err := config.Load(path)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), resolved)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Printf("✓ Initialized SQLite database: %s\n", resolved.DatabasePath())

			fmt.Printf("\n✅ Workspace initialized successfully!\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Put %s and %s next to the config file\n",
				filepath.Base(resolved.Catalogue.ContainersFile), filepath.Base(resolved.Catalogue.ItemsFile))
			fmt.Printf("  2. Load the catalogue:\n")
			fmt.Printf("     stowage load\n\n")
			fmt.Printf("  3. Start the API:\n")
			fmt.Printf("     stowage serve\n\n")

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "workspace name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
