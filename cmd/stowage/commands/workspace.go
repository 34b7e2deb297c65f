package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/stowage/pkg/catalogue"
	"github.com/openfroyo/stowage/pkg/config"
	"github.com/openfroyo/stowage/pkg/engine"
	"github.com/openfroyo/stowage/pkg/ingest"
	"github.com/openfroyo/stowage/pkg/policy"
	"github.com/openfroyo/stowage/pkg/stores"
	"github.com/openfroyo/stowage/pkg/telemetry"
)

// cliActor identifies command line mutations in the audit trail.
const cliActor = "cli"

// workspace bundles everything a command needs to run one engine operation.
type workspace struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	store  *stores.SQLiteStore
	eng    *engine.Engine
	policy *policy.Engine
	loader *ingest.Loader
	logger zerolog.Logger

	// restored is false when the workspace held no snapshot yet.
	restored bool
}

// loadConfig reads the config file named by --config, falling back to
// ./stowage.yaml and then to the defaults.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.FileName); err != nil {
			log.Debug().Msg("No config file found, using defaults")
			return applyLogOverrides(config.Default()), nil
		}
		path = config.FileName
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return applyLogOverrides(cfg), nil
}

// applyLogOverrides lets --verbose and LOG_LEVEL raise the library log level.
func applyLogOverrides(cfg *config.Config) *config.Config {
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Telemetry.Logging.Level = level
	}
	return cfg
}

// openWorkspace opens the store, wires telemetry and policy into a new engine
// and restores the latest snapshot. extra engine options are applied last.
func openWorkspace(ctx context.Context, extra ...engine.Option) (*workspace, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry: %w", err)
	}

	ws := &workspace{
		cfg:    cfg,
		tel:    tel,
		logger: tel.Logger.NewComponentLogger("workspace").Zerolog(),
	}
	ws.loader = ingest.NewLoader(tel.Logger.NewComponentLogger("ingest").Zerolog(), cfg.Catalogue.SchemaCheck)

	if ws.store, err = openStore(ctx, cfg); err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	tel.Events.Subscribe(stores.EventSink(ws.store, ws.logger), nil)

	opts := []engine.Option{
		engine.WithLimits(cfg.Limits),
		engine.WithObserver(tel.Observer()),
	}
	if cfg.Policy.Enabled {
		if ws.policy, err = newPolicyEngine(ctx, cfg, tel); err != nil {
			ws.Close(ctx)
			return nil, err
		}
		opts = append(opts, engine.WithPolicy(ws.policy))
	}
	opts = append(opts, extra...)

	if ws.eng, err = engine.New(catalogue.New(), opts...); err != nil {
		ws.Close(ctx)
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	snap, rec, err := ws.store.LatestSnapshot(ctx)
	switch {
	case errors.Is(err, stores.ErrNoSnapshot):
		ws.logger.Debug().Msg("Workspace holds no snapshot")
	case err != nil:
		ws.Close(ctx)
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	default:
		evicted, err := ws.eng.Restore(snap)
		if err != nil {
			ws.Close(ctx)
			return nil, fmt.Errorf("failed to restore snapshot %s: %w", rec.ID, err)
		}
		// The next saved snapshot records these; until then every command
		// reconciles the same way.
		for _, ev := range evicted {
			ws.logger.Warn().
				Str("item_id", ev.ItemID).
				Str("container_id", ev.ContainerID).
				Str("reason", ev.Reason).
				Msg("Item no longer fits the configured limits, unassigned on restore")
		}
		ws.restored = true
		ws.logger.Debug().
			Str("snapshot", rec.ID).
			Str("reason", rec.Reason).
			Msg("Restored workspace snapshot")
	}

	return ws, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*stores.SQLiteStore, error) {
	if cfg.Workspace.Database != ":memory:" {
		if err := os.MkdirAll(cfg.Workspace.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.DatabasePath()})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func newPolicyEngine(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) (*policy.Engine, error) {
	pe, err := policy.NewEngine(
		tel.Logger.NewComponentLogger("policy").Zerolog(),
		policy.WithMode(policy.Mode(cfg.Policy.Mode)),
		policy.WithViolationHandler(func(_ context.Context, v engine.PolicyViolation) {
			_ = tel.Events.PublishPolicyViolation(v.RecordID, v.Policy, v.Message)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := pe.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}
	return pe, nil
}

// bootstrap imports the configured catalogue files into an empty workspace.
// Missing or malformed files are fatal.
func (ws *workspace) bootstrap(ctx context.Context) (*engine.ImportResult, *engine.ImportResult, error) {
	cat, err := ws.loader.LoadCatalogue(ctx, ws.cfg.Catalogue.ContainersFile, ws.cfg.Catalogue.ItemsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load catalogue: %w", err)
	}
	return ws.importCatalogue(ctx, cat)
}

// importCatalogue imports containers before items so item references resolve.
func (ws *workspace) importCatalogue(ctx context.Context, cat *ingest.Catalogue) (*engine.ImportResult, *engine.ImportResult, error) {
	var containers, items *engine.ImportResult
	var err error

	if len(cat.Containers) > 0 {
		if containers, err = ws.eng.ImportContainers(ctx, cat.Containers); err != nil {
			return nil, nil, err
		}
	}
	if len(cat.Items) > 0 {
		if items, err = ws.eng.ImportItems(ctx, cat.Items); err != nil {
			return containers, nil, err
		}
	}
	return containers, items, nil
}

// save stores the engine state and an audit entry for action.
func (ws *workspace) save(ctx context.Context, action, target string, details interface{}) error {
	ws.tel.ObserveCatalogue(ctx, ws.eng)

	rec, err := ws.store.Checkpoint(ctx, ws.eng.Snapshot, action)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	if _, err := ws.store.PruneSnapshots(ctx, ws.cfg.Snapshots.Retain); err != nil {
		ws.logger.Warn().Err(err).Msg("Failed to prune snapshots")
	}

	entry := &stores.AuditEntry{
		Action:    action,
		Actor:     cliActor,
		Timestamp: time.Now(),
	}
	if target != "" {
		entry.TargetID = &target
	}
	if details != nil {
		if blob, err := marshalJSON(details); err == nil {
			entry.Details = &blob
		}
	}
	if err := ws.store.CreateAuditEntry(ctx, entry); err != nil {
		ws.logger.Warn().Err(err).Str("action", action).Msg("Failed to write audit entry")
	}

	ws.logger.Debug().
		Str("snapshot", rec.ID).
		Str("action", action).
		Msg("Saved workspace snapshot")
	return nil
}

// Close flushes telemetry and closes the store.
func (ws *workspace) Close(ctx context.Context) {
	if err := ws.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		ws.logger.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
	if ws.store != nil {
		if err := ws.store.Close(); err != nil {
			ws.logger.Warn().Err(err).Msg("Failed to close store")
		}
	}
}

// withWorkspace opens the workspace, runs fn and closes it again.
func withWorkspace(ctx context.Context, fn func(ctx context.Context, ws *workspace) error, extra ...engine.Option) error {
	ws, err := openWorkspace(ctx, extra...)
	if err != nil {
		return err
	}
	defer ws.Close(ctx)

	ctx = ws.tel.WithContext(ctx)
	return fn(ctx, ws)
}
