package config

import (
	"time"

	"github.com/openfroyo/stowage/pkg/engine"
	"github.com/openfroyo/stowage/pkg/telemetry"
)

// Config represents the workspace configuration file.
type Config struct {
	// Workspace locates the workspace data.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Catalogue configures the bootstrap files and the watcher.
	Catalogue CatalogueConfig `yaml:"catalogue"`

	// Limits overrides the placement limits.
	Limits engine.Limits `yaml:"limits"`

	// Policy configures import admission.
	Policy PolicyConfig `yaml:"policy"`

	// Snapshots controls snapshot retention.
	Snapshots SnapshotConfig `yaml:"snapshots"`

	// Telemetry configures logging, tracing, metrics and events.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// WorkspaceConfig locates the workspace on disk.
type WorkspaceConfig struct {
	// Name is the workspace name.
	Name string `yaml:"name" validate:"required,max=64"`

	// DataDir holds the database. Relative paths are resolved against the
	// directory of the config file.
	DataDir string `yaml:"data_dir" validate:"required"`

	// Database is the SQLite file name or path. Relative paths are resolved
	// against DataDir; ":memory:" keeps the workspace in memory.
	Database string `yaml:"database" validate:"required"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Address is the listen address (e.g., ":8000").
	Address string `yaml:"address" validate:"required,hostname_port"`

	// ReadTimeout bounds reading a request.
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gte=0"`

	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gt=0"`
}

// CatalogueConfig configures catalogue bootstrap and hot re-import.
type CatalogueConfig struct {
	// ContainersFile is the container catalogue (.csv, .json or .cue).
	ContainersFile string `yaml:"containers_file" validate:"required"`

	// ItemsFile is the item catalogue (.csv, .json or .cue).
	ItemsFile string `yaml:"items_file" validate:"required"`

	// Watch re-imports the catalogue files when they change while serving.
	Watch bool `yaml:"watch"`

	// Debounce coalesces bursts of file events.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`

	// SchemaCheck validates every record against the CUE record schema.
	SchemaCheck bool `yaml:"schema_check"`
}

// PolicyConfig configures import admission.
type PolicyConfig struct {
	// Enabled turns admission evaluation on.
	Enabled bool `yaml:"enabled"`

	// Paths lists additional Rego policy files or directories.
	Paths []string `yaml:"paths,omitempty" validate:"dive,required"`

	// Mode is the enforcement mode. In advisory mode violations are reported
	// as warnings and the import proceeds.
	Mode string `yaml:"mode" validate:"omitempty,oneof=advisory enforcing"`

	// Watch reloads policy files when they change.
	Watch bool `yaml:"watch"`
}

// SnapshotConfig controls how many catalogue snapshots are kept.
type SnapshotConfig struct {
	// Retain is the number of most recent snapshots kept after each save.
	Retain int `yaml:"retain" validate:"gte=1"`
}

// Policy enforcement modes.
const (
	PolicyModeAdvisory  = "advisory"
	PolicyModeEnforcing = "enforcing"
)
