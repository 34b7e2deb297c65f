package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/stowage/pkg/engine"
	"github.com/openfroyo/stowage/pkg/telemetry"
)

// FileName is the conventional name of the workspace config file.
const FileName = "stowage.yaml"

// Default returns the default workspace configuration.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Name:     "stowage",
			DataDir:  "data",
			Database: "stowage.db",
		},
		Server: ServerConfig{
			Address:         ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Catalogue: CatalogueConfig{
			ContainersFile: "containers.csv",
			ItemsFile:      "input_items.csv",
			Watch:          false,
			Debounce:       500 * time.Millisecond,
			SchemaCheck:    true,
		},
		Limits: engine.DefaultLimits(),
		Policy: PolicyConfig{
			Enabled: false,
			Mode:    PolicyModeEnforcing,
		},
		Snapshots: SnapshotConfig{
			Retain: 20,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads the config file at path on top of the defaults and validates
// it. Relative paths inside the file are resolved against its directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.resolve(filepath.Dir(abs))

	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks struct tags, the placement limits and the telemetry section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("invalid config: limits: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid config: telemetry: %w", err)
	}

	return nil
}

// DatabasePath returns the SQLite path of the workspace.
func (c *Config) DatabasePath() string {
	if c.Workspace.Database == ":memory:" || filepath.IsAbs(c.Workspace.Database) {
		return c.Workspace.Database
	}
	return filepath.Join(c.Workspace.DataDir, c.Workspace.Database)
}

// Advisory reports whether policy violations only produce warnings.
func (c *Config) Advisory() bool {
	return c.Policy.Mode == PolicyModeAdvisory
}

// resolve makes relative paths absolute against base.
func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || p == ":memory:" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	c.Workspace.DataDir = abs(c.Workspace.DataDir)
	c.Catalogue.ContainersFile = abs(c.Catalogue.ContainersFile)
	c.Catalogue.ItemsFile = abs(c.Catalogue.ItemsFile)
	for i, p := range c.Policy.Paths {
		c.Policy.Paths[i] = abs(p)
	}
	if out := c.Telemetry.Logging.Output; out != "stdout" && out != "stderr" && out != "" {
		c.Telemetry.Logging.Output = abs(out)
	}
}
