package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

// Loader reads catalogue files in any supported format.
type Loader struct {
	logger      zerolog.Logger
	schemas     *SchemaRegistry
	schemaCheck bool
}

// NewLoader creates a loader. With schemaCheck, CSV and JSON records are also
// validated against the CUE record schemas; CUE files always are.
func NewLoader(logger zerolog.Logger, schemaCheck bool) *Loader {
	return &Loader{
		logger:      logger.With().Str("component", "catalogue-loader").Logger(),
		schemas:     NewSchemaRegistry(),
		schemaCheck: schemaCheck,
	}
}

// Schemas returns the registry used for record validation.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// LoadContainers reads container records from path.
func (l *Loader) LoadContainers(ctx context.Context, path string) ([]catalogue.Container, error) {
	start := time.Now()
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	var records []catalogue.Container
	switch format {
	case FormatCUE:
		cat, err := l.schemas.LoadCUE(path)
		if err != nil {
			return nil, err
		}
		records = cat.Containers
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open containers file: %w", err)
		}
		defer f.Close()

		if format == FormatCSV {
			records, err = ReadContainersCSV(f, path)
		} else {
			records, err = ReadContainersJSON(f, path)
		}
		if err != nil {
			return nil, err
		}
		if l.schemaCheck {
			if errs := l.schemas.ValidateContainers(ctx, records); len(errs) > 0 {
				return nil, withFile(errs, path)
			}
		}
	}

	l.logger.Debug().
		Str("path", path).
		Str("format", string(format)).
		Int("containers", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Containers loaded")

	return records, nil
}

// LoadItems reads item records from path.
func (l *Loader) LoadItems(ctx context.Context, path string) ([]catalogue.Item, error) {
	start := time.Now()
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	var records []catalogue.Item
	switch format {
	case FormatCUE:
		cat, err := l.schemas.LoadCUE(path)
		if err != nil {
			return nil, err
		}
		records = cat.Items
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open items file: %w", err)
		}
		defer f.Close()

		if format == FormatCSV {
			records, err = ReadItemsCSV(f, path)
		} else {
			records, err = ReadItemsJSON(f, path)
		}
		if err != nil {
			return nil, err
		}
		if l.schemaCheck {
			if errs := l.schemas.ValidateItems(ctx, records); len(errs) > 0 {
				return nil, withFile(errs, path)
			}
		}
	}

	l.logger.Debug().
		Str("path", path).
		Str("format", string(format)).
		Int("items", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Items loaded")

	return records, nil
}

// LoadCatalogue reads both catalogue files. An empty path is skipped.
func (l *Loader) LoadCatalogue(ctx context.Context, containersPath, itemsPath string) (*Catalogue, error) {
	var (
		cat Catalogue
		err error
	)

	if containersPath != "" {
		if cat.Containers, err = l.LoadContainers(ctx, containersPath); err != nil {
			return nil, err
		}
	}
	if itemsPath != "" {
		if cat.Items, err = l.LoadItems(ctx, itemsPath); err != nil {
			return nil, err
		}
	}

	l.logger.Info().
		Int("containers", len(cat.Containers)).
		Int("items", len(cat.Items)).
		Msg("Catalogue loaded")

	return &cat, nil
}

func withFile(errs ValidationErrors, file string) ValidationErrors {
	for i := range errs {
		errs[i].File = file
	}
	return errs
}
