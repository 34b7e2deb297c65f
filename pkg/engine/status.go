package engine

import (
	"fmt"
)

// Status is the outcome label reported alongside operation results.
type Status string

const (
	// StatusSuccess indicates the operation completed.
	StatusSuccess Status = "success"

	// StatusInfo indicates an informational response without a state change.
	StatusInfo Status = "info"

	// StatusError indicates the operation failed.
	StatusError Status = "error"
)

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusSuccess, StatusInfo, StatusError:
		return nil
	default:
		return fmt.Errorf("invalid status: %s", s)
	}
}

// ImportKind identifies the record kind of an import batch.
type ImportKind string

const (
	// ImportItems imports item records.
	ImportItems ImportKind = "items"

	// ImportContainers imports container records.
	ImportContainers ImportKind = "containers"
)

// Validate checks if the import kind is valid.
func (k ImportKind) Validate() error {
	switch k {
	case ImportItems, ImportContainers:
		return nil
	default:
		return fmt.Errorf("invalid import kind: %s", k)
	}
}

// Operation names reported to observers and attached to errors.
const (
	OpPlace           = "place"
	OpRetrieve        = "retrieve"
	OpIdentifyWaste   = "identify_waste"
	OpSimulateDay     = "simulate_day"
	OpUndock          = "undock"
	OpSearch          = "search"
	OpImportItems     = "import_items"
	OpImportContainer = "import_containers"
)
