package engine

import (
	"fmt"
	"time"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

// Limits are the capacity rules applied to every container.
type Limits struct {
	// MaxItems is the maximum number of items a container may hold.
	MaxItems int `json:"max_items" yaml:"max_items"`

	// MaxMass is the maximum total item mass (kg) a container may hold.
	MaxMass float64 `json:"max_mass" yaml:"max_mass"`

	// ZoneBonus is added to the score when the container zone matches the
	// item's preferred zone.
	ZoneBonus int `json:"zone_bonus" yaml:"zone_bonus"`
}

// DefaultLimits returns the standard limits: 10 items, 100 kg, zone bonus 100.
func DefaultLimits() Limits {
	return Limits{
		MaxItems:  10,
		MaxMass:   100,
		ZoneBonus: 100,
	}
}

// Validate checks that the limits are usable.
func (l Limits) Validate() error {
	if l.MaxItems <= 0 {
		return fmt.Errorf("max items must be positive, got %d", l.MaxItems)
	}
	if !catalogue.Measurable(l.MaxMass) {
		return fmt.Errorf("max mass must be a positive finite number, got %v", l.MaxMass)
	}
	if l.ZoneBonus < 0 {
		return fmt.Errorf("zone bonus must not be negative, got %d", l.ZoneBonus)
	}
	return nil
}

// PlacementResult is the outcome of a successful placement.
type PlacementResult struct {
	ItemID      string `json:"item_id"`
	ContainerID string `json:"container_id"`
	Score       int    `json:"score"`

	// PreviousContainerID is set when the item was moved from another container.
	PreviousContainerID string `json:"previous_container_id,omitempty"`

	PlacedAt time.Time `json:"placed_at"`
}

// PlacementOutcome is one entry of a batch placement.
type PlacementOutcome struct {
	ItemID string           `json:"item_id"`
	Result *PlacementResult `json:"result,omitempty"`
	Err    error            `json:"-"`
}

// RetrievalResult is the outcome of a successful retrieval.
type RetrievalResult struct {
	ItemID      string `json:"item_id"`
	ContainerID string `json:"container_id"`
}

// Removal records one item unassigned by a bulk operation.
type Removal struct {
	ItemID      string `json:"item_id"`
	ContainerID string `json:"container_id"`
}

// WasteReport is the outcome of a waste scan.
type WasteReport struct {
	Status Status   `json:"status"`
	Items  []string `json:"waste_items"`

	// Diagnostics lists items skipped because of a malformed expiry date.
	Diagnostics []*EngineError `json:"diagnostics,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// RemovalResult is the outcome of a day simulation or undocking.
type RemovalResult struct {
	Status  Status    `json:"status"`
	Message string    `json:"message"`
	Removed []Removal `json:"removed"`

	Diagnostics []*EngineError `json:"diagnostics,omitempty"`
}

// RemovedIDs returns the ids of the removed items in removal order.
func (r *RemovalResult) RemovedIDs() []string {
	ids := make([]string, 0, len(r.Removed))
	for _, rm := range r.Removed {
		ids = append(ids, rm.ItemID)
	}
	return ids
}

// SearchHit is one item matched by a search.
type SearchHit struct {
	ItemID      string `json:"item_id"`
	Name        string `json:"name"`
	ContainerID string `json:"container"`
}

// ContainerArrangement lists the items held by one container.
type ContainerArrangement struct {
	ContainerID string   `json:"container_id"`
	Zone        string   `json:"zone"`
	Items       []string `json:"items"`
	Mass        float64  `json:"mass"`
}

// LogEntry describes one currently assigned item.
type LogEntry struct {
	ItemID      string    `json:"item_id"`
	Name        string    `json:"name"`
	ContainerID string    `json:"container_id"`
	PlacedAt    time.Time `json:"placed_at"`
}

// Eviction records an item unassigned by import reconciliation.
type Eviction struct {
	ItemID      string `json:"item_id"`
	ContainerID string `json:"container_id"`
	Reason      string `json:"reason"`
}

// ImportResult is the outcome of an import batch.
type ImportResult struct {
	Status   Status     `json:"status"`
	Imported int        `json:"imported"`
	Created  int        `json:"created"`
	Replaced int        `json:"replaced"`
	Evicted  []Eviction `json:"evicted"`

	// Warnings carries non-blocking policy findings.
	Warnings []string `json:"warnings,omitempty"`
}

// Snapshot is a deep copy of the catalogue in catalogue order.
type Snapshot struct {
	Containers []catalogue.Container `json:"containers"`
	Items      []catalogue.Item      `json:"items"`
	TakenAt    time.Time             `json:"taken_at"`
}
