package engine

import (
	"context"
	"time"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

// Observer receives notifications about engine outcomes.
//
// Callbacks run while the engine lock is held and must not call back into
// the engine.
type Observer interface {
	// ItemPlaced is called after an item was assigned to a container.
	ItemPlaced(ctx context.Context, result PlacementResult)

	// PlacementRejected is called when a placement found no eligible container
	// or referenced an unknown item.
	PlacementRejected(ctx context.Context, itemID string, err error)

	// ItemRetrieved is called after an item was removed from its container.
	ItemRetrieved(ctx context.Context, result RetrievalResult)

	// WasteRemoved is called after a bulk removal with the items that were
	// actually unassigned. It is not called when nothing was removed.
	WasteRemoved(ctx context.Context, operation string, removed []Removal)

	// MalformedExpiry is called for every item skipped during a waste scan.
	MalformedExpiry(ctx context.Context, itemID string, err *EngineError)

	// CatalogueImported is called after an import batch was applied.
	CatalogueImported(ctx context.Context, kind ImportKind, result ImportResult)
}

// PolicyEngine decides whether an import batch may be applied.
type PolicyEngine interface {
	// EvaluateImport evaluates admission rules against an import batch.
	EvaluateImport(ctx context.Context, req *ImportRequest) (*PolicyResult, error)
}

// ImportRequest is the input handed to the admission policy.
type ImportRequest struct {
	// Kind is the record kind being imported.
	Kind ImportKind `json:"kind"`

	// Items holds the records of an item import.
	Items []catalogue.Item `json:"items,omitempty"`

	// Containers holds the records of a container import.
	Containers []catalogue.Container `json:"containers,omitempty"`

	// Limits are the capacity limits the engine enforces.
	Limits Limits `json:"limits"`

	// Timestamp is the engine clock at evaluation time.
	Timestamp time.Time `json:"timestamp"`
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	// Allowed indicates if the import may be applied.
	Allowed bool `json:"allowed"`

	// Violations lists policy violations.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists policy warnings.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the policy name that was violated.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity (error, warning).
	Severity string `json:"severity"`

	// RecordID is the item or container id that violated the policy, if applicable.
	RecordID string `json:"record_id,omitempty"`
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) ItemPlaced(context.Context, PlacementResult)                 {}
func (NopObserver) PlacementRejected(context.Context, string, error)            {}
func (NopObserver) ItemRetrieved(context.Context, RetrievalResult)              {}
func (NopObserver) WasteRemoved(context.Context, string, []Removal)             {}
func (NopObserver) MalformedExpiry(context.Context, string, *EngineError)       {}
func (NopObserver) CatalogueImported(context.Context, ImportKind, ImportResult) {}
