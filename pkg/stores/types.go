package stores

import (
	"context"
	"time"

	"github.com/openfroyo/stowage/pkg/engine"
)

// EventLevel mirrors the telemetry event levels.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// SnapshotRecord is the header row of a stored catalogue snapshot.
type SnapshotRecord struct {
	ID             string    `json:"id"`
	Reason         string    `json:"reason"`
	ContainerCount int       `json:"container_count"`
	ItemCount      int       `json:"item_count"`
	TakenAt        time.Time `json:"taken_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Event is one row of the append-only event log. ID is assigned by the
// database; EventID is the publisher's identifier.
type Event struct {
	ID          int64      `json:"id"`
	EventID     string     `json:"event_id"`
	Type        string     `json:"type"`
	Level       EventLevel `json:"level"`
	ItemID      *string    `json:"item_id,omitempty"`
	ContainerID *string    `json:"container_id,omitempty"`
	Message     string     `json:"message"`
	Details     *string    `json:"details,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// EventQuery selects events, newest first. Nil filters match everything and
// a non-positive Limit means 100.
type EventQuery struct {
	Type   *string
	ItemID *string
	Level  *EventLevel
	Limit  int
	Offset int
}

// AuditEntry records an operator action that changed the catalogue.
// Actor is "cli" or the HTTP client address.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	TargetID  *string   `json:"target_id,omitempty"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditQuery selects audit entries, newest first, with the same conventions
// as EventQuery.
type AuditQuery struct {
	Action *string
	Actor  *string
	Limit  int
	Offset int
}

// Store is the workspace persistence used by the CLI and the HTTP server.
type Store interface {
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
	HealthCheck(ctx context.Context) error

	SaveSnapshot(ctx context.Context, snap *engine.Snapshot, reason string) (*SnapshotRecord, error)
	Checkpoint(ctx context.Context, take func() *engine.Snapshot, reason string) (*SnapshotRecord, error)
	LatestSnapshot(ctx context.Context) (*engine.Snapshot, *SnapshotRecord, error)
	GetSnapshot(ctx context.Context, id string) (*engine.Snapshot, error)
	ListSnapshots(ctx context.Context, limit, offset int) ([]*SnapshotRecord, error)
	PruneSnapshots(ctx context.Context, keep int) (int64, error)

	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, q EventQuery) ([]*Event, error)

	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, q AuditQuery) ([]*AuditEntry, error)
}
