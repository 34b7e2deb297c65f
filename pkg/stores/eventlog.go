package stores

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// where accumulates optional equality filters.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) eq(column string, value *string) {
	if value != nil {
		w.clauses = append(w.clauses, column+" = ?")
		w.args = append(w.args, *value)
	}
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// AppendEvent adds event to the log, filling EventID and Timestamp when
// they are unset. The assigned row id is written back to event.ID.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	if s.db == nil {
		return errNotOpen
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO events
		(event_id, type, level, item_id, container_id, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.Type, string(event.Level), event.ItemID, event.ContainerID,
		event.Message, event.Details, event.Timestamp)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	event.ID, err = res.LastInsertId()
	return err
}

// GetEvents returns events matching q, newest first.
func (s *SQLiteStore) GetEvents(ctx context.Context, q EventQuery) ([]*Event, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	var w where
	w.eq("type", q.Type)
	w.eq("item_id", q.ItemID)
	if q.Level != nil {
		level := string(*q.Level)
		w.eq("level", &level)
	}

	query := `SELECT id, event_id, type, level, item_id, container_id, message, details, timestamp
		FROM events` + w.String() + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(w.args, pageLimit(q.Limit), q.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return collect(rows, func(r *sql.Rows) (*Event, error) {
		var (
			ev                           Event
			level                        string
			itemID, containerID, details sql.NullString
		)
		err := r.Scan(&ev.ID, &ev.EventID, &ev.Type, &level, &itemID, &containerID, &ev.Message, &details, &ev.Timestamp)
		ev.Level = EventLevel(level)
		ev.ItemID = nullable(itemID)
		ev.ContainerID = nullable(containerID)
		ev.Details = nullable(details)
		return &ev, err
	})
}

// CreateAuditEntry records entry, stamping it with the current time when
// Timestamp is unset.
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	if s.db == nil {
		return errNotOpen
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO audit (action, actor, target_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?)`, entry.Action, entry.Actor, entry.TargetID, entry.Details, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	return err
}

// ListAuditEntries returns audit entries matching q, newest first.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, q AuditQuery) ([]*AuditEntry, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	var w where
	w.eq("action", q.Action)
	w.eq("actor", q.Actor)

	query := `SELECT id, action, actor, target_id, details, timestamp FROM audit` +
		w.String() + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(w.args, pageLimit(q.Limit), q.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return collect(rows, func(r *sql.Rows) (*AuditEntry, error) {
		var (
			e                 AuditEntry
			targetID, details sql.NullString
		)
		err := r.Scan(&e.ID, &e.Action, &e.Actor, &targetID, &details, &e.Timestamp)
		e.TargetID = nullable(targetID)
		e.Details = nullable(details)
		return &e, err
	})
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
