package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/stowage/pkg/catalogue"
	"github.com/openfroyo/stowage/pkg/engine"
)

// ErrNoSnapshot is returned by LatestSnapshot on an empty store.
var ErrNoSnapshot = errors.New("no snapshot stored")

const snapshotColumns = `id, reason, container_count, item_count, taken_at, created_at`

// SaveSnapshot stores a full copy of snap. Containers, items and container
// membership order are kept exactly as given.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *engine.Snapshot, reason string) (*SnapshotRecord, error) {
	rec := &SnapshotRecord{
		ID:             uuid.NewString(),
		Reason:         reason,
		ContainerCount: len(snap.Containers),
		ItemCount:      len(snap.Items),
		TakenAt:        snap.TakenAt,
		CreatedAt:      time.Now().UTC(),
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots (`+snapshotColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Reason, rec.ContainerCount, rec.ItemCount, rec.TakenAt, rec.CreatedAt); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if err := insertContainers(ctx, tx, rec.ID, snap.Containers); err != nil {
			return err
		}
		return insertItems(ctx, tx, rec.ID, snap.Items)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Checkpoint calls take and saves its result. Concurrent checkpoints run one
// at a time, so the snapshot saved last is always the one taken last and
// LatestSnapshot never goes back to an older catalogue state.
func (s *SQLiteStore) Checkpoint(ctx context.Context, take func() *engine.Snapshot, reason string) (*SnapshotRecord, error) {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()

	return s.SaveSnapshot(ctx, take(), reason)
}

func insertContainers(ctx context.Context, tx *sql.Tx, snapshotID string, containers []catalogue.Container) error {
	cstmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_containers
		(snapshot_id, position, id, zone, width, depth, height) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer cstmt.Close()

	mstmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_memberships
		(snapshot_id, container_id, position, item_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer mstmt.Close()

	for pos, c := range containers {
		if _, err := cstmt.ExecContext(ctx, snapshotID, pos, c.ID, c.Zone, c.Width, c.Depth, c.Height); err != nil {
			return fmt.Errorf("insert container %s: %w", c.ID, err)
		}
		for i, itemID := range c.Items {
			if _, err := mstmt.ExecContext(ctx, snapshotID, c.ID, i, itemID); err != nil {
				return fmt.Errorf("insert membership %s/%s: %w", c.ID, itemID, err)
			}
		}
	}
	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, snapshotID string, items []catalogue.Item) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_items
		(snapshot_id, position, id, name, width, depth, height, mass, priority,
		 expiry_date, usage_limit, preferred_zone, container_id, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for pos, it := range items {
		var placedAt sql.NullTime
		if it.PlacedAt != nil {
			placedAt = sql.NullTime{Time: *it.PlacedAt, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, snapshotID, pos, it.ID, it.Name, it.Width, it.Depth, it.Height,
			it.Mass, it.Priority, it.ExpiryDate, it.UsageLimit, it.PreferredZone, it.ContainerID, placedAt); err != nil {
			return fmt.Errorf("insert item %s: %w", it.ID, err)
		}
	}
	return nil
}

// LatestSnapshot returns the most recently saved snapshot, or ErrNoSnapshot.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*engine.Snapshot, *SnapshotRecord, error) {
	recs, err := s.ListSnapshots(ctx, 1, 0)
	if err != nil {
		return nil, nil, err
	}
	if len(recs) == 0 {
		return nil, nil, ErrNoSnapshot
	}
	snap, err := s.GetSnapshot(ctx, recs[0].ID)
	if err != nil {
		return nil, nil, err
	}
	return snap, recs[0], nil
}

// GetSnapshot loads the snapshot with the given id.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*engine.Snapshot, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	snap := &engine.Snapshot{}
	err := s.db.QueryRowContext(ctx, `SELECT taken_at FROM snapshots WHERE id = ?`, id).Scan(&snap.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", id, err)
	}

	members, err := s.memberships(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.Containers, err = s.containers(ctx, id, members); err != nil {
		return nil, err
	}
	if snap.Items, err = s.items(ctx, id); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLiteStore) memberships(ctx context.Context, snapshotID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT container_id, item_id FROM snapshot_memberships
		WHERE snapshot_id = ? ORDER BY container_id, position`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}
	pairs, err := collect(rows, func(r *sql.Rows) ([2]string, error) {
		var p [2]string
		err := r.Scan(&p[0], &p[1])
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}

	out := make(map[string][]string)
	for _, p := range pairs {
		out[p[0]] = append(out[p[0]], p[1])
	}
	return out, nil
}

func (s *SQLiteStore) containers(ctx context.Context, snapshotID string, members map[string][]string) ([]catalogue.Container, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, zone, width, depth, height FROM snapshot_containers
		WHERE snapshot_id = ? ORDER BY position`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("load containers: %w", err)
	}
	out, err := collect(rows, func(r *sql.Rows) (catalogue.Container, error) {
		var c catalogue.Container
		err := r.Scan(&c.ID, &c.Zone, &c.Width, &c.Depth, &c.Height)
		c.Items = members[c.ID]
		if c.Items == nil {
			c.Items = []string{}
		}
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("load containers: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) items(ctx context.Context, snapshotID string) ([]catalogue.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, width, depth, height, mass, priority,
		expiry_date, usage_limit, preferred_zone, container_id, placed_at
		FROM snapshot_items WHERE snapshot_id = ? ORDER BY position`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	out, err := collect(rows, func(r *sql.Rows) (catalogue.Item, error) {
		var (
			it       catalogue.Item
			placedAt sql.NullTime
		)
		err := r.Scan(&it.ID, &it.Name, &it.Width, &it.Depth, &it.Height, &it.Mass, &it.Priority,
			&it.ExpiryDate, &it.UsageLimit, &it.PreferredZone, &it.ContainerID, &placedAt)
		if placedAt.Valid {
			t := placedAt.Time
			it.PlacedAt = &t
		}
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return out, nil
}

// ListSnapshots returns snapshot headers, newest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit, offset int) ([]*SnapshotRecord, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM snapshots
		ORDER BY rowid DESC LIMIT ? OFFSET ?`, pageLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return collect(rows, func(r *sql.Rows) (*SnapshotRecord, error) {
		rec := &SnapshotRecord{}
		return rec, r.Scan(&rec.ID, &rec.Reason, &rec.ContainerCount, &rec.ItemCount, &rec.TakenAt, &rec.CreatedAt)
	})
}

// PruneSnapshots deletes all but the newest keep snapshots and reports how
// many were removed. keep must be at least 1.
func (s *SQLiteStore) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}

	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id NOT IN
			(SELECT id FROM snapshots ORDER BY rowid DESC LIMIT ?)`, keep)
		if err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}
