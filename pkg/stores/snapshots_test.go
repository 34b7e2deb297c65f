package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openfroyo/stowage/pkg/catalogue"
	"github.com/openfroyo/stowage/pkg/engine"
)

func sampleSnapshot() *engine.Snapshot {
	placed := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	return &engine.Snapshot{
		TakenAt: placed,
		Containers: []catalogue.Container{
			{ID: "contB", Zone: "Storage Bay", Width: 100, Depth: 85, Height: 200, Items: []string{"000002", "000001"}},
			{ID: "contA", Zone: "Crew Quarters", Width: 50, Depth: 40, Height: 60, Items: []string{}},
		},
		Items: []catalogue.Item{
			{ID: "000001", Name: "Food Packet", Width: 10, Depth: 10, Height: 20, Mass: 5, Priority: 80,
				ExpiryDate: "2025-05-20", UsageLimit: 30, PreferredZone: "Crew Quarters", ContainerID: "contB", PlacedAt: &placed},
			{ID: "000002", Name: "Oxygen Cylinder", Width: 15, Depth: 15, Height: 50, Mass: 30, Priority: 95,
				ExpiryDate: catalogue.NoExpiry, UsageLimit: 100, PreferredZone: "Airlock", ContainerID: "contB", PlacedAt: &placed},
			{ID: "000003", Name: "First Aid Kit", Width: 20, Depth: 20, Height: 10, Mass: 2, Priority: 100,
				ExpiryDate: "2025-07-10", UsageLimit: 5, PreferredZone: "Medical Bay"},
		},
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if _, _, err := s.LatestSnapshot(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty store: got %v, want ErrNoSnapshot", err)
	}

	want := sampleSnapshot()
	rec, err := s.SaveSnapshot(ctx, want, "load")
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if rec.ID == "" || rec.ContainerCount != 2 || rec.ItemCount != 3 {
		t.Errorf("record = %+v", rec)
	}

	got, latest, err := s.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest.ID != rec.ID || latest.Reason != "load" {
		t.Errorf("latest = %+v, want %s/load", latest, rec.ID)
	}
	if !got.TakenAt.Equal(want.TakenAt) {
		t.Errorf("TakenAt = %v, want %v", got.TakenAt, want.TakenAt)
	}

	t.Run("containers keep order and membership", func(t *testing.T) {
		if len(got.Containers) != 2 || got.Containers[0].ID != "contB" || got.Containers[1].ID != "contA" {
			t.Fatalf("containers = %+v", got.Containers)
		}
		if m := got.Containers[0].Items; len(m) != 2 || m[0] != "000002" || m[1] != "000001" {
			t.Errorf("contB items = %v", m)
		}
		if m := got.Containers[1].Items; m == nil || len(m) != 0 {
			t.Errorf("contA items = %#v, want empty slice", m)
		}
	})

	t.Run("items keep every field", func(t *testing.T) {
		if len(got.Items) != 3 {
			t.Fatalf("got %d items", len(got.Items))
		}
		food := got.Items[0]
		if food.ID != "000001" || food.Priority != 80 || food.ExpiryDate != "2025-05-20" ||
			food.UsageLimit != 30 || food.PreferredZone != "Crew Quarters" || food.ContainerID != "contB" {
			t.Errorf("food = %+v", food)
		}
		if food.PlacedAt == nil || !food.PlacedAt.Equal(*want.Items[0].PlacedAt) {
			t.Errorf("PlacedAt = %v", food.PlacedAt)
		}
		if got.Items[1].ExpiryDate != catalogue.NoExpiry {
			t.Errorf("ExpiryDate = %q", got.Items[1].ExpiryDate)
		}
		if kit := got.Items[2]; kit.ContainerID != "" || kit.PlacedAt != nil {
			t.Errorf("kit should be unassigned: %+v", kit)
		}
	})

	eng, err := engine.New(nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if _, err := eng.Restore(got); err != nil {
		t.Errorf("Restore rejected loaded snapshot: %v", err)
	}
}

func TestGetSnapshotUnknown(t *testing.T) {
	s := openMemory(t)
	if _, err := s.GetSnapshot(context.Background(), "nope"); err == nil {
		t.Error("unknown id returned no error")
	}
}

func TestPruneSnapshots(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	for _, reason := range []string{"load", "place", "simulate_day"} {
		if _, err := s.SaveSnapshot(ctx, sampleSnapshot(), reason); err != nil {
			t.Fatalf("SaveSnapshot(%s): %v", reason, err)
		}
	}

	recs, err := s.ListSnapshots(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(recs) != 3 || recs[0].Reason != "simulate_day" || recs[2].Reason != "load" {
		t.Fatalf("want newest first, got %+v", recs)
	}
	if page, _ := s.ListSnapshots(ctx, 1, 1); len(page) != 1 || page[0].Reason != "place" {
		t.Errorf("page = %+v", page)
	}

	if _, err := s.PruneSnapshots(ctx, 0); err == nil {
		t.Error("keep=0 accepted")
	}

	n, err := s.PruneSnapshots(ctx, 1)
	if err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}

	_, latest, err := s.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest.Reason != "simulate_day" {
		t.Errorf("survivor = %s", latest.Reason)
	}

	for _, table := range []string{"snapshot_containers", "snapshot_items", "snapshot_memberships"} {
		var stale int
		q := "SELECT COUNT(*) FROM " + table + " WHERE snapshot_id != ?"
		if err := s.db.QueryRowContext(ctx, q, latest.ID).Scan(&stale); err != nil {
			t.Fatalf("%s: %v", table, err)
		}
		if stale != 0 {
			t.Errorf("%s kept %d rows of pruned snapshots", table, stale)
		}
	}
}

func TestCheckpointSavesNewestLast(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var (
		mu    sync.Mutex
		taken int
	)
	take := func() *engine.Snapshot {
		mu.Lock()
		taken++
		n := taken
		mu.Unlock()

		snap := sampleSnapshot()
		snap.TakenAt = base.Add(time.Duration(n) * time.Minute)
		return snap
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Checkpoint(ctx, take, "place"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Checkpoint: %v", err)
	}

	snap, _, err := s.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if want := base.Add(workers * time.Minute); !snap.TakenAt.Equal(want) {
		t.Errorf("latest TakenAt = %v, want %v", snap.TakenAt, want)
	}
}
