package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openfroyo/stowage/pkg/config"
	"github.com/openfroyo/stowage/pkg/stores"
)

const (
	testContainers = `container_id,zone,width_cm,depth_cm,height_cm
contA,Crew Quarters,100,85,200
contB,Airlock,50,85,200
`
	testItems = `item_id,name,width_cm,depth_cm,height_cm,mass_kg,priority,expiry_date,usage_limit,preferred_zone
000001,Food Packet,10,10,20,5,80,2025-05-20,30,Crew Quarters
000002,Oxygen Cylinder,15,15,50,30,95,N/A,100,Airlock
`
)

func run(t *testing.T, args ...string) error {
	t.Helper()

	configPath, verbose, jsonOutput = "", false, false
	cmd := newRootCommand("test", "none", "never")
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func setupWorkspace(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range map[string]string{
		"containers.csv":  testContainers,
		"input_items.csv": testItems,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(dir, config.FileName)
	if err := run(t, "init", "--config", path); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return path
}

func TestInit_RefusesOverwrite(t *testing.T) {
	path := setupWorkspace(t)

	if err := run(t, "init", "--config", path); err == nil {
		t.Fatal("expected init to refuse an existing config")
	}
	if err := run(t, "init", "--config", path, "--force"); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}
}

func TestLoadPlaceRetrieve(t *testing.T) {
	path := setupWorkspace(t)

	if err := run(t, "load", "--config", path); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := run(t, "place", "--config", path, "000001", "000002"); err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if err := run(t, "check", "--config", path); err != nil {
		t.Fatalf("check failed: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	store, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	snap, rec, err := store.LatestSnapshot(context.Background())
	_ = store.Close()
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	if rec.Reason != "place" {
		t.Errorf("expected last snapshot reason place, got %s", rec.Reason)
	}
	want := map[string]string{"000001": "contA", "000002": "contB"}
	for _, item := range snap.Items {
		if item.ContainerID != want[item.ID] {
			t.Errorf("item %s in %q, want %q", item.ID, item.ContainerID, want[item.ID])
		}
	}

	if err := run(t, "retrieve", "--config", path, "000001"); err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if err := run(t, "retrieve", "--config", path, "000001"); err == nil {
		t.Fatal("expected second retrieve to fail")
	}
	if err := run(t, "search", "--config", path, "nothing-matches"); err == nil {
		t.Fatal("expected search miss to fail")
	}
}

func TestSimulateDayAsOf(t *testing.T) {
	path := setupWorkspace(t)

	if err := run(t, "load", "--config", path, "--place"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := run(t, "simulate-day", "--config", path, "--as-of", "2025-06-01"); err != nil {
		t.Fatalf("simulate-day failed: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	store, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	snap, rec, err := store.LatestSnapshot(context.Background())
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	if rec.Reason != "simulate_day" {
		t.Errorf("expected reason simulate_day, got %s", rec.Reason)
	}
	for _, item := range snap.Items {
		if item.ID == "000001" && item.ContainerID != "" {
			t.Errorf("expired item still stored in %s", item.ContainerID)
		}
		if item.ID == "000002" && item.ContainerID == "" {
			t.Error("item without expiry was removed")
		}
	}

	action := "simulate_day"
	entries, err := store.ListAuditEntries(context.Background(), stores.AuditQuery{Action: &action, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Actor != cliActor {
		t.Errorf("unexpected audit entries: %+v", entries)
	}

	events, err := store.GetEvents(context.Background(), stores.EventQuery{Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Error("expected engine events in the store")
	}
}

func TestValidate(t *testing.T) {
	path := setupWorkspace(t)
	dir := filepath.Dir(path)

	if err := run(t, "validate", "--config", path); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	bad := filepath.Join(dir, "bad.csv")
	if err := os.WriteFile(bad, []byte("container_id,zone\ncontX,Lab\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "validate", bad); err == nil {
		t.Fatal("expected validate to reject missing columns")
	}
}

func TestClockOption(t *testing.T) {
	opts, err := clockOption("")
	if err != nil || opts != nil {
		t.Fatalf("empty as-of: opts=%v err=%v", opts, err)
	}
	if _, err := clockOption("06/01/2025"); err == nil {
		t.Fatal("expected invalid date to fail")
	}
	opts, err = clockOption("2025-06-01")
	if err != nil || len(opts) != 1 {
		t.Fatalf("valid as-of: opts=%v err=%v", opts, err)
	}
}

func TestCheckAfterLimitsLowered(t *testing.T) {
	path := setupWorkspace(t)

	if err := run(t, "load", "--config", path, "--place"); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	// The 30 kg oxygen cylinder no longer fits under a 20 kg limit.
	cfg.Limits.MaxMass = 20
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	if err := run(t, "check", "--config", path); err != nil {
		t.Fatalf("check failed after lowering limits: %v", err)
	}
	if err := run(t, "retrieve", "--config", path, "000002"); err == nil {
		t.Fatal("expected evicted item to be unassigned")
	}
	if err := run(t, "retrieve", "--config", path, "000001"); err != nil {
		t.Fatalf("retrieve of item within limits failed: %v", err)
	}
}
