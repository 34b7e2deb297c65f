package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openfroyo/stowage/pkg/catalogue"
	"github.com/openfroyo/stowage/pkg/engine"
	"github.com/openfroyo/stowage/pkg/ingest"
	"github.com/openfroyo/stowage/pkg/stores"
)

var testNow = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	store := catalogue.New()
	store.UpsertContainer(catalogue.Container{ID: "contA", Zone: "Crew Quarters", Width: 100, Depth: 85, Height: 200})
	store.UpsertContainer(catalogue.Container{ID: "contB", Zone: "Storage Bay", Width: 50, Depth: 50, Height: 50})
	store.UpsertItem(catalogue.Item{
		ID: "000001", Name: "Food Packet", Width: 10, Depth: 10, Height: 20, Mass: 5,
		Priority: 80, ExpiryDate: "2025-05-20", UsageLimit: 30, PreferredZone: "Crew Quarters",
	})
	store.UpsertItem(catalogue.Item{
		ID: "000002", Name: "Expired Ration", Width: 10, Depth: 10, Height: 10, Mass: 1,
		Priority: 10, ExpiryDate: "2025-03-01", UsageLimit: 1, PreferredZone: "Storage Bay",
	})
	store.UpsertItem(catalogue.Item{
		ID: "000003", Name: "Solar Array", Width: 500, Depth: 500, Height: 500, Mass: 50,
		Priority: 50, ExpiryDate: catalogue.NoExpiry, UsageLimit: 10, PreferredZone: "Storage Bay",
	})

	eng, err := engine.New(store, engine.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return eng
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *engine.Engine) {
	t.Helper()

	eng := newTestEngine(t)
	s, err := New(eng, DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return s, eng
}

func do(t *testing.T, s *Server, method, target, body string) (int, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid JSON %q: %v", method, target, rec.Body.String(), err)
	}
	return rec.Code, out
}

func TestPlacementHint(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := do(t, s, http.MethodGet, "/api/placement", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "info" || body["message"] != PlacementHint {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestPlace(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantStatus string
		wantField  string
		wantValue  string
	}{
		{"zone match", `{"item_id": "000001"}`, http.StatusOK, "success", "container_id", "contA"},
		{"unknown item", `{"item_id": "999999"}`, http.StatusNotFound, "error", "message", engine.MsgItemNotFound},
		{"too large", `{"item_id": "000003"}`, http.StatusUnprocessableEntity, "error", "message", engine.MsgNoSuitableContainer},
		{"missing id", `{}`, http.StatusBadRequest, "error", "message", "item_id is required"},
		{"bad json", `{`, http.StatusBadRequest, "error", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)

			code, body := do(t, s, http.MethodPost, "/api/placement", tt.body)
			if code != tt.wantCode {
				t.Fatalf("expected %d, got %d (%v)", tt.wantCode, code, body)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("expected status %s, got %v", tt.wantStatus, body["status"])
			}
			if tt.wantField != "" && body[tt.wantField] != tt.wantValue {
				t.Errorf("expected %s=%q, got %v", tt.wantField, tt.wantValue, body[tt.wantField])
			}
		})
	}
}

func TestRetrieve(t *testing.T) {
	s, _ := newTestServer(t)

	if code, body := do(t, s, http.MethodPost, "/api/retrieve", `{"item_id": "000001"}`); code != http.StatusConflict {
		t.Fatalf("retrieving an unplaced item: expected 409, got %d (%v)", code, body)
	} else if body["message"] != engine.MsgNotInContainer {
		t.Errorf("unexpected message: %v", body["message"])
	}

	do(t, s, http.MethodPost, "/api/placement", `{"item_id": "000001"}`)

	code, body := do(t, s, http.MethodPost, "/api/retrieve", `{"item_id": "000001"}`)
	if code != http.StatusOK || body["status"] != "success" || body["item_id"] != "000001" {
		t.Fatalf("unexpected retrieve response %d: %v", code, body)
	}
}

func TestSearch(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/placement", `{"item_id": "000001"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/search?query=food", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var hits []engine.SearchHit
	if err := json.Unmarshal(rec.Body.Bytes(), &hits); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(hits) != 1 || hits[0].ItemID != "000001" || hits[0].ContainerID != "contA" {
		t.Errorf("unexpected hits: %+v", hits)
	}

	code, body := do(t, s, http.MethodGet, "/api/search?query=nothing", "")
	if code != http.StatusNotFound || body["message"] != engine.MsgItemNotFound {
		t.Errorf("unexpected miss response %d: %v", code, body)
	}
}

func TestWasteLifecycle(t *testing.T) {
	s, eng := newTestServer(t)
	do(t, s, http.MethodPost, "/api/placement", `{"item_id": "000001"}`)
	do(t, s, http.MethodPost, "/api/placement", `{"item_id": "000002"}`)

	_, body := do(t, s, http.MethodGet, "/api/waste/identify", "")
	waste, _ := body["waste_items"].([]interface{})
	if len(waste) != 1 || waste[0] != "000002" {
		t.Fatalf("unexpected waste: %v", body)
	}

	_, body = do(t, s, http.MethodGet, "/api/waste/return-plan", "")
	if plan, _ := body["return_plan"].([]interface{}); len(plan) != 1 || body["status"] != "success" {
		t.Fatalf("unexpected return plan: %v", body)
	}

	code, body := do(t, s, http.MethodPost, "/api/waste/complete-undocking", "")
	undocked, _ := body["undocked"].([]interface{})
	if code != http.StatusOK || len(undocked) != 1 || undocked[0] != "000002" {
		t.Fatalf("unexpected undock response %d: %v", code, body)
	}

	_, body = do(t, s, http.MethodPost, "/api/simulate/day", "")
	if body["message"] != engine.MsgDaySimulated {
		t.Errorf("unexpected simulate message: %v", body["message"])
	}
	if removed, _ := body["waste_removed"].([]interface{}); len(removed) != 0 {
		t.Errorf("already undocked waste removed again: %v", removed)
	}

	if stats := eng.Stats(); stats.Assigned != 1 {
		t.Errorf("expected 1 assigned item, got %d", stats.Assigned)
	}
}

func TestExportAndLogs(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/placement", `{"item_id": "000001"}`)

	_, body := do(t, s, http.MethodGet, "/api/export/arrangement", "")
	arrangement, _ := body["arrangement"].(map[string]interface{})
	contA, _ := arrangement["contA"].([]interface{})
	if len(contA) != 1 || contA[0] != "000001" {
		t.Fatalf("unexpected arrangement: %v", arrangement)
	}
	if contB, _ := arrangement["contB"].([]interface{}); len(contB) != 0 {
		t.Errorf("expected contB empty, got %v", contB)
	}

	_, body = do(t, s, http.MethodGet, "/api/logs", "")
	logs, _ := body["logs"].([]interface{})
	want := "Item 000001 placed in contA at 2025-03-15 09:00:00"
	if len(logs) != 1 || logs[0] != want {
		t.Errorf("expected logs [%q], got %v", want, logs)
	}
}

func TestImport(t *testing.T) {
	s, eng := newTestServer(t, WithSchemas(ingest.NewSchemaRegistry()))

	code, body := do(t, s, http.MethodPost, "/api/import/containers",
		`[{"container_id": "contC", "zone": "Airlock", "width": 30, "depth": 30, "height": 30}]`)
	if code != http.StatusOK || body["status"] != "success" || body["imported"] != float64(1) {
		t.Fatalf("unexpected container import %d: %v", code, body)
	}

	code, body = do(t, s, http.MethodPost, "/api/import/items", `{"items": [
		{"item_id": "000004", "name": "Wrench", "width": 5, "depth": 5, "height": 5, "mass": 1,
		 "priority": 20, "expiry_date": "N/A", "usage_limit": 100, "preferred_zone": "Airlock"}
	]}`)
	if code != http.StatusOK || body["imported"] != float64(1) {
		t.Fatalf("unexpected item import %d: %v", code, body)
	}
	if stats := eng.Stats(); stats.Containers != 3 || stats.Items != 4 {
		t.Errorf("unexpected stats after import: %+v", stats)
	}

	code, body = do(t, s, http.MethodPost, "/api/import/items",
		`[{"item_id": "000005", "name": "Broken", "width": -1, "depth": 5, "height": 5, "mass": 1, "priority": 1, "usage_limit": 1, "preferred_zone": ""}]`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for schema failure, got %d (%v)", code, body)
	}
	if eng.Stats().Items != 4 {
		t.Error("rejected import changed the catalogue")
	}

	code, _ = do(t, s, http.MethodPost, "/api/import/items", `not json`)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", code)
	}
}

func TestPersistence(t *testing.T) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	s, _ := newTestServer(t, WithStore(store))
	do(t, s, http.MethodPost, "/api/placement", `{"item_id": "000001"}`)

	snap, rec, err := store.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	if rec.Reason != engine.OpPlace {
		t.Errorf("expected reason %q, got %q", engine.OpPlace, rec.Reason)
	}
	var placed bool
	for _, item := range snap.Items {
		if item.ID == "000001" && item.ContainerID == "contA" {
			placed = true
		}
	}
	if !placed {
		t.Error("snapshot does not record the placement")
	}

	action := engine.OpPlace
	entries, err := store.ListAuditEntries(ctx, stores.AuditQuery{Action: &action, Limit: 10})
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	if len(entries) != 1 || entries[0].TargetID == nil || *entries[0].TargetID != "000001" {
		t.Errorf("unexpected audit entries: %+v", entries)
	}

	code, body := do(t, s, http.MethodGet, "/healthz", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health response %d: %v", code, body)
	}
}

func newMemoryStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestConcurrentMutationsPersistLatestState(t *testing.T) {
	const n = 10

	cat := catalogue.New()
	cat.UpsertContainer(catalogue.Container{ID: "bay", Zone: "Storage Bay", Width: 100, Depth: 100, Height: 100})
	for i := 0; i < n; i++ {
		cat.UpsertItem(catalogue.Item{
			ID: fmt.Sprintf("%06d", i), Name: "Ration", Width: 10, Depth: 10, Height: 10, Mass: 1,
			PreferredZone: "Storage Bay",
		})
	}
	eng, err := engine.New(cat, engine.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	store := newMemoryStore(t)
	s, err := New(eng, DefaultConfig(), WithStore(store))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"item_id": "%06d"}`, i)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/placement", strings.NewReader(body)))
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}

	snap, _, err := store.LatestSnapshot(context.Background())
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	for _, item := range snap.Items {
		if item.ContainerID != "bay" {
			t.Errorf("latest snapshot lost placement of %s", item.ID)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/placement", `{"item_id": "000001"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stowage_") {
		t.Error("expected stowage metrics in output")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{engine.NewNotFoundError("x"), http.StatusNotFound},
		{engine.NewAlreadyUnassignedError("x"), http.StatusConflict},
		{engine.NewIneligibleError("x"), http.StatusUnprocessableEntity},
		{engine.NewPolicyDeniedError("x"), http.StatusUnprocessableEntity},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
