package catalogue

import (
	"errors"
	"math"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s := New()
	s.UpsertContainer(Container{ID: "C1", Zone: "A", Width: 50, Depth: 50, Height: 50})
	s.UpsertContainer(Container{ID: "C2", Zone: "B", Width: 80, Depth: 80, Height: 80})
	s.UpsertItem(Item{ID: "I1", Name: "Food Packet", Width: 10, Depth: 10, Height: 10, Mass: 5})
	s.UpsertItem(Item{ID: "I2", Name: "Oxygen Cylinder", Width: 20, Depth: 20, Height: 40, Mass: 30})
	return s
}

func TestStoreOrder(t *testing.T) {
	s := newTestStore(t)

	s.UpsertContainer(Container{ID: "C0", Zone: "Z", Width: 1, Depth: 1, Height: 1})

	var ids []string
	for _, c := range s.Containers() {
		ids = append(ids, c.ID)
	}
	want := []string{"C1", "C2", "C0"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d containers, got %d", len(want), len(ids))
	}
	for n := range want {
		if ids[n] != want[n] {
			t.Errorf("position %d: expected %s, got %s", n, want[n], ids[n])
		}
	}
}

func TestUpsertKeepsPosition(t *testing.T) {
	s := newTestStore(t)

	replaced := s.UpsertItem(Item{ID: "I1", Name: "Water Bottle", Width: 5, Depth: 5, Height: 5, Mass: 1})
	if !replaced {
		t.Fatal("expected I1 to be replaced")
	}

	items := s.Items()
	if items[0].ID != "I1" || items[0].Name != "Water Bottle" {
		t.Errorf("expected replaced I1 first, got %s (%s)", items[0].ID, items[0].Name)
	}
	if s.ItemCount() != 2 {
		t.Errorf("expected 2 items, got %d", s.ItemCount())
	}
}

func TestUpsertCopiesInput(t *testing.T) {
	s := New()
	c := Container{ID: "C1", Items: []string{}}
	s.UpsertContainer(c)
	c.Items = append(c.Items, "ghost")

	stored, _ := s.Container("C1")
	if len(stored.Items) != 0 {
		t.Errorf("store shares slice with caller: %v", stored.Items)
	}
}

func TestAssignAndUnassign(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.Assign("I1", "C1", now); err != nil {
		t.Fatalf("failed to assign: %v", err)
	}
	if err := s.Assign("I2", "C1", now); err != nil {
		t.Fatalf("failed to assign: %v", err)
	}

	if got := s.ContainerMass("C1"); got != 35 {
		t.Errorf("expected mass 35, got %v", got)
	}
	item, _ := s.Item("I1")
	if item.ContainerID != "C1" || item.PlacedAt == nil || !item.PlacedAt.Equal(now) {
		t.Errorf("unexpected item state: %+v", item)
	}
	if !s.IsMember("I1") {
		t.Error("expected I1 to be a member of C1")
	}

	if err := s.Assign("I1", "C2", now); err == nil {
		t.Error("expected error assigning an already assigned item")
	}

	from, ok := s.Unassign("I1")
	if !ok || from != "C1" {
		t.Fatalf("expected to unassign from C1, got %q %v", from, ok)
	}
	c1, _ := s.Container("C1")
	if len(c1.Items) != 1 || c1.Items[0] != "I2" {
		t.Errorf("expected C1 to list only I2, got %v", c1.Items)
	}
	if item.Assigned() || item.PlacedAt != nil {
		t.Errorf("expected I1 to be cleared, got %+v", item)
	}

	if _, ok := s.Unassign("I1"); ok {
		t.Error("expected second unassign to report nothing removed")
	}

	if v := s.Verify(10, 100); len(v) != 0 {
		t.Errorf("unexpected violations: %v", v)
	}
}

func TestAssignUnknown(t *testing.T) {
	s := newTestStore(t)

	if err := s.Assign("nope", "C1", time.Now()); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
	if err := s.Assign("I1", "nope", time.Now()); !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("expected ErrContainerNotFound, got %v", err)
	}
}

func TestUnassignDangling(t *testing.T) {
	s := newTestStore(t)
	s.UpsertItem(Item{ID: "I3", Name: "Stray", ContainerID: "C2"})

	if v := s.Verify(0, 0); len(v) != 1 {
		t.Fatalf("expected one violation, got %v", v)
	}

	if _, ok := s.Unassign("I3"); ok {
		t.Error("expected dangling reference to report no removal")
	}
	item, _ := s.Item("I3")
	if item.Assigned() {
		t.Error("expected dangling reference to be cleared")
	}
	if v := s.Verify(0, 0); len(v) != 0 {
		t.Errorf("unexpected violations: %v", v)
	}
}

func TestVerifyLimits(t *testing.T) {
	s := New()
	s.UpsertContainer(Container{ID: "C1", Width: 10, Depth: 10, Height: 10, Items: []string{"a", "b", "a"}})
	s.UpsertItem(Item{ID: "a", Mass: 60, ContainerID: "C1"})
	s.UpsertItem(Item{ID: "b", Mass: 50, ContainerID: "C1"})

	violations := s.Verify(2, 100)
	// duplicate membership, count 3 > 2, mass 170 > 100
	if len(violations) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(violations), violations)
	}
}

func TestVerifyNaNMass(t *testing.T) {
	s := New()
	s.UpsertContainer(Container{ID: "C1", Width: 10, Depth: 10, Height: 10, Items: []string{"a", "b"}})
	s.UpsertItem(Item{ID: "a", Mass: math.NaN(), ContainerID: "C1"})
	s.UpsertItem(Item{ID: "b", Mass: 300, ContainerID: "C1"})

	violations := s.Verify(0, 100)
	if len(violations) != 1 || violations[0].ContainerID != "C1" {
		t.Fatalf("expected one mass violation for C1, got %v", violations)
	}
}

func TestMeasurable(t *testing.T) {
	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if Measurable(v) {
			t.Errorf("Measurable(%v) = true", v)
		}
	}
	if !Measurable(0.5) {
		t.Error("Measurable(0.5) = false")
	}
}

func TestClone(t *testing.T) {
	s := newTestStore(t)
	if err := s.Assign("I1", "C1", time.Now()); err != nil {
		t.Fatalf("failed to assign: %v", err)
	}

	cp := s.Clone()
	if _, ok := cp.Unassign("I1"); !ok {
		t.Fatal("expected clone to unassign I1")
	}

	if !s.IsMember("I1") {
		t.Error("clone mutation leaked into original")
	}
	if cp.ContainerCount() != 2 || cp.ItemCount() != 2 {
		t.Errorf("unexpected clone sizes: %d containers, %d items", cp.ContainerCount(), cp.ItemCount())
	}
}

func TestItemExpiry(t *testing.T) {
	tests := []struct {
		name    string
		expiry  string
		wantOK  bool
		wantErr bool
	}{
		{name: "empty", expiry: "", wantOK: false},
		{name: "sentinel", expiry: NoExpiry, wantOK: false},
		{name: "date", expiry: "2000-01-01", wantOK: true},
		{name: "malformed", expiry: "01/01/2000", wantOK: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &Item{ID: "x", ExpiryDate: tt.expiry}
			expiry, ok, err := item.Expiry(time.UTC)
			if ok != tt.wantOK {
				t.Errorf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("expected err=%v, got %v", tt.wantErr, err)
			}
			if ok && !tt.wantErr && expiry.Year() != 2000 {
				t.Errorf("unexpected expiry %v", expiry)
			}
		})
	}
}
