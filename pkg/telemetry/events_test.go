package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEventPublisher_SyncDeliversBeforeReturning(t *testing.T) {
	p, err := NewEventPublisher(EventsConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	p.Subscribe(func(e Event) { ids = append(ids, e.ItemID) }, nil)

	for _, id := range []string{"000001", "000002", "000003"} {
		if err := p.PublishItemRetrieved(id, "contA"); err != nil {
			t.Fatalf("Publish(%s) error = %v", id, err)
		}
		if ids[len(ids)-1] != id {
			t.Fatalf("event %s not delivered synchronously", id)
		}
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishItemRetrieved("late", "contA"); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("Publish after Shutdown = %v, want ErrPublisherClosed", err)
	}
}

func TestEventPublisher_AsyncFlushKeepsOrder(t *testing.T) {
	p, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 64, Async: true})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(context.Background())

	var mu sync.Mutex
	var seen []int
	p.Subscribe(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Data["n"].(int))
		mu.Unlock()
	}, nil)

	for i := 0; i < 40; i++ {
		if err := p.Publish(Event{Type: EventTypeItemPlaced, Data: map[string]interface{}{"n": i}}); err != nil {
			t.Fatalf("Publish(%d) error = %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 40 {
		t.Fatalf("delivered %d of 40", len(seen))
	}
	for i, n := range seen {
		if n != i {
			t.Fatalf("position %d holds event %d", i, n)
		}
	}
}

func TestEventPublisher_ShutdownDrainsQueue(t *testing.T) {
	p, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 32, Async: true})
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	n := 0
	p.Subscribe(func(Event) {
		mu.Lock()
		n++
		mu.Unlock()
	}, nil)

	for i := 0; i < 25; i++ {
		_ = p.PublishWasteRemoved("undock", "000001", "contA")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if n != 25 {
		t.Errorf("delivered %d before Shutdown returned, want 25", n)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestEventPublisher_BufferFull(t *testing.T) {
	p, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 1, Async: true})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(context.Background())

	release := make(chan struct{})
	p.Subscribe(func(Event) { <-release }, nil)

	// The first event is picked up and blocks the subscriber, the second
	// fills the buffer, so one of the following must be rejected.
	var full bool
	for i := 0; i < 10 && !full; i++ {
		full = errors.Is(p.PublishItemRetrieved("x", "contA"), ErrBufferFull)
		time.Sleep(time.Millisecond)
	}
	close(release)
	if !full {
		t.Error("expected ErrBufferFull from a blocked publisher")
	}
}

func TestEventPublisher_Filters(t *testing.T) {
	p, _ := NewEventPublisher(EventsConfig{Enabled: true})

	var warnings, contB, items []Event
	p.Subscribe(func(e Event) { warnings = append(warnings, e) }, FilterByLevel(EventLevelWarning))
	p.Subscribe(func(e Event) { contB = append(contB, e) }, FilterByContainerID("contB"))
	p.Subscribe(func(e Event) { items = append(items, e) }, FilterByTypePrefix("item."))

	_ = p.PublishItemPlaced("000001", "contA", 10, "")
	_ = p.PublishItemPlaced("000002", "contB", 10, "contA")
	_ = p.PublishPlacementRejected("000003", "No suitable container found", "NO_SUITABLE_CONTAINER")
	_ = p.PublishPolicyViolation("000004", "mass-limit", "too heavy")

	if len(warnings) != 2 || warnings[0].ItemID != "000003" || warnings[1].Source != "policy" {
		t.Errorf("warning subscriber got %+v", warnings)
	}
	if len(contB) != 1 || contB[0].Data["previous_container_id"] != "contA" {
		t.Errorf("contB subscriber got %+v", contB)
	}
	if len(items) != 2 {
		t.Errorf("item subscriber got %d events", len(items))
	}
}

func TestEventPublisher_Disabled(t *testing.T) {
	p, _ := NewEventPublisher(EventsConfig{})

	called := false
	p.Subscribe(func(Event) { called = true }, nil)

	if err := p.PublishItemRetrieved("000001", "contA"); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if called {
		t.Error("disabled publisher delivered an event")
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestEventPublisher_StampsEvents(t *testing.T) {
	p, _ := NewEventPublisher(EventsConfig{Enabled: true})

	var got Event
	p.Subscribe(func(e Event) { got = e }, FilterByType(EventTypeWasteRemoved))
	_ = p.PublishWasteRemoved("simulate_day", "000001", "contA")

	if got.ID == "" || got.Timestamp.IsZero() || got.Source != "engine" {
		t.Errorf("event = %+v", got)
	}
	if got.Data["operation"] != "simulate_day" {
		t.Errorf("operation = %v", got.Data["operation"])
	}
}
