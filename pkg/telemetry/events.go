package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	EventTypeItemPlaced        = "item.placed"
	EventTypePlacementRejected = "placement.rejected"
	EventTypeItemRetrieved     = "item.retrieved"
	EventTypeWasteRemoved      = "waste.removed"
	EventTypeExpiryMalformed   = "expiry.malformed"
	EventTypeCatalogueImported = "catalogue.imported"
	EventTypeItemEvicted       = "item.evicted"
	EventTypePolicyViolation   = "policy.violation"
)

// Event levels, lowest first.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

var (
	// ErrPublisherClosed is returned by Publish after Shutdown.
	ErrPublisherClosed = errors.New("event publisher is shut down")

	// ErrBufferFull is returned when an asynchronous publisher cannot queue
	// an event. The event is dropped.
	ErrBufferFull = errors.New("event buffer full")
)

// Event is one notable thing that happened to the catalogue.
type Event struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	ItemID      string                 `json:"item_id,omitempty"`
	ContainerID string                 `json:"container_id,omitempty"`
	Message     string                 `json:"message"`
	Level       string                 `json:"level"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// EventSubscriber receives delivered events.
type EventSubscriber func(Event)

// EventFilter reports whether a subscriber wants an event.
type EventFilter func(Event) bool

type subscription struct {
	fn     EventSubscriber
	filter EventFilter
}

// EventPublisher fans events out to subscribers. Delivery is serial: a
// subscriber never runs concurrently with itself or another subscriber, and
// sees events in the order they were published.
type EventPublisher struct {
	cfg EventsConfig

	mu     sync.RWMutex
	subs   []subscription
	closed bool

	deliverMu sync.Mutex

	queue   chan Event
	flushes chan chan struct{}
	done    chan struct{}
}

// NewEventPublisher creates a publisher. With cfg.Async a goroutine drains
// the queue until Shutdown.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	p := &EventPublisher{cfg: cfg}
	if !cfg.Enabled || !cfg.Async {
		return p, nil
	}
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got %d", cfg.BufferSize)
	}
	p.queue = make(chan Event, cfg.BufferSize)
	p.flushes = make(chan chan struct{})
	p.done = make(chan struct{})
	go p.run()
	return p, nil
}

// Subscribe registers fn. A nil filter receives every event.
func (p *EventPublisher) Subscribe(fn EventSubscriber, filter EventFilter) {
	p.mu.Lock()
	p.subs = append(p.subs, subscription{fn: fn, filter: filter})
	p.mu.Unlock()
}

// Publish stamps ev with an ID and time when missing and hands it to the
// subscribers, directly or through the queue.
func (p *EventPublisher) Publish(ev Event) error {
	if !p.cfg.Enabled {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPublisherClosed
	}
	if p.queue == nil {
		p.mu.RUnlock()
		p.deliver(ev)
		return nil
	}
	defer p.mu.RUnlock()
	select {
	case p.queue <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

func (p *EventPublisher) run() {
	defer close(p.done)
	for {
		select {
		case ev, ok := <-p.queue:
			if !ok {
				return
			}
			p.deliver(ev)
		case ack := <-p.flushes:
			p.drainQueued()
			close(ack)
		}
	}
}

// drainQueued delivers what is queued right now without waiting for more.
func (p *EventPublisher) drainQueued() {
	for {
		select {
		case ev, ok := <-p.queue:
			if !ok {
				return
			}
			p.deliver(ev)
		default:
			return
		}
	}
}

func (p *EventPublisher) deliver(ev Event) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.RLock()
	subs := append([]subscription(nil), p.subs...)
	p.mu.RUnlock()

	for _, s := range subs {
		if s.filter == nil || s.filter(ev) {
			s.fn(ev)
		}
	}
}

// Flush returns once every event queued before the call has been delivered.
func (p *EventPublisher) Flush(ctx context.Context) error {
	if p.queue == nil {
		return nil
	}
	ack := make(chan struct{})
	select {
	case p.flushes <- ack:
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting events and waits until the queue is delivered.
func (p *EventPublisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()

	if p.queue == nil {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown: %w", ctx.Err())
	}
}

func (p *EventPublisher) emit(typ, level, itemID, containerID, msg string, data map[string]interface{}) error {
	source := "engine"
	if strings.HasPrefix(typ, "policy.") {
		source = "policy"
	}
	return p.Publish(Event{
		Type:        typ,
		Source:      source,
		Level:       level,
		ItemID:      itemID,
		ContainerID: containerID,
		Message:     msg,
		Data:        data,
	})
}

// PublishItemPlaced records a placement. previous is the container the item
// left, if any.
func (p *EventPublisher) PublishItemPlaced(itemID, containerID string, score float64, previous string) error {
	data := map[string]interface{}{"score": score}
	if previous != "" {
		data["previous_container_id"] = previous
	}
	return p.emit(EventTypeItemPlaced, EventLevelInfo, itemID, containerID,
		fmt.Sprintf("Item %s placed in %s (score %g)", itemID, containerID, score), data)
}

// PublishPlacementRejected records a placement that found no container.
func (p *EventPublisher) PublishPlacementRejected(itemID, reason, code string) error {
	return p.emit(EventTypePlacementRejected, EventLevelWarning, itemID, "",
		fmt.Sprintf("Placement of %s rejected: %s", itemID, reason),
		map[string]interface{}{"reason": reason, "code": code})
}

// PublishItemRetrieved records a retrieval.
func (p *EventPublisher) PublishItemRetrieved(itemID, containerID string) error {
	return p.emit(EventTypeItemRetrieved, EventLevelInfo, itemID, containerID,
		fmt.Sprintf("Item %s retrieved from %s", itemID, containerID), nil)
}

// PublishWasteRemoved records one expired item taken out of a container.
func (p *EventPublisher) PublishWasteRemoved(operation, itemID, containerID string) error {
	return p.emit(EventTypeWasteRemoved, EventLevelInfo, itemID, containerID,
		fmt.Sprintf("Expired item %s removed from %s during %s", itemID, containerID, operation),
		map[string]interface{}{"operation": operation})
}

// PublishMalformedExpiry records an expiry date that could not be parsed.
func (p *EventPublisher) PublishMalformedExpiry(itemID, value string) error {
	return p.emit(EventTypeExpiryMalformed, EventLevelWarning, itemID, "",
		fmt.Sprintf("Item %s has malformed expiry date %q", itemID, value),
		map[string]interface{}{"value": value})
}

// PublishCatalogueImported records a completed import.
func (p *EventPublisher) PublishCatalogueImported(kind string, imported, created, replaced, evicted int) error {
	return p.emit(EventTypeCatalogueImported, EventLevelInfo, "", "",
		fmt.Sprintf("Imported %d %s (%d new, %d replaced, %d evicted)", imported, kind, created, replaced, evicted),
		map[string]interface{}{
			"kind":     kind,
			"imported": imported,
			"created":  created,
			"replaced": replaced,
			"evicted":  evicted,
		})
}

// PublishItemEvicted records an item unassigned because an import made its
// placement invalid.
func (p *EventPublisher) PublishItemEvicted(itemID, containerID, reason string) error {
	return p.emit(EventTypeItemEvicted, EventLevelWarning, itemID, containerID,
		fmt.Sprintf("Item %s evicted from %s: %s", itemID, containerID, reason),
		map[string]interface{}{"reason": reason})
}

// PublishPolicyViolation records an admission policy finding against a
// catalogue record.
func (p *EventPublisher) PublishPolicyViolation(recordID, policyName, reason string) error {
	return p.emit(EventTypePolicyViolation, EventLevelError, recordID, "",
		fmt.Sprintf("%s violates %s: %s", recordID, policyName, reason),
		map[string]interface{}{"policy": policyName, "reason": reason})
}

var levelRank = map[string]int{EventLevelInfo: 0, EventLevelWarning: 1, EventLevelError: 2}

// FilterByLevel passes events at min or above.
func FilterByLevel(min string) EventFilter {
	floor := levelRank[min]
	return func(ev Event) bool { return levelRank[ev.Level] >= floor }
}

// FilterByType passes events of the listed types.
func FilterByType(types ...string) EventFilter {
	return func(ev Event) bool {
		for _, t := range types {
			if ev.Type == t {
				return true
			}
		}
		return false
	}
}

// FilterByTypePrefix passes events in a namespace such as "item.".
func FilterByTypePrefix(prefix string) EventFilter {
	return func(ev Event) bool { return strings.HasPrefix(ev.Type, prefix) }
}

// FilterByContainerID passes events about one container.
func FilterByContainerID(containerID string) EventFilter {
	return func(ev Event) bool { return ev.ContainerID == containerID }
}
