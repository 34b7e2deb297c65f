package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

// Messages reported to callers for the ordinary failure outcomes.
const (
	MsgItemNotFound        = "Item not found"
	MsgNoSuitableContainer = "No suitable container found"
	MsgNotInContainer      = "Item not in any container"
	MsgDaySimulated        = "Day simulated"
	MsgUndocked            = "Undocking complete"
)

// Engine decides where items go and keeps the item/container relation
// consistent. Every exported operation runs under a single lock.
type Engine struct {
	mu sync.Mutex

	store    *catalogue.Store
	limits   Limits
	now      func() time.Time
	observer Observer
	policy   PolicyEngine
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for placement timestamps and expiry checks.
// Expiry dates are interpreted in the location of the returned time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLimits overrides the default capacity limits.
func WithLimits(limits Limits) Option {
	return func(e *Engine) {
		e.limits = limits
	}
}

// WithObserver sets the observer notified of engine outcomes.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithPolicy sets the admission policy evaluated on imports.
func WithPolicy(policy PolicyEngine) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// New creates an engine over the given store. A nil store starts empty.
// The engine takes ownership of the store.
func New(store *catalogue.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		store = catalogue.New()
	}

	e := &Engine{
		store:    store,
		limits:   DefaultLimits(),
		now:      time.Now,
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	return e, nil
}

// Limits returns the capacity limits in effect.
func (e *Engine) Limits() Limits {
	return e.limits
}

// Stats summarizes the catalogue.
type Stats struct {
	Containers int `json:"containers"`
	Items      int `json:"items"`
	Assigned   int `json:"assigned"`
}

// Stats returns catalogue counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		Containers: e.store.ContainerCount(),
		Items:      e.store.ItemCount(),
	}
	for _, item := range e.store.Items() {
		if e.store.IsMember(item.ID) {
			stats.Assigned++
		}
	}
	return stats
}

// Verify reports every breach of the catalogue invariants.
func (e *Engine) Verify() []catalogue.Violation {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.Verify(e.limits.MaxItems, e.limits.MaxMass)
}

// Snapshot returns a deep copy of the catalogue.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &Snapshot{
		Containers: make([]catalogue.Container, 0, e.store.ContainerCount()),
		Items:      make([]catalogue.Item, 0, e.store.ItemCount()),
		TakenAt:    e.now(),
	}
	cp := e.store.Clone()
	for _, c := range cp.Containers() {
		snap.Containers = append(snap.Containers, *c)
	}
	for _, i := range cp.Items() {
		snap.Items = append(snap.Items, *i)
	}
	return snap
}

// Restore replaces the catalogue with the snapshot contents.
//
// A snapshot whose item/container relation is broken is rejected and the
// current catalogue kept. Items that only break the engine's current limits,
// as happens when the limits were lowered since the snapshot was taken, are
// evicted the same way ImportContainers evicts them and returned.
func (e *Engine) Restore(snap *Snapshot) ([]Eviction, error) {
	if snap == nil {
		return nil, NewInvalidError("snapshot is nil", nil)
	}

	store := catalogue.New()
	for _, c := range snap.Containers {
		store.UpsertContainer(c)
	}
	for _, i := range snap.Items {
		store.UpsertItem(i)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if violations := store.Verify(0, 0); len(violations) > 0 {
		return nil, NewInvalidError(
			fmt.Sprintf("snapshot is inconsistent: %s", violations[0].Message), nil).
			WithDetail("violations", len(violations))
	}

	e.store = store
	evicted := []Eviction{}
	for _, c := range store.Containers() {
		evicted = append(evicted, e.reconcileContainer(c.ID)...)
	}
	return evicted, nil
}
