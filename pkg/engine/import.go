package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

// Eviction reasons.
const (
	EvictDimensions = "dimensions"
	EvictMass       = "mass"
	EvictCapacity   = "capacity"
)

// ImportItems creates or replaces items by id.
//
// Membership fields of the records are ignored: a replaced item keeps its
// assignment. Replaced items that no longer fit their container, or push it
// over the mass limit, are evicted. The batch is applied completely or not
// at all.
func (e *Engine) ImportItems(ctx context.Context, records []catalogue.Item) (*ImportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateItems(records); err != nil {
		return nil, err.WithOperation(OpImportItems)
	}
	warnings, err := e.admit(ctx, &ImportRequest{Kind: ImportItems, Items: records})
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Status: StatusSuccess, Imported: len(records), Evicted: []Eviction{}, Warnings: warnings}
	for _, rec := range records {
		rec.ContainerID = ""
		rec.PlacedAt = nil
		if existing, ok := e.store.Item(rec.ID); ok {
			rec.ContainerID = existing.ContainerID
			rec.PlacedAt = existing.PlacedAt
		}
		if e.store.UpsertItem(rec) {
			result.Replaced++
		} else {
			result.Created++
		}
	}

	for _, rec := range records {
		if eviction, ok := e.reconcileItem(rec.ID); ok {
			result.Evicted = append(result.Evicted, eviction)
		}
	}

	e.observer.CatalogueImported(ctx, ImportItems, *result)
	return result, nil
}

// ImportContainers creates or replaces containers by id.
//
// Membership fields of the records are ignored: a replaced container keeps
// its items. Items that no longer fit the new dimensions are evicted, then the
// most recently placed items are evicted until the count and mass limits hold.
// The batch is applied completely or not at all.
func (e *Engine) ImportContainers(ctx context.Context, records []catalogue.Container) (*ImportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateContainers(records); err != nil {
		return nil, err.WithOperation(OpImportContainer)
	}
	warnings, err := e.admit(ctx, &ImportRequest{Kind: ImportContainers, Containers: records})
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Status: StatusSuccess, Imported: len(records), Evicted: []Eviction{}, Warnings: warnings}
	for _, rec := range records {
		rec.Items = nil
		if existing, ok := e.store.Container(rec.ID); ok {
			rec.Items = existing.Items
		}
		if e.store.UpsertContainer(rec) {
			result.Replaced++
		} else {
			result.Created++
		}
	}

	for _, rec := range records {
		result.Evicted = append(result.Evicted, e.reconcileContainer(rec.ID)...)
	}

	e.observer.CatalogueImported(ctx, ImportContainers, *result)
	return result, nil
}

func (e *Engine) admit(ctx context.Context, req *ImportRequest) ([]string, error) {
	if e.policy == nil {
		return nil, nil
	}

	op := OpImportItems
	if req.Kind == ImportContainers {
		op = OpImportContainer
	}
	req.Limits = e.limits
	req.Timestamp = e.now()

	res, err := e.policy.EvaluateImport(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate admission policy: %w", err)
	}
	if res.Allowed {
		return res.Warnings, nil
	}

	messages := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		messages = append(messages, v.Message)
	}
	denied := NewPolicyDeniedError("import denied by policy: "+strings.Join(messages, "; ")).
		WithOperation(op).
		WithDetail("violations", res.Violations)
	if len(res.Violations) > 0 {
		if req.Kind == ImportItems {
			denied.WithItem(res.Violations[0].RecordID)
		} else {
			denied.WithContainer(res.Violations[0].RecordID)
		}
	}
	return nil, denied
}

// reconcileItem evicts a replaced item that no longer fits its container.
// A stale reference is cleared without being reported.
func (e *Engine) reconcileItem(itemID string) (Eviction, bool) {
	item, _ := e.store.Item(itemID)
	if !item.Assigned() {
		return Eviction{}, false
	}
	if !e.store.IsMember(itemID) {
		e.store.Unassign(itemID)
		return Eviction{}, false
	}

	c, _ := e.store.Container(item.ContainerID)
	reason := ""
	switch {
	case !c.Fits(item):
		reason = EvictDimensions
	case e.store.ContainerMass(c.ID) > e.limits.MaxMass:
		reason = EvictMass
	default:
		return Eviction{}, false
	}

	e.store.Unassign(itemID)
	return Eviction{ItemID: itemID, ContainerID: c.ID, Reason: reason}, true
}

// reconcileContainer evicts the items a replaced container can no longer hold.
func (e *Engine) reconcileContainer(containerID string) []Eviction {
	c, _ := e.store.Container(containerID)
	var evicted []Eviction

	for _, id := range append([]string(nil), c.Items...) {
		item, ok := e.store.Item(id)
		if !ok || c.Fits(item) {
			continue
		}
		e.store.Unassign(id)
		evicted = append(evicted, Eviction{ItemID: id, ContainerID: containerID, Reason: EvictDimensions})
	}

	for len(c.Items) > 0 &&
		(len(c.Items) > e.limits.MaxItems || e.store.ContainerMass(containerID) > e.limits.MaxMass) {
		last := c.Items[len(c.Items)-1]
		e.store.Unassign(last)
		evicted = append(evicted, Eviction{ItemID: last, ContainerID: containerID, Reason: EvictCapacity})
	}

	return evicted
}

func validateItems(records []catalogue.Item) *EngineError {
	seen := make(map[string]bool, len(records))
	for n, rec := range records {
		fail := func(format string, args ...interface{}) *EngineError {
			return NewInvalidError(fmt.Sprintf("item record %d: %s", n, fmt.Sprintf(format, args...)), nil).
				WithItem(rec.ID)
		}

		if rec.ID == "" {
			return fail("item_id is required")
		}
		if seen[rec.ID] {
			return fail("duplicate item_id %s", rec.ID)
		}
		seen[rec.ID] = true

		if !catalogue.Measurable(rec.Width) || !catalogue.Measurable(rec.Depth) || !catalogue.Measurable(rec.Height) {
			return fail("dimensions must be positive finite numbers")
		}
		if !catalogue.Measurable(rec.Mass) {
			return fail("mass must be a positive finite number")
		}
		if _, _, err := rec.Expiry(nil); err != nil {
			return fail("expiry_date %q is not YYYY-MM-DD", rec.ExpiryDate)
		}
	}
	return nil
}

func validateContainers(records []catalogue.Container) *EngineError {
	seen := make(map[string]bool, len(records))
	for n, rec := range records {
		fail := func(format string, args ...interface{}) *EngineError {
			return NewInvalidError(fmt.Sprintf("container record %d: %s", n, fmt.Sprintf(format, args...)), nil).
				WithContainer(rec.ID)
		}

		if rec.ID == "" {
			return fail("container_id is required")
		}
		if seen[rec.ID] {
			return fail("duplicate container_id %s", rec.ID)
		}
		seen[rec.ID] = true

		if !rec.Measurable() {
			return fail("dimensions must be positive finite numbers")
		}
	}
	return nil
}
