package engine

import (
	"context"
)

// IdentifyWaste lists the items whose expiry date is strictly before now, in
// catalogue order. Items with a malformed expiry date are skipped and
// reported as diagnostics. The scan does not mutate the catalogue.
func (e *Engine) IdentifyWaste(ctx context.Context) *WasteReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	ids, diags := e.scanWaste(ctx)
	return &WasteReport{
		Status:      StatusSuccess,
		Items:       ids,
		Diagnostics: diags,
		EvaluatedAt: now,
	}
}

// ReturnPlan lists the waste items that should be returned.
func (e *Engine) ReturnPlan(ctx context.Context) *WasteReport {
	return e.IdentifyWaste(ctx)
}

// SimulateDay removes every waste item from its container. Only items that
// were actually unassigned are reported, so repeated runs converge on an
// empty result.
func (e *Engine) SimulateDay(ctx context.Context) *RemovalResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.removeWaste(ctx, OpSimulateDay, MsgDaySimulated)
}

// Undock removes every waste item from its container, like SimulateDay.
func (e *Engine) Undock(ctx context.Context) *RemovalResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.removeWaste(ctx, OpUndock, MsgUndocked)
}

func (e *Engine) removeWaste(ctx context.Context, operation, message string) *RemovalResult {
	ids, diags := e.scanWaste(ctx)

	removed := make([]Removal, 0, len(ids))
	for _, id := range ids {
		containerID, ok := e.store.Unassign(id)
		if !ok {
			continue
		}
		removed = append(removed, Removal{ItemID: id, ContainerID: containerID})
	}

	if len(removed) > 0 {
		e.observer.WasteRemoved(ctx, operation, removed)
	}

	return &RemovalResult{
		Status:      StatusSuccess,
		Message:     message,
		Removed:     removed,
		Diagnostics: diags,
	}
}

func (e *Engine) scanWaste(ctx context.Context) ([]string, []*EngineError) {
	now := e.now()
	loc := now.Location()

	ids := make([]string, 0)
	var diags []*EngineError
	for _, item := range e.store.Items() {
		expiry, ok, err := item.Expiry(loc)
		if !ok {
			continue
		}
		if err != nil {
			diag := NewMalformedExpiryError(item.ExpiryDate, err).
				WithItem(item.ID).
				WithOperation(OpIdentifyWaste)
			diags = append(diags, diag)
			e.observer.MalformedExpiry(ctx, item.ID, diag)
			continue
		}
		if expiry.Before(now) {
			ids = append(ids, item.ID)
		}
	}
	return ids, diags
}
