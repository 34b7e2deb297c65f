package engine

import (
	"context"
	"strings"
	"time"
)

// Search returns the items whose id contains query or whose name contains
// query ignoring case, in catalogue order. No match is reported as not found.
func (e *Engine) Search(ctx context.Context, query string) ([]SearchHit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lowered := strings.ToLower(query)
	var hits []SearchHit
	for _, item := range e.store.Items() {
		if !strings.Contains(item.ID, query) && !strings.Contains(strings.ToLower(item.Name), lowered) {
			continue
		}
		hits = append(hits, SearchHit{
			ItemID:      item.ID,
			Name:        item.Name,
			ContainerID: item.ContainerID,
		})
	}

	if len(hits) == 0 {
		return nil, NewNotFoundError(MsgItemNotFound).
			WithOperation(OpSearch).
			WithDetail("query", query)
	}
	return hits, nil
}

// Arrangement returns every container with its items in placement order.
func (e *Engine) Arrangement(ctx context.Context) []ContainerArrangement {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ContainerArrangement, 0, e.store.ContainerCount())
	for _, c := range e.store.Containers() {
		out = append(out, ContainerArrangement{
			ContainerID: c.ID,
			Zone:        c.Zone,
			Items:       append([]string{}, c.Items...),
			Mass:        e.store.ContainerMass(c.ID),
		})
	}
	return out
}

// PlacementLog returns one entry per assigned item, in catalogue order.
func (e *Engine) PlacementLog(ctx context.Context) []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := make([]LogEntry, 0)
	for _, item := range e.store.Items() {
		if !e.store.IsMember(item.ID) {
			continue
		}
		var placedAt time.Time
		if item.PlacedAt != nil {
			placedAt = *item.PlacedAt
		}
		entries = append(entries, LogEntry{
			ItemID:      item.ID,
			Name:        item.Name,
			ContainerID: item.ContainerID,
			PlacedAt:    placedAt,
		})
	}
	return entries
}
