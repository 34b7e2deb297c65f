package engine

import (
	"context"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

type candidate struct {
	containerID string
	score       int
}

// Place assigns the item to the best eligible container.
//
// Containers are evaluated in catalogue order and the first container with the
// highest score wins. An item that is already assigned competes with its own
// capacity released; when no container is eligible its assignment is left
// untouched.
func (e *Engine) Place(ctx context.Context, itemID string) (*PlacementResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.place(ctx, itemID)
}

// PlaceAll places the items in order. Each placement sees the effects of the
// previous ones. A failed placement does not stop the batch.
func (e *Engine) PlaceAll(ctx context.Context, itemIDs []string) []PlacementOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcomes := make([]PlacementOutcome, 0, len(itemIDs))
	for _, id := range itemIDs {
		result, err := e.place(ctx, id)
		outcomes = append(outcomes, PlacementOutcome{ItemID: id, Result: result, Err: err})
	}
	return outcomes
}

func (e *Engine) place(ctx context.Context, itemID string) (*PlacementResult, error) {
	item, ok := e.store.Item(itemID)
	if !ok {
		err := NewNotFoundError(MsgItemNotFound).WithItem(itemID).WithOperation(OpPlace)
		e.observer.PlacementRejected(ctx, itemID, err)
		return nil, err
	}

	// Only a listed membership frees capacity; a dangling reference holds none.
	current := ""
	if e.store.IsMember(itemID) {
		current = item.ContainerID
	}

	var best *candidate
	for _, c := range e.store.Containers() {
		score, eligible := e.evaluate(c, item, current)
		if !eligible {
			continue
		}
		if best == nil || score > best.score {
			best = &candidate{containerID: c.ID, score: score}
		}
	}

	if best == nil {
		err := NewIneligibleError(MsgNoSuitableContainer).WithItem(itemID).WithOperation(OpPlace)
		e.observer.PlacementRejected(ctx, itemID, err)
		return nil, err
	}

	e.store.Unassign(itemID)
	at := e.now()
	if err := e.store.Assign(itemID, best.containerID, at); err != nil {
		// Unreachable: both ids were resolved above and the item was just released.
		return nil, err
	}

	result := &PlacementResult{
		ItemID:              itemID,
		ContainerID:         best.containerID,
		Score:               best.score,
		PreviousContainerID: current,
		PlacedAt:            at,
	}
	e.observer.ItemPlaced(ctx, *result)
	return result, nil
}

// evaluate reports whether the container can take the item and its score.
// current names the container the item is listed in, whose usage excludes the item.
func (e *Engine) evaluate(c *catalogue.Container, item *catalogue.Item, current string) (int, bool) {
	if !c.Fits(item) {
		return 0, false
	}

	count := len(c.Items)
	mass := e.store.ContainerMass(c.ID)
	if c.ID == current {
		count--
		mass -= item.Mass
	}
	if count >= e.limits.MaxItems {
		return 0, false
	}
	// Written as !(<=) so a NaN total fails closed.
	if !(mass+item.Mass <= e.limits.MaxMass) {
		return 0, false
	}

	return e.score(c, item), true
}

func (e *Engine) score(c *catalogue.Container, item *catalogue.Item) int {
	score := item.Priority
	if c.Zone == item.PreferredZone {
		score += e.limits.ZoneBonus
	}
	return score
}
