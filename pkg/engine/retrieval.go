package engine

import (
	"context"
)

// Retrieve removes the item from its container.
//
// An item whose reference points at a container that does not list it is
// reported as not in any container, and the stale reference is cleared.
func (e *Engine) Retrieve(ctx context.Context, itemID string) (*RetrievalResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	item, ok := e.store.Item(itemID)
	if !ok {
		return nil, NewNotFoundError(MsgItemNotFound).WithItem(itemID).WithOperation(OpRetrieve)
	}

	if !item.Assigned() {
		return nil, NewAlreadyUnassignedError(MsgNotInContainer).WithItem(itemID).WithOperation(OpRetrieve)
	}

	stale := item.ContainerID
	containerID, removed := e.store.Unassign(itemID)
	if !removed {
		return nil, NewAlreadyUnassignedError(MsgNotInContainer).
			WithItem(itemID).
			WithContainer(stale).
			WithOperation(OpRetrieve).
			WithDetail("stale_reference", true)
	}

	result := &RetrievalResult{ItemID: itemID, ContainerID: containerID}
	e.observer.ItemRetrieved(ctx, *result)
	return result, nil
}
