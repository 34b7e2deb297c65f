package catalogue

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrContainerNotFound is returned when a container id is unknown.
	ErrContainerNotFound = errors.New("container not found")

	// ErrItemNotFound is returned when an item id is unknown.
	ErrItemNotFound = errors.New("item not found")
)

// Store holds containers and items in catalogue (insertion) order together with
// their assignment relation.
//
// Store is not safe for concurrent use. It is owned by a single engine which
// serializes every operation.
type Store struct {
	containers     map[string]*Container
	containerOrder []string

	items     map[string]*Item
	itemOrder []string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		containers: make(map[string]*Container),
		items:      make(map[string]*Item),
	}
}

// Container returns the container with the given id.
func (s *Store) Container(id string) (*Container, bool) {
	c, ok := s.containers[id]
	return c, ok
}

// Item returns the item with the given id.
func (s *Store) Item(id string) (*Item, bool) {
	i, ok := s.items[id]
	return i, ok
}

// Containers returns all containers in catalogue order.
func (s *Store) Containers() []*Container {
	out := make([]*Container, 0, len(s.containerOrder))
	for _, id := range s.containerOrder {
		out = append(out, s.containers[id])
	}
	return out
}

// Items returns all items in catalogue order.
func (s *Store) Items() []*Item {
	out := make([]*Item, 0, len(s.itemOrder))
	for _, id := range s.itemOrder {
		out = append(out, s.items[id])
	}
	return out
}

// ContainerCount returns the number of containers.
func (s *Store) ContainerCount() int {
	return len(s.containerOrder)
}

// ItemCount returns the number of items.
func (s *Store) ItemCount() int {
	return len(s.itemOrder)
}

// UpsertContainer stores a copy of c, replacing any container with the same id.
// A replaced container keeps its catalogue position. It reports whether an
// existing entry was replaced.
//
// Upsert does not reconcile the assignment relation; callers that replace
// records must restore consistency themselves.
func (s *Store) UpsertContainer(c Container) bool {
	cp := c.clone()
	_, exists := s.containers[c.ID]
	if !exists {
		s.containerOrder = append(s.containerOrder, c.ID)
	}
	s.containers[c.ID] = cp
	return exists
}

// UpsertItem stores a copy of i, replacing any item with the same id.
// A replaced item keeps its catalogue position. It reports whether an existing
// entry was replaced.
//
// Upsert does not reconcile the assignment relation; callers that replace
// records must restore consistency themselves.
func (s *Store) UpsertItem(i Item) bool {
	cp := i.clone()
	_, exists := s.items[i.ID]
	if !exists {
		s.itemOrder = append(s.itemOrder, i.ID)
	}
	s.items[i.ID] = cp
	return exists
}

// ContainerMass returns the total mass of the items currently listed by the
// container. It is always computed from current contents.
func (s *Store) ContainerMass(containerID string) float64 {
	c, ok := s.containers[containerID]
	if !ok {
		return 0
	}
	var total float64
	for _, id := range c.Items {
		if item, ok := s.items[id]; ok {
			total += item.Mass
		}
	}
	return total
}

// Assign appends the item to the container and sets the item's reference.
// The item must currently be unassigned.
func (s *Store) Assign(itemID, containerID string, at time.Time) error {
	item, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	c, ok := s.containers[containerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}
	if item.Assigned() {
		return fmt.Errorf("item %s is already assigned to %s", itemID, item.ContainerID)
	}

	c.Items = append(c.Items, itemID)
	item.ContainerID = containerID
	placedAt := at
	item.PlacedAt = &placedAt
	return nil
}

// Unassign removes the item from the container it references and clears the
// reference. It returns the container the item was listed in, or "" when the
// reference was absent or dangling. A dangling reference is cleared as well.
func (s *Store) Unassign(itemID string) (string, bool) {
	item, ok := s.items[itemID]
	if !ok || !item.Assigned() {
		return "", false
	}

	containerID := item.ContainerID
	item.ContainerID = ""
	item.PlacedAt = nil

	if !s.removeMember(containerID, itemID) {
		return "", false
	}
	return containerID, true
}

// IsMember reports whether the item references a container that lists it.
func (s *Store) IsMember(itemID string) bool {
	item, ok := s.items[itemID]
	if !ok || !item.Assigned() {
		return false
	}
	c, ok := s.containers[item.ContainerID]
	return ok && c.Contains(itemID)
}

func (s *Store) removeMember(containerID, itemID string) bool {
	c, ok := s.containers[containerID]
	if !ok {
		return false
	}
	n := indexOf(c.Items, itemID)
	if n < 0 {
		return false
	}
	c.Items = append(c.Items[:n], c.Items[n+1:]...)
	return true
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	cp := New()
	for _, c := range s.Containers() {
		cp.containers[c.ID] = c.clone()
		cp.containerOrder = append(cp.containerOrder, c.ID)
	}
	for _, i := range s.Items() {
		cp.items[i.ID] = i.clone()
		cp.itemOrder = append(cp.itemOrder, i.ID)
	}
	return cp
}
