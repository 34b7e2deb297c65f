package catalogue

import (
	"fmt"
	"math"
)

// Violation describes one breach of the catalogue invariants.
type Violation struct {
	ItemID      string `json:"item_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
	Message     string `json:"message"`
}

func (v Violation) String() string {
	return v.Message
}

// Verify checks the two-way item/container relation, duplicate membership,
// count and mass limits. A zero limit disables that check; a NaN container
// mass is always a violation.
func (s *Store) Verify(maxItems int, maxMass float64) []Violation {
	var violations []Violation

	for _, c := range s.Containers() {
		seen := make(map[string]bool, len(c.Items))
		for _, id := range c.Items {
			if seen[id] {
				violations = append(violations, Violation{
					ItemID:      id,
					ContainerID: c.ID,
					Message:     fmt.Sprintf("container %s lists item %s more than once", c.ID, id),
				})
				continue
			}
			seen[id] = true

			item, ok := s.items[id]
			if !ok {
				violations = append(violations, Violation{
					ItemID:      id,
					ContainerID: c.ID,
					Message:     fmt.Sprintf("container %s lists unknown item %s", c.ID, id),
				})
				continue
			}
			if item.ContainerID != c.ID {
				violations = append(violations, Violation{
					ItemID:      id,
					ContainerID: c.ID,
					Message: fmt.Sprintf("container %s lists item %s which references %q",
						c.ID, id, item.ContainerID),
				})
			}
		}

		if maxItems > 0 && len(c.Items) > maxItems {
			violations = append(violations, Violation{
				ContainerID: c.ID,
				Message:     fmt.Sprintf("container %s holds %d items (limit %d)", c.ID, len(c.Items), maxItems),
			})
		}
		if mass := s.ContainerMass(c.ID); math.IsNaN(mass) || (maxMass > 0 && mass > maxMass) {
			violations = append(violations, Violation{
				ContainerID: c.ID,
				Message:     fmt.Sprintf("container %s holds %.2f mass (limit %.2f)", c.ID, mass, maxMass),
			})
		}
	}

	for _, item := range s.Items() {
		if !item.Assigned() {
			continue
		}
		c, ok := s.containers[item.ContainerID]
		if !ok {
			violations = append(violations, Violation{
				ItemID:      item.ID,
				ContainerID: item.ContainerID,
				Message:     fmt.Sprintf("item %s references unknown container %s", item.ID, item.ContainerID),
			})
			continue
		}
		if !c.Contains(item.ID) {
			violations = append(violations, Violation{
				ItemID:      item.ID,
				ContainerID: c.ID,
				Message:     fmt.Sprintf("item %s references container %s which does not list it", item.ID, c.ID),
			})
		}
	}

	return violations
}
