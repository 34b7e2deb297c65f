// Package engine implements placement, retrieval and waste handling over a
// catalogue of containers and items.
//
// # Placement
//
// Place evaluates every container in catalogue order. A container is eligible
// when the item fits on every axis without rotation, the container holds fewer
// than Limits.MaxItems items, and its current mass plus the item mass does not
// exceed Limits.MaxMass. Eligible containers are scored:
//
//	score = item.Priority + (ZoneBonus if container.Zone == item.PreferredZone)
//
// The first container with the highest score wins. When no container is
// eligible the catalogue is left unchanged and an ineligible error returned.
//
// # Waste
//
// An item is waste when its expiry date (YYYY-MM-DD, interpreted in the
// location of the engine clock) is strictly before now. SimulateDay and Undock
// unassign waste items and report only the items they actually moved.
//
// # Imports
//
// ImportItems and ImportContainers replace records by id and then evict the
// assignments the new records can no longer honor, so the catalogue
// invariants hold after every operation.
//
// # Concurrency
//
// An Engine serializes every operation with one mutex. Observer callbacks run
// inside that lock.
package engine
