package catalogue

import (
	"math"
	"time"
)

// NoExpiry is the textual sentinel used by catalogue sources for items that never expire.
const NoExpiry = "N/A"

// ExpiryLayout is the textual layout of item expiry dates.
const ExpiryLayout = "2006-01-02"

// Container is a fixed-capacity storage unit.
type Container struct {
	// ID is assigned externally and never generated.
	ID string `json:"container_id"`

	// Zone is the category label matched against an item's preferred zone.
	Zone string `json:"zone"`

	// Width, Depth and Height are in centimeters.
	Width  float64 `json:"width"`
	Depth  float64 `json:"depth"`
	Height float64 `json:"height"`

	// Items holds assigned item ids in placement order.
	Items []string `json:"items"`
}

// Item is a placeable unit.
type Item struct {
	ID     string  `json:"item_id"`
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Depth  float64 `json:"depth"`
	Height float64 `json:"height"`

	// Mass is in kilograms.
	Mass float64 `json:"mass"`

	// Priority is added to the placement score; higher is more important.
	Priority int `json:"priority"`

	// ExpiryDate is kept verbatim. Empty or NoExpiry means the item never expires.
	ExpiryDate string `json:"expiry_date,omitempty"`

	// UsageLimit is carried through unchanged.
	UsageLimit int `json:"usage_limit"`

	PreferredZone string `json:"preferred_zone"`

	// ContainerID is empty when the item is unassigned.
	ContainerID string `json:"container,omitempty"`

	// PlacedAt is set when the item is assigned and cleared when it is released.
	PlacedAt *time.Time `json:"placed_at,omitempty"`
}

// Assigned reports whether the item references a container.
func (i *Item) Assigned() bool {
	return i.ContainerID != ""
}

// HasExpiry reports whether the item carries an expiry value at all.
func (i *Item) HasExpiry() bool {
	return i.ExpiryDate != "" && i.ExpiryDate != NoExpiry
}

// Expiry parses the expiry date in the given location.
// ok is false when the item never expires.
func (i *Item) Expiry(loc *time.Location) (expiry time.Time, ok bool, err error) {
	if !i.HasExpiry() {
		return time.Time{}, false, nil
	}
	if loc == nil {
		loc = time.Local
	}
	expiry, err = time.ParseInLocation(ExpiryLayout, i.ExpiryDate, loc)
	if err != nil {
		return time.Time{}, true, err
	}
	return expiry, true, nil
}

// Measurable reports whether v is usable as a dimension or mass: positive
// and finite. NaN compares false against every bound, so it must be
// rejected explicitly.
func Measurable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Measurable reports whether every dimension is Measurable.
func (c *Container) Measurable() bool {
	return Measurable(c.Width) && Measurable(c.Depth) && Measurable(c.Height)
}

// Fits reports whether the item fits the container on every axis without rotation.
func (c *Container) Fits(item *Item) bool {
	return item.Width <= c.Width &&
		item.Depth <= c.Depth &&
		item.Height <= c.Height
}

// Contains reports whether the container lists the item.
func (c *Container) Contains(itemID string) bool {
	return indexOf(c.Items, itemID) >= 0
}

func (c *Container) clone() *Container {
	cp := *c
	cp.Items = append([]string(nil), c.Items...)
	return &cp
}

func (i *Item) clone() *Item {
	cp := *i
	if i.PlacedAt != nil {
		t := *i.PlacedAt
		cp.PlacedAt = &t
	}
	return &cp
}

func indexOf(ids []string, id string) int {
	for n, v := range ids {
		if v == id {
			return n
		}
	}
	return -1
}
