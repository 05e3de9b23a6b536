package wialon

import "time"

// VehicleStatus is the operational classification of a unit, derived purely
// from the age of its last position.
type VehicleStatus string

const (
	StatusActive  VehicleStatus = "active"
	StatusIdle    VehicleStatus = "idle"
	StatusOffline VehicleStatus = "offline"
)

// Classification windows. A fix younger than activeWindow means the vehicle
// is moving/reporting; between the two it is idle; at or beyond idleWindow
// it is considered offline.
const (
	activeWindow = 3 * time.Minute
	idleWindow   = 15 * time.Minute
)

// LatLng is a plain coordinate pair handed to consumers.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FleetItem is one classified vehicle in a fleet snapshot.
type FleetItem struct {
	ID         int64
	Name       string
	Status     VehicleStatus
	Position   *LatLng
	Speed      float64
	Heading    *float64
	LastUpdate *time.Time
	Unit       Unit
}

// Classify maps a unit to its operational status as of now. It is total and
// pure: a missing or incomplete position classifies as offline with no
// position, and a stale position is still reported — only the status
// reflects the staleness.
func Classify(u Unit, now time.Time) FleetItem {
	item := FleetItem{
		ID:     u.ID,
		Name:   u.Name,
		Status: StatusOffline,
		Unit:   u,
	}

	pos := u.Position
	if pos == nil {
		return item
	}

	fixedAt := time.Unix(pos.Time, 0)
	age := now.Sub(fixedAt)
	switch {
	case age < activeWindow:
		item.Status = StatusActive
	case age < idleWindow:
		item.Status = StatusIdle
	}

	item.Position = &LatLng{Lat: pos.Lat, Lng: pos.Lng}
	item.Speed = pos.Speed
	item.Heading = pos.Course
	item.LastUpdate = &fixedAt
	return item
}

// ClassifyAll classifies a full unit snapshot against a single reference
// time, preserving order.
func ClassifyAll(units []Unit, now time.Time) []FleetItem {
	items := make([]FleetItem, len(units))
	for i, u := range units {
		items[i] = Classify(u, now)
	}
	return items
}
