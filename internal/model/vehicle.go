package model

import "time"

// Vehicle is a tracked unit's persisted record. The primary key is the
// upstream unit id; name-derived fields are re-parsed on every sync so a
// renamed vehicle converges on the next poll.
type Vehicle struct {
	ID           int64  `gorm:"primaryKey" json:"id"` // Upstream unit ID
	Name         string `gorm:"size:256;not null" json:"name"`
	FleetNo      string `gorm:"size:32;index" json:"fleetNo"`
	Registration string `gorm:"size:32" json:"registration"`
	TrailerReg   string `gorm:"size:32" json:"trailerReg"`

	// Last known fix, denormalized for cheap fleet reads.
	LastLat    *float64   `json:"lastLat"`
	LastLng    *float64   `json:"lastLng"`
	LastSpeed  float64    `json:"lastSpeed"`
	LastSeenAt *time.Time `json:"lastSeenAt"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
