package model

import "time"

// TrackPoint is one recorded position fix. Points are only appended when
// the fix timestamp moved, so an idle vehicle does not flood the table.
type TrackPoint struct {
	ID        int64     `gorm:"autoIncrement;primaryKey" json:"-"`
	VehicleID int64     `gorm:"not null;index:idx_track_vehicle_time" json:"-"`
	Lat       float64   `gorm:"not null" json:"lat"`
	Lng       float64   `gorm:"not null" json:"lng"`
	Speed     float64   `json:"speed"`
	Heading   *float64  `json:"heading,omitempty"`
	FixedAt   time.Time `gorm:"not null;index:idx_track_vehicle_time" json:"fixedAt"`
}
