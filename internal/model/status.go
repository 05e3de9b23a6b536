package model

import "time"

// StatusOpen is the current status span of a vehicle (hot table). Exactly
// one row per vehicle; replaced when the classified status changes.
type StatusOpen struct {
	VehicleID  int64     `gorm:"primaryKey"`
	Status     string    `gorm:"size:16;not null"`
	Since      time.Time `gorm:"not null"` // when this span began
	ObservedAt time.Time `gorm:"not null"` // last poll that confirmed it
}

// StatusHistory is a closed status span (cold table).
type StatusHistory struct {
	ID          int64     `gorm:"autoIncrement;primaryKey"`
	VehicleID   int64     `gorm:"not null;index:idx_status_history_vehicle_time"`
	Status      string    `gorm:"size:16;not null"`
	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null;index:idx_status_history_vehicle_time"`
}
