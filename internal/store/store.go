package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleetwatch-backend/internal/model"
	"fleetwatch-backend/internal/parse"
	"fleetwatch-backend/internal/wialon"
)

// Transition records a vehicle's status change observed between two polls.
// To is empty when the vehicle disappeared from the account.
type Transition struct {
	VehicleID int64
	From      wialon.VehicleStatus
	To        wialon.VehicleStatus
}

// Store defines the interface for all database operations. It also
// implements wialon.SessionStore so the session manager can persist its
// session through the same backend.
type Store interface {
	DB() *gorm.DB

	SyncVehicles(ctx context.Context, items []wialon.FleetItem) error
	UpdateStatuses(ctx context.Context, now time.Time, items []wialon.FleetItem) ([]Transition, error)

	SaveSession(ctx context.Context, s wialon.Session) error
	LoadSession(ctx context.Context) (*wialon.Session, error)
	ClearSession(ctx context.Context) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

// SyncVehicles upserts vehicle metadata and last positions from a
// classified snapshot, and appends a track point for every fix that moved
// forward since the previous poll. Unchanged vehicles are skipped entirely.
func (s *gormStore) SyncVehicles(ctx context.Context, items []wialon.FleetItem) error {
	existing, err := s.fetchAllVehicles(ctx)
	if err != nil {
		log.Printf("Warning: could not pre-fetch vehicles: %v", err)
		existing = make(map[int64]model.Vehicle)
	}

	var vehiclesToUpsert []model.Vehicle
	var trackPoints []model.TrackPoint

	for _, item := range items {
		vehicle := model.Vehicle{ID: item.ID, Name: item.Name}

		parsed, err := parse.ParseName(item.Name)
		if err != nil {
			log.Printf("Warning: could not parse name for unit %d (%q): %v", item.ID, item.Name, err)
		} else {
			vehicle.FleetNo = parsed.FleetNo
			vehicle.Registration = parsed.Registration
			vehicle.TrailerReg = parsed.TrailerReg
		}

		old, known := existing[item.ID]

		if item.Position != nil {
			lat, lng := item.Position.Lat, item.Position.Lng
			vehicle.LastLat = &lat
			vehicle.LastLng = &lng
			vehicle.LastSpeed = item.Speed
			vehicle.LastSeenAt = item.LastUpdate
		} else if known {
			// No fix in this snapshot; keep whatever we had.
			vehicle.LastLat = old.LastLat
			vehicle.LastLng = old.LastLng
			vehicle.LastSpeed = old.LastSpeed
			vehicle.LastSeenAt = old.LastSeenAt
		}

		if item.Position != nil && item.LastUpdate != nil && fixAdvanced(old.LastSeenAt, *item.LastUpdate) {
			trackPoints = append(trackPoints, model.TrackPoint{
				VehicleID: item.ID,
				Lat:       item.Position.Lat,
				Lng:       item.Position.Lng,
				Speed:     item.Speed,
				Heading:   item.Heading,
				FixedAt:   *item.LastUpdate,
			})
		}

		if !known || vehicleChanged(old, vehicle) {
			vehiclesToUpsert = append(vehiclesToUpsert, vehicle)
		}
	}

	if len(vehiclesToUpsert) == 0 && len(trackPoints) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(vehiclesToUpsert) > 0 {
			if err := batchUpsertVehicles(tx, vehiclesToUpsert); err != nil {
				return fmt.Errorf("batch upsert vehicles failed: %w", err)
			}
		}
		if len(trackPoints) > 0 {
			if err := tx.Create(&trackPoints).Error; err != nil {
				return fmt.Errorf("append track points failed: %w", err)
			}
		}
		return nil
	})
}

// UpdateStatuses diffs a classified snapshot against the open status spans
// and updates the hot/cold tables transactionally. Returns the transitions
// that occurred, for the caller to turn into notifications.
func (s *gormStore) UpdateStatuses(ctx context.Context, now time.Time, items []wialon.FleetItem) ([]Transition, error) {
	openRecords, err := s.fetchAllOpenStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open status records: %w", err)
	}

	var transitions []Transition

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			status := string(item.Status)
			old, exists := openRecords[item.ID]

			if !exists {
				record := model.StatusOpen{VehicleID: item.ID, Status: status, Since: now, ObservedAt: now}
				if err := tx.Create(&record).Error; err != nil {
					return fmt.Errorf("failed to create status record for vehicle %d: %w", item.ID, err)
				}
				// First sighting is not a transition.
				delete(openRecords, item.ID)
				continue
			}

			delete(openRecords, item.ID)

			if old.Status == status {
				if err := tx.Model(&model.StatusOpen{}).Where("vehicle_id = ?", item.ID).
					Update("observed_at", now).Error; err != nil {
					return fmt.Errorf("failed to touch status record for vehicle %d: %w", item.ID, err)
				}
				continue
			}

			if err := archiveSpan(tx, old, now); err != nil {
				return err
			}
			updated := model.StatusOpen{VehicleID: item.ID, Status: status, Since: now, ObservedAt: now}
			if err := tx.Save(&updated).Error; err != nil {
				return fmt.Errorf("failed to update status record for vehicle %d: %w", item.ID, err)
			}

			transitions = append(transitions, Transition{
				VehicleID: item.ID,
				From:      wialon.VehicleStatus(old.Status),
				To:        item.Status,
			})
		}

		// Vehicles we were tracking that are no longer in the snapshot.
		for _, remaining := range openRecords {
			if err := archiveSpan(tx, remaining, now); err != nil {
				return err
			}
			if err := tx.Delete(&model.StatusOpen{}, remaining.VehicleID).Error; err != nil {
				return fmt.Errorf("failed to delete status record for vehicle %d: %w", remaining.VehicleID, err)
			}
			transitions = append(transitions, Transition{
				VehicleID: remaining.VehicleID,
				From:      wialon.VehicleStatus(remaining.Status),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transitions, nil
}

// archiveSpan moves a closed status span into the history table.
func archiveSpan(tx *gorm.DB, record model.StatusOpen, now time.Time) error {
	history := model.StatusHistory{
		VehicleID:   record.VehicleID,
		Status:      record.Status,
		PeriodStart: record.Since,
		PeriodEnd:   now,
	}
	if err := tx.Create(&history).Error; err != nil {
		return fmt.Errorf("failed to archive status span for vehicle %d: %w", record.VehicleID, err)
	}
	return nil
}

// --- Session persistence (wialon.SessionStore) ---

// The upstream session is a single row; sessionRowID pins it.
const sessionRowID = 1

func (s *gormStore) SaveSession(ctx context.Context, sess wialon.Session) error {
	row := model.APISession{
		ID:        sessionRowID,
		SessionID: sess.ID,
		BaseURL:   sess.BaseURL,
		UserID:    sess.UserID,
		UserName:  sess.UserName,
		Account:   sess.Account,
		IssuedAt:  sess.IssuedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_id", "base_url", "user_id", "user_name", "account", "issued_at", "updated_at"}),
	}).Create(&row).Error
}

func (s *gormStore) LoadSession(ctx context.Context) (*wialon.Session, error) {
	var row model.APISession
	err := s.db.WithContext(ctx).First(&row, sessionRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wialon.Session{
		ID:       row.SessionID,
		BaseURL:  row.BaseURL,
		IssuedAt: row.IssuedAt,
		UserID:   row.UserID,
		UserName: row.UserName,
		Account:  row.Account,
	}, nil
}

func (s *gormStore) ClearSession(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&model.APISession{}, sessionRowID).Error
}

// --- Helpers ---

func (s *gormStore) fetchAllVehicles(ctx context.Context) (map[int64]model.Vehicle, error) {
	var vehicles []model.Vehicle
	if err := s.db.WithContext(ctx).Find(&vehicles).Error; err != nil {
		return nil, err
	}
	vehicleMap := make(map[int64]model.Vehicle, len(vehicles))
	for _, v := range vehicles {
		vehicleMap[v.ID] = v
	}
	return vehicleMap, nil
}

func (s *gormStore) fetchAllOpenStatuses(ctx context.Context) (map[int64]model.StatusOpen, error) {
	var openRecords []model.StatusOpen
	if err := s.db.WithContext(ctx).Find(&openRecords).Error; err != nil {
		return nil, err
	}
	recordMap := make(map[int64]model.StatusOpen, len(openRecords))
	for _, r := range openRecords {
		recordMap[r.VehicleID] = r
	}
	return recordMap, nil
}

// fixAdvanced reports whether a fix timestamp moved past the stored one.
func fixAdvanced(prev *time.Time, fixedAt time.Time) bool {
	return prev == nil || fixedAt.After(*prev)
}

func vehicleChanged(old, updated model.Vehicle) bool {
	if old.Name != updated.Name ||
		old.FleetNo != updated.FleetNo ||
		old.Registration != updated.Registration ||
		old.TrailerReg != updated.TrailerReg ||
		old.LastSpeed != updated.LastSpeed {
		return true
	}
	if !floatPtrEqual(old.LastLat, updated.LastLat) || !floatPtrEqual(old.LastLng, updated.LastLng) {
		return true
	}
	return !timePtrEqual(old.LastSeenAt, updated.LastSeenAt)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func batchUpsertVehicles(tx *gorm.DB, vehicles []model.Vehicle) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "fleet_no", "registration", "trailer_reg", "last_lat", "last_lng", "last_speed", "last_seen_at", "updated_at"}),
	}).Create(&vehicles).Error
}
