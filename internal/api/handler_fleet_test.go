package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fleetwatch-backend/internal/model"
)

func setupFleetRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Vehicle{},
		&model.StatusOpen{},
		&model.StatusHistory{},
		&model.TrackPoint{},
		&model.PushSubscription{},
	))

	r := gin.New()
	r.GET("/api/fleet", GetFleet(db))
	r.GET("/api/fleet/summary", GetFleetSummary(db))
	r.GET("/api/vehicles/:vehicle_id", GetVehicle(db))
	r.GET("/api/vehicles/:vehicle_id/history", GetVehicleHistory(db))
	r.GET("/api/vehicles/:vehicle_id/track", GetVehicleTrack(db))
	return r, db
}

func seedFleet(t *testing.T, db *gorm.DB) {
	now := time.Now().UTC()
	lat, lng := -26.2, 28.0

	require.NoError(t, db.Create(&[]model.Vehicle{
		{ID: 1, Name: "21H - AGZ 1963", FleetNo: "21H", Registration: "AGZ 1963", LastLat: &lat, LastLng: &lng, LastSeenAt: &now},
		{ID: 2, Name: "29H - AGJ 3466", FleetNo: "29H", Registration: "AGJ 3466"},
		{ID: 3, Name: "V4 - ABB 1578", FleetNo: "V4", Registration: "ABB 1578"},
	}).Error)

	require.NoError(t, db.Create(&[]model.StatusOpen{
		{VehicleID: 1, Status: "active", Since: now.Add(-time.Hour), ObservedAt: now},
		{VehicleID: 2, Status: "offline", Since: now.Add(-2 * time.Hour), ObservedAt: now},
	}).Error)
}

func TestGetFleet(t *testing.T) {
	r, db := setupFleetRouter(t)
	seedFleet(t, db)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/fleet", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 3)

	byID := make(map[float64]map[string]any)
	for _, item := range resp {
		byID[item["id"].(float64)] = item
	}
	assert.Equal(t, "active", byID[1]["status"])
	assert.Equal(t, "offline", byID[2]["status"])
	assert.Equal(t, "offline", byID[3]["status"], "a vehicle with no open span reads as offline")
}

func TestGetFleet_StatusFilter(t *testing.T) {
	r, db := setupFleetRouter(t)
	seedFleet(t, db)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/fleet?status=active", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, float64(1), resp[0]["id"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/fleet?status=parked", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetFleetSummary(t *testing.T) {
	r, db := setupFleetRouter(t)
	seedFleet(t, db)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/fleet/summary", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp fleetSummaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, int64(1), resp.Active)
	assert.Equal(t, int64(0), resp.Idle)
	assert.Equal(t, int64(2), resp.Offline, "untracked vehicle counted as offline")
}

func TestGetVehicle(t *testing.T) {
	r, db := setupFleetRouter(t)
	seedFleet(t, db)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/vehicles/1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "21H", resp["fleetNo"])
	assert.Equal(t, "active", resp["status"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/vehicles/999", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/vehicles/not-a-number", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVehicleHistoryAndTrack(t *testing.T) {
	r, db := setupFleetRouter(t)
	seedFleet(t, db)

	now := time.Now().UTC()
	require.NoError(t, db.Create(&model.StatusHistory{
		VehicleID:   1,
		Status:      "idle",
		PeriodStart: now.Add(-3 * time.Hour),
		PeriodEnd:   now.Add(-time.Hour),
	}).Error)
	require.NoError(t, db.Create(&model.TrackPoint{
		VehicleID: 1, Lat: -26.2, Lng: 28.0, Speed: 72, FixedAt: now.Add(-30 * time.Minute),
	}).Error)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/vehicles/1/history", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var spans []model.StatusHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spans))
	require.Len(t, spans, 1)
	assert.Equal(t, "idle", spans[0].Status)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/vehicles/1/track", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var points []model.TrackPoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &points))
	require.Len(t, points, 1)
	assert.Equal(t, 72.0, points[0].Speed)

	// A bad window is rejected.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/vehicles/1/track?from=yesterday", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
