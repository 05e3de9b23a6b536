package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"fleetwatch-backend/internal/model"
)

// fleetItemResponse flattens a vehicle and its current status span.
type fleetItemResponse struct {
	model.Vehicle
	Status     string     `json:"status"`
	Since      *time.Time `json:"since,omitempty"`
	ObservedAt *time.Time `json:"observedAt,omitempty"`
}

// GetFleet handles GET /api/fleet. The optional ?status= query narrows the
// result to one classification.
func GetFleet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		statusFilter := c.Query("status")
		if statusFilter != "" && statusFilter != "active" && statusFilter != "idle" && statusFilter != "offline" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
			return
		}

		var vehicles []model.Vehicle
		if err := db.Order("fleet_no, name").Find(&vehicles).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vehicles"})
			return
		}

		statusMap, err := openStatuses(db)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve statuses"})
			return
		}

		response := make([]fleetItemResponse, 0, len(vehicles))
		for _, vehicle := range vehicles {
			item := fleetItemResponse{Vehicle: vehicle, Status: "offline"}
			if open, ok := statusMap[vehicle.ID]; ok {
				item.Status = open.Status
				since, observed := open.Since, open.ObservedAt
				item.Since = &since
				item.ObservedAt = &observed
			}
			if statusFilter != "" && item.Status != statusFilter {
				continue
			}
			response = append(response, item)
		}
		c.JSON(http.StatusOK, response)
	}
}

// fleetSummaryResponse is the per-status roll-up of the fleet.
type fleetSummaryResponse struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Idle    int64 `json:"idle"`
	Offline int64 `json:"offline"`
}

// GetFleetSummary handles GET /api/fleet/summary.
func GetFleetSummary(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var total int64
		if err := db.Model(&model.Vehicle{}).Count(&total).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to count vehicles"})
			return
		}

		type aggRow struct {
			Status string
			N      int64
		}
		var aggs []aggRow
		if err := db.Model(&model.StatusOpen{}).
			Select("status, COUNT(*) as n").
			Group("status").
			Scan(&aggs).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate statuses"})
			return
		}

		summary := fleetSummaryResponse{Total: total}
		var tracked int64
		for _, a := range aggs {
			tracked += a.N
			switch a.Status {
			case "active":
				summary.Active = a.N
			case "idle":
				summary.Idle = a.N
			case "offline":
				summary.Offline = a.N
			}
		}
		// Vehicles with no open span yet have never been classified; count
		// them as offline rather than dropping them from the roll-up.
		if total > tracked {
			summary.Offline += total - tracked
		}

		c.JSON(http.StatusOK, summary)
	}
}

// GetVehicle handles GET /api/vehicles/{vehicle_id}.
func GetVehicle(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		vehicleID, ok := vehicleIDParam(c)
		if !ok {
			return
		}

		var vehicle model.Vehicle
		if err := db.First(&vehicle, vehicleID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vehicle"})
			}
			return
		}

		item := fleetItemResponse{Vehicle: vehicle, Status: "offline"}
		var open model.StatusOpen
		if err := db.First(&open, vehicleID).Error; err == nil {
			item.Status = open.Status
			item.Since = &open.Since
			item.ObservedAt = &open.ObservedAt
		}

		c.JSON(http.StatusOK, item)
	}
}

// GetVehicleHistory handles GET /api/vehicles/{vehicle_id}/history. Closed
// status spans in the requested window, newest first; the window defaults
// to the last 24 hours.
func GetVehicleHistory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		vehicleID, ok := vehicleIDParam(c)
		if !ok {
			return
		}
		from, to, ok := timeWindow(c)
		if !ok {
			return
		}

		var spans []model.StatusHistory
		if err := db.Where("vehicle_id = ? AND period_end >= ? AND period_start <= ?", vehicleID, from, to).
			Order("period_start DESC").
			Find(&spans).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
			return
		}
		c.JSON(http.StatusOK, spans)
	}
}

// GetVehicleTrack handles GET /api/vehicles/{vehicle_id}/track. Recorded
// positions in the requested window, oldest first.
func GetVehicleTrack(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		vehicleID, ok := vehicleIDParam(c)
		if !ok {
			return
		}
		from, to, ok := timeWindow(c)
		if !ok {
			return
		}

		var points []model.TrackPoint
		if err := db.Where("vehicle_id = ? AND fixed_at BETWEEN ? AND ?", vehicleID, from, to).
			Order("fixed_at ASC").
			Find(&points).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve track"})
			return
		}
		c.JSON(http.StatusOK, points)
	}
}

func vehicleIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("vehicle_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return 0, false
	}
	return id, true
}

func timeWindow(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from, to := now.Add(-24*time.Hour), now

	if p := c.Query("from"); p != "" {
		t, err := time.Parse(time.RFC3339, p)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' timestamp format. Use RFC3339."})
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	if p := c.Query("to"); p != "" {
		t, err := time.Parse(time.RFC3339, p)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' timestamp format. Use RFC3339."})
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	return from, to, true
}

func openStatuses(db *gorm.DB) (map[int64]model.StatusOpen, error) {
	var open []model.StatusOpen
	if err := db.Find(&open).Error; err != nil {
		return nil, err
	}
	statusMap := make(map[int64]model.StatusOpen, len(open))
	for _, o := range open {
		statusMap[o.VehicleID] = o
	}
	return statusMap, nil
}
