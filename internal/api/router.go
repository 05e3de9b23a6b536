package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"fleetwatch-backend/config"
	"fleetwatch-backend/internal/mw"
	"fleetwatch-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	db := s.DB()
	handler := NewHandler(s, webpushOptions)

	rateLimiter := mw.RateLimit(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Fleet reads are cached briefly; the data only changes once per poll.
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/fleet", caching, GetFleet(db))
		api.GET("/fleet/summary", caching, GetFleetSummary(db))
		api.GET("/vehicles/:vehicle_id", GetVehicle(db))
		api.GET("/vehicles/:vehicle_id/history", caching, GetVehicleHistory(db))
		api.GET("/vehicles/:vehicle_id/track", caching, GetVehicleTrack(db))

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
