package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"fleetwatch-backend/internal/model"
	"fleetwatch-backend/internal/wialon"
)

// Alert is one notification job: a vehicle crossed a status boundary that
// subscribers care about.
type Alert struct {
	VehicleID int64
	From      wialon.VehicleStatus
	To        wialon.VehicleStatus
}

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers delivering push alerts.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			log.Printf("Worker %d processing alert for vehicle %d (%s -> %s)", id, alert.VehicleID, alert.From, alert.To)
			wp.sendAlertsForVehicle(ctx, alert)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert for delivery.
func (wp *WorkerPool) Dispatch(alert Alert) {
	wp.jobs <- alert
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

// sendAlertsForVehicle fetches the vehicle's subscribers and notifies each.
func (wp *WorkerPool) sendAlertsForVehicle(ctx context.Context, alert Alert) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_vehicle_mapping svm ON svm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("svm.vehicle_id = ?", alert.VehicleID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for vehicle %d: %v", alert.VehicleID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	label := fmt.Sprintf("%d", alert.VehicleID)
	var vehicle model.Vehicle
	if err := wp.db.WithContext(ctx).
		Select("name", "fleet_no").
		First(&vehicle, alert.VehicleID).Error; err != nil {
		log.Printf("Error fetching vehicle %d: %v", alert.VehicleID, err)
	} else if vehicle.FleetNo != "" {
		label = vehicle.FleetNo
	} else if vehicle.Name != "" {
		label = vehicle.Name
	}

	var message string
	switch alert.To {
	case wialon.StatusOffline:
		message = fmt.Sprintf("Vehicle %s has stopped reporting and is now offline.", label)
	case wialon.StatusActive:
		message = fmt.Sprintf("Vehicle %s is back online and moving.", label)
	default:
		message = fmt.Sprintf("Vehicle %s is now %s.", label, alert.To)
	}

	log.Printf("Sending %d notifications for vehicle %d", len(subscriptions), alert.VehicleID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions get pruned.
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
