// Package monitor wires the Wialon client into the application: it brings
// up a session, drives the fleet watcher, persists each classified snapshot
// and turns offline/recovery transitions into push alerts.
package monitor

import (
	"context"
	"log"
	"time"

	"fleetwatch-backend/config"
	"fleetwatch-backend/internal/notification"
	"fleetwatch-backend/internal/store"
	"fleetwatch-backend/internal/wialon"
)

// Service runs the poll-persist-notify loop.
type Service struct {
	cfg    *config.Config
	client *wialon.Client
	store  store.Store
	pool   *notification.WorkerPool
}

// NewService creates the monitor. The worker pool may be nil when push
// notifications are not configured.
func NewService(cfg *config.Config, client *wialon.Client, st store.Store, pool *notification.WorkerPool) *Service {
	return &Service{cfg: cfg, client: client, store: st, pool: pool}
}

// Run brings up a session and watches the fleet until ctx is cancelled.
// Snapshot processing failures are logged and never stop the watcher.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Wialon.Enabled {
		log.Println("Fleet monitor is disabled. Not starting.")
		return
	}

	if err := s.connect(ctx); err != nil {
		log.Printf("Fleet monitor could not establish a session: %v", err)
		return
	}

	if s.pool != nil {
		s.pool.Start(ctx)
	}

	log.Printf("Starting fleet monitor (interval %s)...", s.cfg.Wialon.Interval)
	stop, err := s.client.WatchFleet(s.cfg.Wialon.Interval, func(items []wialon.FleetItem) {
		s.ProcessSnapshot(ctx, items)
	})
	if err != nil {
		log.Printf("Fleet monitor could not start watching: %v", err)
		return
	}

	<-ctx.Done()
	stop()
	log.Println("Fleet monitor shutting down.")
}

// connect establishes an upstream session: a previously persisted session
// first, then a pre-issued session id from config, then token login.
func (s *Service) connect(ctx context.Context) error {
	if s.client.Sessions.Restore(ctx) {
		log.Println("Resumed persisted Wialon session.")
		return nil
	}

	if s.cfg.Wialon.SessionID != "" {
		s.client.Sessions.Bootstrap(s.cfg.Wialon.BaseURL, s.cfg.Wialon.SessionID)
		log.Println("Using externally issued Wialon session.")
		return nil
	}

	sess, err := s.client.Login(ctx, s.cfg.Wialon.Token)
	if err != nil {
		return err
	}
	log.Printf("Logged in to Wialon as %q (account %q).", sess.UserName, sess.Account)
	return nil
}

// ProcessSnapshot persists one classified snapshot and dispatches alerts
// for transitions into offline or back to active.
func (s *Service) ProcessSnapshot(ctx context.Context, items []wialon.FleetItem) {
	now := time.Now().UTC()

	if err := s.store.SyncVehicles(ctx, items); err != nil {
		log.Printf("Error syncing vehicles: %v", err)
		return
	}

	transitions, err := s.store.UpdateStatuses(ctx, now, items)
	if err != nil {
		log.Printf("Error updating vehicle statuses: %v", err)
		return
	}

	alerts := alertable(transitions)
	if s.pool != nil && len(alerts) > 0 {
		log.Printf("Dispatching %d alerts", len(alerts))
		for _, a := range alerts {
			s.pool.Dispatch(a)
		}
	}
}

// alertable keeps the transitions subscribers care about: a vehicle falling
// offline, or recovering from offline to active.
func alertable(transitions []store.Transition) []notification.Alert {
	var alerts []notification.Alert
	for _, tr := range transitions {
		offlineDrop := tr.To == wialon.StatusOffline
		recovery := tr.From == wialon.StatusOffline && tr.To == wialon.StatusActive
		if offlineDrop || recovery {
			alerts = append(alerts, notification.Alert{
				VehicleID: tr.VehicleID,
				From:      tr.From,
				To:        tr.To,
			})
		}
	}
	return alerts
}
