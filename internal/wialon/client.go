// Package wialon is a self-contained client for the Wialon remote API:
// session lifecycle, unit retrieval, status classification and a polling
// fleet watcher. Raw upstream records are normalized at the repository
// boundary and never handed past it.
package wialon

import (
	"context"
	"time"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API host, e.g. "https://hst-api.wialon.com". May be
	// replaced by a regional redirect after login.
	BaseURL string
	// Timeout bounds each remote call; zero means DefaultTimeout.
	Timeout time.Duration
	// RichData requests positions, sensors and icons with every unit
	// fetch. Without it only id and name are returned and every vehicle
	// classifies as offline.
	RichData bool
	// Sessions, when set, persists the session across restarts.
	Sessions SessionStore
}

// Client bundles the transport, session manager, unit repository and fleet
// watcher into one constructible object. Build one per composition root;
// there is deliberately no package-level instance.
type Client struct {
	Transport *Transport
	Sessions  *SessionManager
	Repo      *UnitRepository

	watcher *FleetWatcher
}

// New creates a client. Multiple clients are independent: each carries its
// own session state.
func New(cfg Config) *Client {
	tr := NewTransport(cfg.BaseURL, cfg.Timeout)
	repo := NewUnitRepository(tr, cfg.RichData)
	return &Client{
		Transport: tr,
		Sessions:  NewSessionManager(tr, cfg.Sessions),
		Repo:      repo,
		watcher:   NewFleetWatcher(repo),
	}
}

// Login exchanges an API token for a session.
func (c *Client) Login(ctx context.Context, token string) (*Session, error) {
	return c.Sessions.LoginWithToken(ctx, token)
}

// Logout drops the session locally no matter what the endpoint says.
func (c *Client) Logout(ctx context.Context) { c.Sessions.Logout(ctx) }

// Units returns the current unit snapshot.
func (c *Client) Units(ctx context.Context) ([]Unit, error) { return c.Repo.Units(ctx) }

// UnitByID returns one unit, or nil when the id is unknown.
func (c *Client) UnitByID(ctx context.Context, id int64) (*Unit, error) {
	return c.Repo.UnitByID(ctx, id)
}

// WatchFleet starts polling the fleet at the given interval, publishing a
// classified snapshot to onUpdate each cycle. The returned function stops
// the watcher and may be called any number of times.
func (c *Client) WatchFleet(interval time.Duration, onUpdate func([]FleetItem)) (func(), error) {
	return c.watcher.Watch(interval, onUpdate)
}
