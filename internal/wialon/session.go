package wialon

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"
)

// Session is the fully-initialized result of a login. Consumers never see a
// partial session: the manager either holds one of these or nothing.
type Session struct {
	ID       string
	BaseURL  string
	IssuedAt time.Time
	UserID   int64
	UserName string
	Account  string
}

// SessionStore persists a session outside the transport's lifetime so a
// restarted process can resume without re-spending its login token.
type SessionStore interface {
	SaveSession(ctx context.Context, s Session) error
	LoadSession(ctx context.Context) (*Session, error)
	ClearSession(ctx context.Context) error
}

// loginResponse is the token/login wire shape. The endpoint names the
// session id "eid" or "sid" depending on deployment; both are accepted.
type loginResponse struct {
	EID     string `json:"eid"`
	SID     string `json:"sid"`
	BaseURL string `json:"base_url"`
	Account string `json:"au"`
	User    struct {
		ID   int64  `json:"id"`
		Name string `json:"nm"`
	} `json:"user"`
}

// SessionManager performs the token-login handshake and owns the resulting
// session state. The store is optional; pass nil to keep sessions in memory
// only.
type SessionManager struct {
	tr    *Transport
	store SessionStore

	mu      sync.Mutex
	current *Session
}

// NewSessionManager creates a manager bound to the given transport.
func NewSessionManager(tr *Transport, store SessionStore) *SessionManager {
	return &SessionManager{tr: tr, store: store}
}

// LoginWithToken exchanges a long-lived API token for a session. On success
// the session id (and a region redirect host, when the endpoint sends one)
// is installed on the transport. A remote error code or a response missing
// both session fields yields an *AuthenticationError; the externally visible
// state does not change until the call resolves.
func (m *SessionManager) LoginWithToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, &AuthenticationError{Reason: "empty token"}
	}

	raw, err := m.tr.Call(ctx, "token/login", map[string]string{"token": token})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, &AuthenticationError{Reason: apiErr.Error(), Err: apiErr}
		}
		return nil, err
	}

	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &AuthenticationError{Reason: "malformed login response", Err: err}
	}

	sid := resp.EID
	if sid == "" {
		sid = resp.SID
	}
	if sid == "" {
		return nil, &AuthenticationError{Reason: "login response carries no session id"}
	}

	if resp.BaseURL != "" {
		m.tr.SetBaseURL(resp.BaseURL)
	}
	m.tr.SetSessionID(sid)

	sess := &Session{
		ID:       sid,
		BaseURL:  m.tr.BaseURL(),
		IssuedAt: time.Now().UTC(),
		UserID:   resp.User.ID,
		UserName: resp.User.Name,
		Account:  resp.Account,
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveSession(ctx, *sess); err != nil {
			log.Printf("wialon: could not persist session: %v", err)
		}
	}

	return sess, nil
}

// Bootstrap installs a session obtained out-of-band (typically issued
// server-side so the browser-facing token never reaches this process).
// It skips the login handshake entirely.
func (m *SessionManager) Bootstrap(baseURL, sessionID string) {
	if baseURL != "" {
		m.tr.SetBaseURL(baseURL)
	}
	m.tr.SetSessionID(sessionID)

	m.mu.Lock()
	m.current = &Session{ID: sessionID, BaseURL: m.tr.BaseURL(), IssuedAt: time.Now().UTC()}
	m.mu.Unlock()
}

// Restore loads a previously persisted session from the store and installs
// it. Returns false when no store is configured or nothing was saved.
func (m *SessionManager) Restore(ctx context.Context) bool {
	if m.store == nil {
		return false
	}
	sess, err := m.store.LoadSession(ctx)
	if err != nil {
		log.Printf("wialon: could not load persisted session: %v", err)
		return false
	}
	if sess == nil || sess.ID == "" {
		return false
	}

	if sess.BaseURL != "" {
		m.tr.SetBaseURL(sess.BaseURL)
	}
	m.tr.SetSessionID(sess.ID)

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return true
}

// Logout tells the endpoint to drop the session, then clears local state
// regardless of the outcome. A failed core/logout is logged, never
// surfaced: locally the session is terminated either way.
func (m *SessionManager) Logout(ctx context.Context) {
	if m.tr.SessionID() != "" {
		if _, err := m.tr.Call(ctx, "core/logout", nil); err != nil {
			log.Printf("wialon: core/logout failed (session cleared locally anyway): %v", err)
		}
	}

	m.tr.SetSessionID("")

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.ClearSession(ctx); err != nil {
			log.Printf("wialon: could not clear persisted session: %v", err)
		}
	}
}

// Current returns the active session, or nil when logged out.
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
