package wialon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds every remote call issued through the transport.
const DefaultTimeout = 20 * time.Second

const endpointPath = "/wialon/ajax.html"

// Transport issues named remote procedures against the Wialon JSON endpoint.
// It owns the session id and base URL shared by all calls; both may be
// swapped at runtime (a login while a watcher runs). The session id is
// captured when a call is built, so in-flight requests keep the id they
// started with.
type Transport struct {
	mu      sync.RWMutex
	baseURL string
	sid     string

	client *http.Client
}

// NewTransport creates a transport for the given API host. A zero timeout
// falls back to DefaultTimeout.
func NewTransport(baseURL string, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// SetBaseURL replaces the API host, trimming trailing slashes so the
// endpoint path composes the same way every time.
func (t *Transport) SetBaseURL(u string) {
	t.mu.Lock()
	t.baseURL = strings.TrimRight(u, "/")
	t.mu.Unlock()
}

// BaseURL returns the current API host.
func (t *Transport) BaseURL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseURL
}

// SetSessionID stores the session id attached to subsequent calls. An empty
// string clears it.
func (t *Transport) SetSessionID(sid string) {
	t.mu.Lock()
	t.sid = sid
	t.mu.Unlock()
}

// SessionID returns the current session id, or "" when logged out.
func (t *Transport) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sid
}

// apiStatus is the failure envelope every Wialon response may carry.
type apiStatus struct {
	Error  *int   `json:"error"`
	Reason string `json:"reason"`
}

// Call sends a service invocation as a form-encoded POST and returns the
// raw JSON body. The session id, when present, is attached as "sid"; params
// are JSON-encoded into the "params" field (nil means an empty object).
// Network failures, timeouts and non-2xx statuses surface as *TransportError;
// a body with a non-zero "error" field surfaces as *APIError.
func (t *Transport) Call(ctx context.Context, service string, params any) (json.RawMessage, error) {
	if service == "" {
		return nil, fmt.Errorf("wialon: empty service name")
	}
	if params == nil {
		params = struct{}{}
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("wialon: marshal params for %s: %w", service, err)
	}

	t.mu.RLock()
	base, sid := t.baseURL, t.sid
	t.mu.RUnlock()

	form := url.Values{}
	form.Set("svc", service)
	form.Set("params", string(encoded))
	if sid != "" {
		form.Set("sid", sid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+endpointPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TransportError{Service: service, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Service: service, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Service: service, Err: err}
	}

	var status apiStatus
	if err := json.Unmarshal(body, &status); err == nil && status.Error != nil && *status.Error != 0 {
		return nil, &APIError{Service: service, Code: *status.Error, Reason: status.Reason}
	}

	return json.RawMessage(body), nil
}
