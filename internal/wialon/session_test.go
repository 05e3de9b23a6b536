package wialon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wialonStub is a minimal fake of the remote endpoint, dispatching on the
// svc form field.
func wialonStub(t *testing.T, handlers map[string]func(params string) (int, string)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		svc := r.PostFormValue("svc")
		h, ok := handlers[svc]
		if !ok {
			t.Errorf("unexpected service call: %s", svc)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		status, body := h(r.PostFormValue("params"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestSessionManager_LoginPrefersEID(t *testing.T) {
	server := wialonStub(t, map[string]func(string) (int, string){
		"token/login": func(params string) (int, string) {
			var p map[string]string
			require.NoError(t, json.Unmarshal([]byte(params), &p))
			assert.Equal(t, "validtoken", p["token"])
			return 200, `{"eid":"SID123","sid":"SHOULD-LOSE","user":{"id":77,"nm":"Test"},"au":"fleet-account"}`
		},
	})
	defer server.Close()

	tr := NewTransport(server.URL, 0)
	m := NewSessionManager(tr, nil)

	sess, err := m.LoginWithToken(context.Background(), "validtoken")
	require.NoError(t, err)

	assert.Equal(t, "SID123", sess.ID)
	assert.Equal(t, "SID123", tr.SessionID())
	assert.Equal(t, "Test", sess.UserName)
	assert.Equal(t, int64(77), sess.UserID)
	assert.Equal(t, "fleet-account", sess.Account)
	assert.Equal(t, sess, m.Current())
}

func TestSessionManager_LoginAcceptsSIDFallback(t *testing.T) {
	server := wialonStub(t, map[string]func(string) (int, string){
		"token/login": func(string) (int, string) {
			return 200, `{"sid":"FALLBACK","user":{"nm":"Test"}}`
		},
	})
	defer server.Close()

	tr := NewTransport(server.URL, 0)
	m := NewSessionManager(tr, nil)

	sess, err := m.LoginWithToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "FALLBACK", sess.ID)
}

func TestSessionManager_LoginFollowsBaseURLRedirect(t *testing.T) {
	server := wialonStub(t, map[string]func(string) (int, string){
		"token/login": func(string) (int, string) {
			return 200, `{"eid":"SID1","base_url":"https://hst-api.eu.wialon.com/"}`
		},
	})
	defer server.Close()

	tr := NewTransport(server.URL, 0)
	m := NewSessionManager(tr, nil)

	sess, err := m.LoginWithToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "https://hst-api.eu.wialon.com", tr.BaseURL(), "regional host installed, slash trimmed")
	assert.Equal(t, "https://hst-api.eu.wialon.com", sess.BaseURL)
}

func TestSessionManager_LoginMissingSessionFields(t *testing.T) {
	server := wialonStub(t, map[string]func(string) (int, string){
		"token/login": func(string) (int, string) { return 200, `{"user":{"nm":"Test"}}` },
	})
	defer server.Close()

	tr := NewTransport(server.URL, 0)
	m := NewSessionManager(tr, nil)

	_, err := m.LoginWithToken(context.Background(), "tok")

	var aerr *AuthenticationError
	require.ErrorAs(t, err, &aerr)
	assert.Empty(t, tr.SessionID(), "failed login must not leave a partial session")
	assert.Nil(t, m.Current())
}

func TestSessionManager_LoginRemoteErrorCode(t *testing.T) {
	server := wialonStub(t, map[string]func(string) (int, string){
		"token/login": func(string) (int, string) { return 200, `{"error":8,"reason":"token expired"}` },
	})
	defer server.Close()

	m := NewSessionManager(NewTransport(server.URL, 0), nil)
	_, err := m.LoginWithToken(context.Background(), "tok")

	var aerr *AuthenticationError
	require.ErrorAs(t, err, &aerr)
	assert.Contains(t, aerr.Error(), "8")
	assert.Contains(t, aerr.Error(), "token expired")
}

func TestSessionManager_LoginEmptyToken(t *testing.T) {
	m := NewSessionManager(NewTransport("http://example.invalid", 0), nil)
	_, err := m.LoginWithToken(context.Background(), "")

	var aerr *AuthenticationError
	assert.ErrorAs(t, err, &aerr)
}

func TestSessionManager_LogoutClearsStateEvenOnServerFailure(t *testing.T) {
	server := wialonStub(t, map[string]func(string) (int, string){
		"token/login": func(string) (int, string) { return 200, `{"eid":"SID9"}` },
		"core/logout": func(string) (int, string) { return 500, `` },
	})
	defer server.Close()

	tr := NewTransport(server.URL, 0)
	m := NewSessionManager(tr, nil)

	_, err := m.LoginWithToken(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "SID9", tr.SessionID())

	m.Logout(context.Background())

	assert.Empty(t, tr.SessionID())
	assert.Nil(t, m.Current())
}

func TestSessionManager_LogoutWithoutSessionSkipsNetwork(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	m := NewSessionManager(NewTransport(server.URL, 0), nil)
	m.Logout(context.Background())

	assert.Zero(t, calls)
}

func TestSessionManager_Bootstrap(t *testing.T) {
	tr := NewTransport("https://hst-api.wialon.com", 0)
	m := NewSessionManager(tr, nil)

	m.Bootstrap("https://hst-api.eu.wialon.com", "EXTERNAL-SID")

	assert.Equal(t, "EXTERNAL-SID", tr.SessionID())
	assert.Equal(t, "https://hst-api.eu.wialon.com", tr.BaseURL())
	require.NotNil(t, m.Current())
	assert.Equal(t, "EXTERNAL-SID", m.Current().ID)
}

// memorySessionStore is an in-memory SessionStore for tests.
type memorySessionStore struct {
	mu   sync.Mutex
	sess *Session
}

func (s *memorySessionStore) SaveSession(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = &sess
	return nil
}

func (s *memorySessionStore) LoadSession(context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, nil
}

func (s *memorySessionStore) ClearSession(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = nil
	return nil
}

func TestSessionManager_PersistAndRestore(t *testing.T) {
	server := wialonStub(t, map[string]func(string) (int, string){
		"token/login": func(string) (int, string) { return 200, `{"eid":"SAVED","user":{"nm":"Ops"}}` },
		"core/logout": func(string) (int, string) { return 200, `{"error":0}` },
	})
	defer server.Close()

	store := &memorySessionStore{}

	first := NewSessionManager(NewTransport(server.URL, 0), store)
	_, err := first.LoginWithToken(context.Background(), "tok")
	require.NoError(t, err)

	// A second manager (fresh process) resumes from the store.
	tr2 := NewTransport(server.URL, 0)
	second := NewSessionManager(tr2, store)
	assert.True(t, second.Restore(context.Background()))
	assert.Equal(t, "SAVED", tr2.SessionID())

	second.Logout(context.Background())
	loaded, err := store.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded, "logout must clear the persisted session")
}
