package notification

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fleetwatch-backend/internal/model"
	"fleetwatch-backend/internal/wialon"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	mu    sync.Mutex
	sent  []string
	calls []*webpush.Subscription
	code  int
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, string(payload))
	m.calls = append(m.calls, sub)
	code := m.code
	if code == 0 {
		code = http.StatusCreated
	}
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (m *mockSender) payloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Vehicle{}, &model.PushSubscription{}))
	return db
}

func TestWorkerPool_Dispatch(t *testing.T) {
	wp := NewWorkerPool(1, newTestDB(t), &webpush.Options{})

	wp.Dispatch(Alert{VehicleID: 123, To: wialon.StatusOffline})

	select {
	case job := <-wp.jobs:
		assert.Equal(t, int64(123), job.VehicleID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_SendsOfflineAlertToSubscribers(t *testing.T) {
	db := newTestDB(t)

	vehicle := model.Vehicle{ID: 101, Name: "21H - AGZ 1963", FleetNo: "21H"}
	require.NoError(t, db.Create(&vehicle).Error)

	sub := model.PushSubscription{
		Endpoint: "https://example.com/push/abc",
		P256DH:   "test_p256dh",
		Auth:     "test_auth",
		Vehicles: []*model.Vehicle{&vehicle},
	}
	require.NoError(t, db.Create(&sub).Error)

	wp := NewWorkerPool(1, db, &webpush.Options{})
	sender := &mockSender{}
	wp.sender = sender

	wp.sendAlertsForVehicle(context.Background(), Alert{
		VehicleID: 101,
		From:      wialon.StatusIdle,
		To:        wialon.StatusOffline,
	})

	payloads := sender.payloads()
	require.Len(t, payloads, 1)
	assert.Contains(t, payloads[0], "21H")
	assert.Contains(t, payloads[0], "offline")
	assert.Equal(t, "https://example.com/push/abc", sender.calls[0].Endpoint)
}

func TestWorkerPool_NoSubscribersNoSend(t *testing.T) {
	db := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})
	sender := &mockSender{}
	wp.sender = sender

	wp.sendAlertsForVehicle(context.Background(), Alert{VehicleID: 55, To: wialon.StatusOffline})

	assert.Empty(t, sender.payloads())
}

func TestWorkerPool_PrunesExpiredSubscription(t *testing.T) {
	db := newTestDB(t)

	vehicle := model.Vehicle{ID: 7, Name: "V4 - ABB 1578"}
	require.NoError(t, db.Create(&vehicle).Error)
	sub := model.PushSubscription{
		Endpoint: "https://example.com/push/expired",
		P256DH:   "k",
		Auth:     "a",
		Vehicles: []*model.Vehicle{&vehicle},
	}
	require.NoError(t, db.Create(&sub).Error)

	wp := NewWorkerPool(1, db, &webpush.Options{})
	wp.sender = &mockSender{code: http.StatusGone}

	wp.sendAlertsForVehicle(context.Background(), Alert{VehicleID: 7, To: wialon.StatusOffline})

	var count int64
	db.Model(&model.PushSubscription{}).Count(&count)
	assert.Zero(t, count, "a 410 response must remove the subscription")
}

func TestWorkerPool_WorkerDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	wp := NewWorkerPool(2, db, &webpush.Options{})
	wp.sender = &mockSender{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch(Alert{VehicleID: 1, To: wialon.StatusOffline})
	wp.Dispatch(Alert{VehicleID: 2, To: wialon.StatusActive})

	assert.Eventually(t, func() bool { return len(wp.jobs) == 0 }, time.Second, 10*time.Millisecond)
}
