package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/resilience"
)

type fakeChannel struct {
	name string
	err  error

	mu    sync.Mutex
	calls int
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(ctx context.Context, alert model.Alert) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.err
}

func (c *fakeChannel) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeRecorder struct {
	mu     sync.Mutex
	failed map[string][]string // alertID -> channels
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{failed: make(map[string][]string)}
}

func (r *fakeRecorder) MarkNotificationFailed(ctx context.Context, alertID, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[alertID] = append(r.failed[alertID], channel)
	return nil
}

func testAlert() model.Alert {
	return model.Alert{
		ID:       "a1",
		FoodName: "Milk",
		Level:    model.AlertLevelCritical,
		Message:  "Milk expires TODAY!",
		State:    model.AlertStateActive,
	}
}

func fastDispatcher(recorder FailureRecorder, channels ...Channel) *Dispatcher {
	d := NewDispatcher(recorder, channels...)
	d.retry = resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
	for name := range d.limiters {
		d.limiters[name] = rate.NewLimiter(rate.Inf, 1)
	}
	return d
}

func TestDispatcher_AllChannelsSucceed(t *testing.T) {
	desktop := &fakeChannel{name: "desktop"}
	sms := &fakeChannel{name: "sms"}
	recorder := newFakeRecorder()

	d := fastDispatcher(recorder, desktop, sms)
	require.NoError(t, d.Dispatch(context.Background(), []model.Alert{testAlert()}))

	assert.Equal(t, 1, desktop.callCount())
	assert.Equal(t, 1, sms.callCount())
	assert.Empty(t, recorder.failed)
}

func TestDispatcher_FailingChannelIsIsolated(t *testing.T) {
	desktop := &fakeChannel{name: "desktop"}
	sms := &fakeChannel{
		name: "sms",
		err:  resilience.NewTransientError(errors.New("twilio 503"), 503),
	}
	recorder := newFakeRecorder()

	d := fastDispatcher(recorder, desktop, sms)
	require.NoError(t, d.Dispatch(context.Background(), []model.Alert{testAlert()}))

	// Desktop delivered once; SMS exhausted its retries and only the SMS
	// failure was recorded.
	assert.Equal(t, 1, desktop.callCount())
	assert.Equal(t, 3, sms.callCount())
	assert.Equal(t, []string{"sms"}, recorder.failed["a1"])
}

func TestDispatcher_PermanentErrorNotRetried(t *testing.T) {
	email := &fakeChannel{name: "email", err: errors.New("550 user unknown")}
	recorder := newFakeRecorder()

	d := fastDispatcher(recorder, email)
	require.NoError(t, d.Dispatch(context.Background(), []model.Alert{testAlert()}))

	assert.Equal(t, 1, email.callCount())
	assert.Equal(t, []string{"email"}, recorder.failed["a1"])
}

func TestDispatcher_NoChannels(t *testing.T) {
	d := fastDispatcher(newFakeRecorder())
	assert.NoError(t, d.Dispatch(context.Background(), []model.Alert{testAlert()}))
}

func TestWebhookChannel_Send(t *testing.T) {
	var got model.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL)
	require.NoError(t, ch.Send(context.Background(), testAlert()))
	assert.Equal(t, "a1", got.ID)
}

func TestWebhookChannel_TransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhookChannel(srv.URL).Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestWebhookChannel_PermanentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhookChannel(srv.URL).Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestSMSChannel_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550002", r.Form.Get("To"))
		assert.Contains(t, r.Form.Get("Body"), "Milk expires TODAY!")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ch := NewSMSChannel(SMSConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		From:       "+15550001",
		To:         "+15550002",
	})
	ch.baseURL = srv.URL

	require.NoError(t, ch.Send(context.Background(), testAlert()))
}

func TestSMSChannel_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ch := NewSMSChannel(SMSConfig{AccountSID: "AC123"})
	ch.baseURL = srv.URL

	err := ch.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
