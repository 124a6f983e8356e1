package telegram

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

	"github.com/aposazhennikov/radio-directory-web/radio"
)

type sentMessage struct {
	Path      string
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type fakeBotAPI struct {
	mu       sync.Mutex
	messages []sentMessage
	status   int
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var msg sentMessage
	_ = json.NewDecoder(r.Body).Decode(&msg)
	msg.Path = r.URL.Path

	f.mu.Lock()
	f.messages = append(f.messages, msg)
	status := f.status
	f.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (f *fakeBotAPI) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestNotifier(t *testing.T) (*Notifier, *fakeBotAPI, *fakeClock) {
	t.Helper()
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	n := NewNotifier(Config{BotToken: "T0K", ChatID: "42", APIURL: srv.URL + "/", Cooldown: time.Minute}, nil)
	n.now = clock.now
	return n, api, clock
}

var station = radio.Station{UUID: "s1", Name: "Radio_Uno *FM*", Country: "Argentina", StreamURL: "http://a/live"}

func TestFailureAlert(t *testing.T) {
	n, api, _ := newTestNotifier(t)

	n.NotifyPlaybackFailure(context.Background(), station, errors.New("connection refused"))

	sent := api.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "/botT0K/sendMessage", sent[0].Path)
	assert.Equal(t, "42", sent[0].ChatID)
	assert.Equal(t, "Markdown", sent[0].ParseMode)
	assert.Contains(t, sent[0].Text, "Station Down")
	assert.Contains(t, sent[0].Text, `Radio\_Uno \*FM\*`)
	assert.Contains(t, sent[0].Text, "12:00:00")
	assert.Contains(t, sent[0].Text, "connection refused")

	status, ok := n.Status("s1")
	require.True(t, ok)
	require.NotNil(t, status.LastAlert)
}

func TestFailureAlertCooldown(t *testing.T) {
	n, api, clock := newTestNotifier(t)
	ctx := context.Background()

	n.NotifyPlaybackFailure(ctx, station, nil)
	clock.t = clock.t.Add(30 * time.Second)
	n.NotifyPlaybackFailure(ctx, station, nil)
	assert.Len(t, api.sent(), 1)

	clock.t = clock.t.Add(time.Minute)
	n.NotifyPlaybackFailure(ctx, station, nil)
	assert.Len(t, api.sent(), 2)
}

func TestConcurrentFailuresAlertOnce(t *testing.T) {
	n, api, _ := newTestNotifier(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.NotifyPlaybackFailure(context.Background(), station, errors.New("timeout"))
		}()
	}
	wg.Wait()

	assert.Len(t, api.sent(), 1)
}

func TestFailedDeliveryReleasesCooldown(t *testing.T) {
	n, api, _ := newTestNotifier(t)
	api.mu.Lock()
	api.status = http.StatusBadRequest
	api.mu.Unlock()

	n.NotifyPlaybackFailure(context.Background(), station, errors.New("timeout"))
	status, ok := n.Status("s1")
	require.True(t, ok)
	assert.Nil(t, status.LastAlert)

	api.mu.Lock()
	api.status = http.StatusOK
	api.mu.Unlock()

	n.NotifyPlaybackFailure(context.Background(), station, errors.New("timeout"))
	assert.Len(t, api.sent(), 2, "the retry is not held back by the failed attempt")
	status, _ = n.Status("s1")
	assert.NotNil(t, status.LastAlert)
}

func TestRecoveryAlert(t *testing.T) {
	n, api, clock := newTestNotifier(t)
	ctx := context.Background()

	n.NotifyPlaybackStarted(ctx, station)
	assert.Empty(t, api.sent(), "no recovery without a prior failure")

	n.NotifyPlaybackFailure(ctx, station, nil)
	clock.t = clock.t.Add(3 * time.Minute)
	n.NotifyPlaybackStarted(ctx, station)

	sent := api.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Text, "Station Restored")
	assert.Contains(t, sent[1].Text, "3 minutes")

	_, ok := n.Status("s1")
	assert.False(t, ok)
}

func TestDisabledNotifierSendsNothing(t *testing.T) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	n := NewNotifier(Config{APIURL: srv.URL}, nil)
	assert.False(t, n.IsEnabled())

	n.NotifyPlaybackFailure(context.Background(), station, nil)
	assert.Empty(t, api.sent())
}

func TestSendMessageAPIError(t *testing.T) {
	n, api, _ := newTestNotifier(t)
	api.status = http.StatusBadRequest

	err := n.SendMessage(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")

	// A failed delivery does not start the cooldown.
	n.NotifyPlaybackFailure(context.Background(), station, nil)
	status, ok := n.Status("s1")
	require.True(t, ok)
	assert.Nil(t, status.LastAlert)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42 seconds", formatDuration(42*time.Second))
	assert.Equal(t, "5 minutes", formatDuration(5*time.Minute))
	assert.Equal(t, "2 hours 3 minutes", formatDuration(2*time.Hour+3*time.Minute))
}

func TestUnknownTimezoneFallsBackToUTC(t *testing.T) {
	n := NewNotifier(Config{Timezone: "Nowhere/Atlantis"}, nil)
	assert.Equal(t, time.UTC, n.location)
}
