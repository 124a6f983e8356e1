package relay_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aposazhennikov/radio-directory-web/relay"
)

func TestDialRejectsUnsupportedScheme(t *testing.T) {
	_, err := relay.Dial(context.Background(), nil, "ftp://example.com/live")
	require.ErrorIs(t, err, relay.ErrUnsupportedScheme)
}

func TestDialStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := relay.Dial(context.Background(), srv.Client(), srv.URL)
	var statusErr *relay.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
}

func TestDialAndPump(t *testing.T) {
	payload := strings.Repeat("audio-frame-", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.Header.Get("Icy-MetaData"))
		w.Header().Set("Content-Type", "audio/aac; charset=binary")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	src, err := relay.Dial(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, "audio/aac", src.ContentType)

	head, err := src.Peek(12)
	require.NoError(t, err)
	assert.Equal(t, "audio-frame-", string(head))

	var got strings.Builder
	require.NoError(t, src.Pump(context.Background(), func(chunk []byte) {
		got.Write(chunk)
	}))
	assert.Equal(t, payload, got.String(), "peeked bytes are still relayed")
}

func TestPumpStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	src, err := relay.Dial(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	require.NoError(t, src.Pump(ctx, func([]byte) { called = true }))
	assert.False(t, called)
}

func TestSetListenerHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	relay.SetListenerHeaders(rec, "")
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	relay.SetListenerHeaders(rec, "audio/ogg")
	assert.Equal(t, "audio/ogg", rec.Header().Get("Content-Type"))
}

func TestIsConnectionClosedError(t *testing.T) {
	assert.False(t, relay.IsConnectionClosedError(nil))
	assert.True(t, relay.IsConnectionClosedError(errors.New("write tcp: broken pipe")))
	assert.True(t, relay.IsConnectionClosedError(errors.New("read: connection reset by peer")))
	assert.False(t, relay.IsConnectionClosedError(errors.New("timeout")))
}

func TestCloseNilSource(t *testing.T) {
	var src *relay.Source
	assert.NoError(t, src.Close())
}
