package logo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aposazhennikov/radio-directory-web/logo"
)

func newResolver(t *testing.T, handler http.HandlerFunc) (*logo.Resolver, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return logo.NewResolver(logo.Options{LookupURL: srv.URL}), &calls
}

func TestResolveBetterLogoFound(t *testing.T) {
	resolver, calls := newResolver(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stations/search", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "st-1", r.URL.Query().Get("byuuid"))
		_, _ = w.Write([]byte(`[{"favicon":""},{"favicon":"https://cdn/st-1.png"}]`))
	})

	got, ok := resolver.ResolveBetterLogo(context.Background(), "st-1")
	assert.True(t, ok)
	assert.Equal(t, "https://cdn/st-1.png", got)

	_, _ = resolver.ResolveBetterLogo(context.Background(), "st-1")
	assert.Equal(t, int32(1), calls.Load(), "second lookup served from cache")
}

func TestResolveBetterLogoMisses(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"empty array", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`[]`)) }},
		{"empty favicon", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`[{"favicon":"  "}]`)) }},
		{"malformed", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"favicon":`)) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resolver, _ := newResolver(t, tc.handler)
			got, ok := resolver.ResolveBetterLogo(context.Background(), "st-2")
			assert.False(t, ok)
			assert.Empty(t, got)
		})
	}
}

func TestResolveBetterLogoUnreachable(t *testing.T) {
	resolver := logo.NewResolver(logo.Options{LookupURL: "http://127.0.0.1:1"})
	got, ok := resolver.ResolveBetterLogo(context.Background(), "st-3")
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestResolveBetterLogoEmptyID(t *testing.T) {
	resolver, calls := newResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"favicon":"x"}]`))
	})
	_, ok := resolver.ResolveBetterLogo(context.Background(), "")
	assert.False(t, ok)
	assert.Equal(t, int32(0), calls.Load())
}
