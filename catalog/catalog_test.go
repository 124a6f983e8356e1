package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aposazhennikov/radio-directory-web/catalog"
	"github.com/aposazhennikov/radio-directory-web/radio"
)

func newAPI(t *testing.T, handler http.HandlerFunc) *catalog.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return catalog.NewClient(catalog.Options{BaseURL: srv.URL + "/api/"})
}

func TestSearchQueryValues(t *testing.T) {
	v := catalog.SearchQuery{Query: "jazz", Country: "AR", Limit: 100, Page: 2}.Values()
	assert.Equal(t, "jazz", v.Get("query"))
	assert.Equal(t, "AR", v.Get("pais"))
	assert.Equal(t, "100", v.Get("limite"))
	assert.Equal(t, "2", v.Get("pagina"))
	assert.False(t, v.Has("genero"))
	assert.False(t, v.Has("excludeUuid"))
}

func TestSearchBareList(t *testing.T) {
	client := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/radio/buscar", r.URL.Path)
		assert.Equal(t, "AR", r.URL.Query().Get("pais"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_ = json.NewEncoder(w).Encode([]radio.Station{{UUID: "a", Name: "A"}, {UUID: "b", Name: "B"}})
	})

	page, err := client.Search(context.Background(), catalog.SearchQuery{Country: "AR"})
	require.NoError(t, err)
	assert.False(t, page.Paginated)
	assert.Len(t, page.Stations, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.TotalPages)
}

func TestSearchEnvelope(t *testing.T) {
	client := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rock", r.URL.Query().Get("genero"))
		assert.Equal(t, "2", r.URL.Query().Get("pagina"))
		_, _ = w.Write([]byte(`{"radios":[{"uuid":"a","nombre":"A","popularidad":7}],"totalRadios":45,"paginaActual":2,"totalPaginas":3}`))
	})

	page, err := client.Search(context.Background(), catalog.SearchQuery{Genre: "rock", Page: 2})
	require.NoError(t, err)
	assert.True(t, page.Paginated)
	assert.Equal(t, 45, page.Total)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Stations, 1)
	assert.Equal(t, 7, page.Stations[0].Popularity)
}

func TestSearchServerError(t *testing.T) {
	var reported atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	client := catalog.NewClient(catalog.Options{
		BaseURL: srv.URL,
		OnError: func(endpoint string, _ error) {
			assert.Equal(t, "buscar", endpoint)
			reported.Add(1)
		},
	})

	_, err := client.Search(context.Background(), catalog.SearchQuery{})
	var statusErr *catalog.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, int32(1), reported.Load())
}

func TestSearchMalformedPayload(t *testing.T) {
	client := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"radios": "nope"}`))
	})

	_, err := client.Search(context.Background(), catalog.SearchQuery{})
	require.Error(t, err)
}

func TestStation(t *testing.T) {
	client := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/radio/abc":
			_, _ = w.Write([]byte(`{"uuid":"abc","nombre":"Radio ABC","pais":"Argentina","pais_code":"AR","stream_url":"http://s/abc"}`))
		default:
			http.NotFound(w, r)
		}
	})

	st, err := client.Station(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Radio ABC", st.Name)
	assert.Equal(t, "AR", st.CountryCode)

	_, err = client.Station(context.Background(), "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCountriesSortedAndCached(t *testing.T) {
	var calls atomic.Int32
	client := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[{"code":"uy","name":"Uruguay"},{"code":"ar","name":"Argentina"},{"code":"cl","name":"chile"}]`))
	})

	countries, err := client.Countries(context.Background())
	require.NoError(t, err)
	require.Len(t, countries, 3)
	assert.Equal(t, "Argentina", countries[0].Name)
	assert.Equal(t, "chile", countries[1].Name)
	assert.Equal(t, "AR", countries[0].Code)

	_, err = client.Countries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenres(t *testing.T) {
	client := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"rock","stationcount":120},{"name":"jazz","stationcount":30}]`))
	})

	genres, err := client.Genres(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []radio.Genre{{Name: "rock", StationCount: 120}, {Name: "jazz", StationCount: 30}}, genres)
}

func TestRequestIDIsForwarded(t *testing.T) {
	client := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nav-42", r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`[]`))
	})

	ctx := catalog.WithRequestID(context.Background(), "nav-42")
	_, err := client.Search(ctx, catalog.SearchQuery{})
	require.NoError(t, err)
}
