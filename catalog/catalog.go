// Package catalog is the client of the remote radio directory API.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"

	"github.com/aposazhennikov/radio-directory-web/logger"
	"github.com/aposazhennikov/radio-directory-web/radio"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultCacheTTL  = 10 * time.Minute
	indexCacheSize   = 4
	maxErrorBodySize = 512

	countriesKey = "paises"
	genresKey    = "generos"
)

// ErrNotFound is returned when the API has no such station.
var ErrNotFound = errors.New("station not found")

// StatusError is returned for any other non-OK answer.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s answered %d: %s", e.Endpoint, e.Code, e.Body)
}

// SearchQuery maps to the query string of GET /radio/buscar.
type SearchQuery struct {
	Query       string
	Country     string
	Genre       string
	Limit       int
	Page        int
	ExcludeUUID string
}

// Values encodes the query. Empty fields are omitted.
func (q SearchQuery) Values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limite", strconv.Itoa(q.Limit))
	}
	if q.Query != "" {
		v.Set("query", q.Query)
	}
	if q.Country != "" {
		v.Set("pais", q.Country)
	}
	if q.Genre != "" {
		v.Set("genero", q.Genre)
	}
	if q.Page > 0 {
		v.Set("pagina", strconv.Itoa(q.Page))
	}
	if q.ExcludeUUID != "" {
		v.Set("excludeUuid", q.ExcludeUUID)
	}
	return v
}

// Options configure a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	Logger     *slog.Logger
	// OnError is called for every failed call with the endpoint name.
	OnError func(endpoint string, err error)
}

// Client talks to the radio API. Country and genre indexes are cached.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	cache   gcache.Cache
	onError func(string, error)
}

// NewClient creates a new API client.
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		logger:  logger.WithComponent(opts.Logger, "catalog"),
		cache:   gcache.New(indexCacheSize).LRU().Expiration(opts.CacheTTL).Build(),
		onError: opts.OnError,
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id that is forwarded as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Countries returns the country index ordered by name.
func (c *Client) Countries(ctx context.Context) ([]radio.Country, error) {
	if cached, err := c.cache.Get(countriesKey); err == nil {
		return cached.([]radio.Country), nil
	}

	var countries []radio.Country
	if err := c.getJSON(ctx, "paises", "/radio/paises", nil, &countries); err != nil {
		return nil, err
	}
	sort.SliceStable(countries, func(i, j int) bool {
		return strings.ToLower(countries[i].Name) < strings.ToLower(countries[j].Name)
	})
	for i := range countries {
		countries[i].Code = strings.ToUpper(countries[i].Code)
	}

	_ = c.cache.Set(countriesKey, countries)
	return countries, nil
}

// Genres returns the genre index.
func (c *Client) Genres(ctx context.Context) ([]radio.Genre, error) {
	if cached, err := c.cache.Get(genresKey); err == nil {
		return cached.([]radio.Genre), nil
	}

	var genres []radio.Genre
	if err := c.getJSON(ctx, "generos", "/radio/generos", nil, &genres); err != nil {
		return nil, err
	}

	_ = c.cache.Set(genresKey, genres)
	return genres, nil
}

// Search runs GET /radio/buscar. Both the bare-list and the paginated
// envelope answers are accepted.
func (c *Client) Search(ctx context.Context, q SearchQuery) (radio.Page, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "buscar", "/radio/buscar", q.Values(), &raw); err != nil {
		return radio.Page{}, err
	}

	page, err := decodePage(raw)
	if err != nil {
		c.fail("buscar", err)
		return radio.Page{}, err
	}
	if !page.Paginated {
		page.CurrentPage = 1
		page.TotalPages = 1
		page.Total = len(page.Stations)
	}
	return page, nil
}

type envelope struct {
	Stations    []radio.Station `json:"radios"`
	Total       int             `json:"totalRadios"`
	CurrentPage int             `json:"paginaActual"`
	TotalPages  int             `json:"totalPaginas"`
}

func decodePage(raw json.RawMessage) (radio.Page, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return radio.Page{}, nil
	}

	if trimmed[0] == '[' {
		var stations []radio.Station
		if err := json.Unmarshal(trimmed, &stations); err != nil {
			return radio.Page{}, fmt.Errorf("failed to decode station list: %w", err)
		}
		return radio.Page{Stations: stations}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return radio.Page{}, fmt.Errorf("failed to decode station page: %w", err)
	}
	return radio.Page{
		Stations:    env.Stations,
		Total:       env.Total,
		CurrentPage: env.CurrentPage,
		TotalPages:  env.TotalPages,
		Paginated:   true,
	}, nil
}

// Station fetches one station by uuid.
func (c *Client) Station(ctx context.Context, id string) (radio.Station, error) {
	var st radio.Station
	err := c.getJSON(ctx, "radio", "/radio/"+url.PathEscape(id), nil, &st)
	if err != nil {
		return radio.Station{}, err
	}
	if st.UUID == "" {
		return radio.Station{}, ErrNotFound
	}
	return st, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, out interface{}) error {
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		c.fail(endpoint, err)
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.fail(endpoint, err)
		logger.LogNetworkEvent(c.logger, slog.LevelWarn, "API request failed", endpoint, requestID,
			slog.String("error", err.Error()))
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	logger.LogNetworkEvent(c.logger, slog.LevelDebug, "API request completed", endpoint, requestID,
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(started)))

	if resp.StatusCode == http.StatusNotFound && endpoint == "radio" {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		statusErr := &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		c.fail(endpoint, statusErr)
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		decodeErr := fmt.Errorf("failed to decode %s response: %w", endpoint, err)
		c.fail(endpoint, decodeErr)
		return decodeErr
	}
	return nil
}

func (c *Client) fail(endpoint string, err error) {
	if c.onError != nil {
		c.onError(endpoint, err)
	}
}
