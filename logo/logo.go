// Package logo looks up better station logos in a public radio directory.
package logo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"

	"github.com/aposazhennikov/radio-directory-web/logger"
)

const (
	DefaultLookupURL = "https://de1.api.radio-browser.info/json"

	defaultTimeout  = 5 * time.Second
	defaultCacheTTL = 6 * time.Hour
	cacheSize       = 2048
)

type lookupEntry struct {
	Favicon string `json:"favicon"`
}

// Options configure a Resolver.
type Options struct {
	LookupURL  string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	Logger     *slog.Logger
}

// Resolver finds a logo for a station id. Misses are cached as well as hits,
// so a station without a logo costs one lookup per TTL.
type Resolver struct {
	lookupURL string
	http      *http.Client
	cache     gcache.Cache
	logger    *slog.Logger
}

// NewResolver creates a resolver.
func NewResolver(opts Options) *Resolver {
	if opts.LookupURL == "" {
		opts.LookupURL = DefaultLookupURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &Resolver{
		lookupURL: strings.TrimRight(opts.LookupURL, "/"),
		http:      opts.HTTPClient,
		cache:     gcache.New(cacheSize).LRU().Expiration(opts.CacheTTL).Build(),
		logger:    logger.WithComponent(opts.Logger, "logo"),
	}
}

// ResolveBetterLogo returns the first non-empty favicon found for the station.
// Any failure is reported as "no better logo".
func (r *Resolver) ResolveBetterLogo(ctx context.Context, stationID string) (string, bool) {
	if stationID == "" {
		return "", false
	}
	if cached, err := r.cache.Get(stationID); err == nil {
		logoURL := cached.(string)
		return logoURL, logoURL != ""
	}

	logoURL, cacheable := r.lookup(ctx, stationID)
	if cacheable {
		_ = r.cache.Set(stationID, logoURL)
	}
	return logoURL, logoURL != ""
}

// lookup returns the favicon and whether the answer is definitive enough to cache.
func (r *Resolver) lookup(ctx context.Context, stationID string) (string, bool) {
	q := url.Values{}
	q.Set("limit", "1")
	q.Set("byuuid", stationID)
	target := r.lookupURL + "/stations/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		r.logger.Debug("Logo lookup failed", slog.String("station", stationID), slog.String("error", err.Error()))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Debug("Logo lookup answered non-OK", slog.String("station", stationID), slog.Int("status", resp.StatusCode))
		return "", resp.StatusCode == http.StatusNotFound
	}

	var entries []lookupEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		r.logger.Debug("Logo lookup returned malformed payload", slog.String("station", stationID), slog.String("error", err.Error()))
		return "", false
	}

	for _, e := range entries {
		if favicon := strings.TrimSpace(e.Favicon); favicon != "" {
			return favicon, true
		}
	}
	return "", true
}
