package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aposazhennikov/radio-directory-web/catalog"
	"github.com/aposazhennikov/radio-directory-web/logger"
	"github.com/aposazhennikov/radio-directory-web/radio"
	sentryhelper "github.com/aposazhennikov/radio-directory-web/sentry_helper"
	"github.com/aposazhennikov/radio-directory-web/view"
)

var (
	// ErrStale is returned for a navigation that finished after a newer one started.
	ErrStale = errors.New("navigation superseded by a newer one")
	// ErrEmptyQuery is returned when a search is submitted without text.
	ErrEmptyQuery = errors.New("search query is empty")
)

// Fetcher is the part of the catalog the navigator reads from.
type Fetcher interface {
	Search(ctx context.Context, q catalog.SearchQuery) (radio.Page, error)
	Station(ctx context.Context, id string) (radio.Station, error)
	Genres(ctx context.Context) ([]radio.Genre, error)
}

// View is a committed navigation: the route plus everything fetched for it.
type View struct {
	Request     ViewRequest
	URL         string
	Title       string
	Page        radio.Page
	Station     *radio.Station
	Recommended []radio.Station
	Genres      []radio.Genre
	// ErrMessage replaces the content when the fetch failed.
	ErrMessage string
}

// DocumentTitle is the browser title of the view.
func (v View) DocumentTitle() string {
	return view.DocumentTitle(v.Title)
}

// Navigator owns the navigation history and commits fetched views into the
// application state. Only the latest navigation may commit.
type Navigator struct {
	fetcher Fetcher
	state   *radio.AppState
	logger  *slog.Logger
	sentry  *sentryhelper.SentryHelper

	mu      sync.Mutex
	history []string
	pos     int
	gen     uint64
	current *View
}

// NewNavigator creates a navigator with an empty history.
func NewNavigator(fetcher Fetcher, state *radio.AppState, log *slog.Logger, sentry *sentryhelper.SentryHelper) *Navigator {
	return &Navigator{
		fetcher: fetcher,
		state:   state,
		logger:  logger.WithComponent(log, "router"),
		sentry:  sentry,
		pos:     -1,
	}
}

// Navigate shows u and pushes it onto the history. Navigating to the URL
// already shown returns the current view without fetching, unless that view
// failed to load.
//
// When a newer navigation commits first, Navigate returns ErrStale together
// with the view it loaded for u; that view is not committed.
func (n *Navigator) Navigate(ctx context.Context, u *url.URL) (View, error) {
	return n.dispatch(ctx, Canonical(u), true)
}

// Back re-shows the previous history entry. At the start of history it
// returns the current view.
func (n *Navigator) Back(ctx context.Context) (View, error) {
	return n.step(ctx, -1)
}

// Forward re-shows the next history entry.
func (n *Navigator) Forward(ctx context.Context) (View, error) {
	return n.step(ctx, 1)
}

// SubmitSearch searches for query on its first page, keeping the country of
// the current view.
func (n *Navigator) SubmitSearch(ctx context.Context, query string) (View, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return View{}, ErrEmptyQuery
	}

	params := url.Values{}
	params.Set("query", query)
	if cur, ok := n.Current(); ok && cur.Request.Country != "" {
		params.Set("pais", cur.Request.Country)
	}
	return n.Navigate(ctx, &url.URL{Path: "/", RawQuery: params.Encode()})
}

// ClearSearch goes back to the popular listing.
func (n *Navigator) ClearSearch(ctx context.Context) (View, error) {
	return n.Navigate(ctx, &url.URL{Path: "/", RawQuery: "filtro=" + ActivePopular})
}

// Current returns the last committed view.
func (n *Navigator) Current() (View, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return View{}, false
	}
	return *n.current, true
}

// CanGoBack reports whether Back would change the view.
func (n *Navigator) CanGoBack() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pos > 0
}

// CanGoForward reports whether Forward would change the view.
func (n *Navigator) CanGoForward() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pos >= 0 && n.pos < len(n.history)-1
}

func (n *Navigator) step(ctx context.Context, delta int) (View, error) {
	n.mu.Lock()
	target := n.pos + delta
	if target < 0 || target >= len(n.history) {
		n.mu.Unlock()
		if cur, ok := n.Current(); ok {
			return cur, nil
		}
		return n.Navigate(ctx, &url.URL{Path: "/"})
	}
	n.pos = target
	canonical := n.history[target]
	n.mu.Unlock()

	return n.dispatch(ctx, canonical, false)
}

func (n *Navigator) dispatch(ctx context.Context, canonical string, push bool) (View, error) {
	n.mu.Lock()
	if n.current != nil && n.current.URL == canonical && n.current.ErrMessage == "" {
		v := *n.current
		n.mu.Unlock()
		return v, nil
	}
	n.gen++
	gen := n.gen
	if push {
		n.history = append(n.history[:n.pos+1], canonical)
		n.pos = len(n.history) - 1
	}
	n.mu.Unlock()

	u, err := url.Parse(canonical)
	if err != nil {
		return View{}, fmt.Errorf("invalid navigation target %q: %w", canonical, err)
	}

	requestID := uuid.NewString()
	ctx = catalog.WithRequestID(ctx, requestID)
	req := Route(u)
	n.sentry.AddBreadcrumb("navigation", canonical, map[string]interface{}{"kind": req.Kind.String()})

	v := n.load(ctx, req)
	v.URL = canonical

	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen {
		staleNavigations.Inc()
		n.logger.Debug("Discarding stale navigation", slog.String("url", canonical), slog.String("request_id", requestID))
		// The view is still returned so the caller can show what it asked for.
		return v, ErrStale
	}

	listing := radio.ListingState{
		Stations:    v.Page.Stations,
		Detail:      v.Station,
		CurrentPage: v.Page.CurrentPage,
		TotalPages:  v.Page.TotalPages,
		CurrentURL:  canonical,
	}
	if v.Station != nil {
		listing.Stations = v.Recommended
	}
	n.state.ReplaceListing(listing)
	n.current = &v

	navigationsTotal.WithLabelValues(req.Kind.String()).Inc()
	n.logger.Info("Navigation committed",
		slog.String("url", canonical),
		slog.String("kind", req.Kind.String()),
		slog.String("request_id", requestID),
		slog.Int("stations", len(listing.Stations)))
	return v, nil
}

func (n *Navigator) load(ctx context.Context, req ViewRequest) View {
	v := View{Request: req, Title: req.Title}

	switch req.Kind {
	case KindDetail:
		st, err := n.fetcher.Station(ctx, req.StationID)
		if err != nil {
			n.failed(req, err)
			v.ErrMessage = view.StationNotFoundMessage
			return v
		}
		v.Station = &st
		v.Title = st.Name

		rec, err := n.fetcher.Search(ctx, catalog.SearchQuery{
			Country:     st.CountryCode,
			Limit:       LimitRecommendations,
			ExcludeUUID: st.UUID,
		})
		if err != nil {
			// The detail stays usable without recommendations.
			n.logger.Warn("Failed to load recommendations", slog.String("station", st.UUID), slog.String("error", err.Error()))
			return v
		}
		v.Recommended = rec.Stations
		return v

	case KindGenres:
		genres, err := n.fetcher.Genres(ctx)
		if err != nil {
			n.failed(req, err)
			v.ErrMessage = view.GenresErrorMessage
			return v
		}
		v.Genres = genres
		return v
	}

	page, err := n.fetcher.Search(ctx, searchQuery(req))
	if err != nil {
		n.failed(req, err)
		v.ErrMessage = view.ConnectionErrorMessage
		return v
	}
	v.Page = page

	// Titles name the country as the catalog spells it.
	if len(page.Stations) > 0 && page.Stations[0].Country != "" {
		switch {
		case req.Kind == KindCountry:
			v.Title = CountryTitle(page.Stations[0].Country)
		case req.Kind == KindSearch && req.Country != "":
			v.Title = SearchTitle(req.Query, page.Stations[0].Country)
		}
	}
	return v
}

func searchQuery(req ViewRequest) catalog.SearchQuery {
	q := catalog.SearchQuery{Limit: LimitList, Page: req.Page}
	switch req.Kind {
	case KindGenre:
		q.Genre = req.Genre
		q.Limit = LimitGenre
	case KindSearch:
		q.Query = req.Query
		q.Country = req.Country
	case KindCountry:
		q.Country = req.Country
		q.Limit = LimitCountry
	}
	return q
}

func (n *Navigator) failed(req ViewRequest, err error) {
	navigationErrors.WithLabelValues(req.Kind.String()).Inc()
	if errors.Is(err, catalog.ErrNotFound) {
		n.logger.Info("Station not found", slog.String("station", req.StationID))
		return
	}
	n.logger.Error("Failed to load view", slog.String("kind", req.Kind.String()), slog.String("error", err.Error()))
	n.sentry.CaptureError(err, "router", req.Kind.String())
}
