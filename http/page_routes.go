package http

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aposazhennikov/radio-directory-web/router"
	"github.com/aposazhennikov/radio-directory-web/view"
)

func (s *Server) setupPageRoutes() {
	s.router.HandleFunc("/", s.pageHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/index.html", s.pageHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/nav/back", s.historyHandler(-1)).Methods(http.MethodGet)
	s.router.HandleFunc("/nav/forward", s.historyHandler(1)).Methods(http.MethodGet)
	s.router.HandleFunc("/search", s.searchHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/search/clear", s.clearSearchHandler).Methods(http.MethodPost)
}

// pageHandler routes the request URL and renders the resulting view.
func (s *Server) pageHandler(w http.ResponseWriter, r *http.Request) {
	v, err := s.navigator.Navigate(r.Context(), r.URL)
	if err != nil && !errors.Is(err, router.ErrStale) {
		s.logger.Error("Navigation failed", slog.String("url", r.URL.String()), slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	// A stale view still belongs to this URL; it is rendered without being committed.
	s.renderView(w, r, v)
}

func (s *Server) historyHandler(delta int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step := s.navigator.Back
		if delta > 0 {
			step = s.navigator.Forward
		}
		v, err := step(r.Context())
		if err != nil && !errors.Is(err, router.ErrStale) {
			s.logger.Error("History navigation failed", slog.Int("delta", delta), slog.String("error", err.Error()))
		}
		s.redirectToView(w, r, v)
	}
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	v, err := s.navigator.SubmitSearch(r.Context(), r.PostFormValue("query"))
	switch {
	case errors.Is(err, router.ErrEmptyQuery):
		// Nothing to search; stay where we are.
		v, _ = s.navigator.Current()
	case err != nil && !errors.Is(err, router.ErrStale):
		s.logger.Error("Search failed", slog.String("error", err.Error()))
	}
	s.redirectToView(w, r, v)
}

func (s *Server) clearSearchHandler(w http.ResponseWriter, r *http.Request) {
	v, err := s.navigator.ClearSearch(r.Context())
	if err != nil && !errors.Is(err, router.ErrStale) {
		s.logger.Error("Clearing search failed", slog.String("error", err.Error()))
	}
	s.redirectToView(w, r, v)
}

// redirectToView sends the browser to the URL of a view. The follow-up GET
// finds it already current and renders it without refetching.
func (s *Server) redirectToView(w http.ResponseWriter, r *http.Request, v router.View) {
	target := v.URL
	if target == "" {
		if current, ok := s.navigator.Current(); ok {
			target = current.URL
		}
	}
	http.Redirect(w, r, safeReturn(target), http.StatusSeeOther)
}

func (s *Server) renderView(w http.ResponseWriter, r *http.Request, v router.View) {
	body, err := s.viewBody(v)
	if err != nil {
		s.logger.Error("Failed to render view", slog.String("url", v.URL), slog.String("error", err.Error()))
		s.sentry.CaptureError(err, "http", "render")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	pageRenders.WithLabelValues(v.Request.Kind.String()).Inc()

	if v.Request.Kind == router.KindDetail && v.ErrMessage == "" {
		s.player.Minimize()
	}

	s.writePage(w, r, http.StatusOK, view.Layout{
		Title:     v.DocumentTitle(),
		Nav:       s.nav(r.Context(), v.Request),
		Player:    s.state.PlayerBar(),
		Alert:     s.state.TakeAlert(),
		ReturnURL: v.URL,
		Body:      body,
	})
}

func (s *Server) viewBody(v router.View) (template.HTML, error) {
	playback := s.state.Playback()
	switch {
	case v.ErrMessage != "":
		return s.renderer.Error(v.ErrMessage)
	case v.Request.Kind == router.KindGenres:
		return s.renderer.Genres(v.Title, v.Genres)
	case v.Request.Kind == router.KindDetail && v.Station != nil:
		return s.renderer.Detail(view.DetailData{
			Station:     *v.Station,
			Recommended: v.Recommended,
			Playback:    playback,
			ReturnURL:   v.URL,
		})
	}

	base, err := url.Parse(v.URL)
	if err != nil {
		base = &url.URL{Path: "/"}
	}
	return s.renderer.List(view.ListData{
		Title:     v.Title,
		Query:     v.Request.Query,
		Page:      v.Page,
		Playback:  playback,
		BaseURL:   base,
		ReturnURL: v.URL,
	})
}

// nav builds the navigation bar. A failed country list degrades the menu
// instead of failing the page.
func (s *Server) nav(ctx context.Context, req router.ViewRequest) view.Nav {
	nav := view.Nav{
		Active:       req.Active,
		Query:        req.Query,
		CanGoBack:    s.navigator.CanGoBack(),
		CanGoForward: s.navigator.CanGoForward(),
	}
	countries, err := s.countries.Countries(ctx)
	if err != nil {
		s.logger.Warn("Failed to load countries", slog.String("error", err.Error()))
		nav.CountriesFailed = true
		return nav
	}
	nav.Countries = countries
	return nav
}
