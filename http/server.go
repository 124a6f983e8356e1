// Package http serves the directory pages, the player controls and the
// shared audio stream.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aposazhennikov/radio-directory-web/audio"
	"github.com/aposazhennikov/radio-directory-web/logger"
	"github.com/aposazhennikov/radio-directory-web/player"
	"github.com/aposazhennikov/radio-directory-web/radio"
	"github.com/aposazhennikov/radio-directory-web/relay"
	"github.com/aposazhennikov/radio-directory-web/router"
	sentryhelper "github.com/aposazhennikov/radio-directory-web/sentry_helper"
	"github.com/aposazhennikov/radio-directory-web/view"
)

const (
	defaultPlayTimeout = 30 * time.Second
	defaultStaticDir   = "./static"
	listenRoute        = "/listen"
)

var (
	listenerCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "radio_listener_count",
			Help: "Number of connected listeners",
		},
	)

	bytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_stream_bytes_sent_total",
			Help: "Total number of bytes sent to listeners",
		},
	)

	fanoutBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_stream_fanout_bytes_total",
			Help: "Bytes handed to listener queues by the audio output",
		},
	)

	apiErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_api_errors_total",
			Help: "Failed radio API calls by endpoint",
		},
		[]string{"endpoint"},
	)

	pageRenders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_page_renders_total",
			Help: "Rendered pages by view kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(listenerCount)
	prometheus.MustRegister(bytesSent)
	prometheus.MustRegister(fanoutBytes)
	prometheus.MustRegister(apiErrors)
	prometheus.MustRegister(pageRenders)
}

// CountAPIError records a failed radio API call.
func CountAPIError(endpoint string, _ error) {
	apiErrors.WithLabelValues(endpoint).Inc()
}

// CountFanoutBytes records bytes queued for listeners.
func CountFanoutBytes(n int) {
	fanoutBytes.Add(float64(n))
}

// StreamHandler is the shared audio output as seen by listeners.
type StreamHandler interface {
	AddClient() (<-chan []byte, int, error)
	RemoveClient(clientID int)
	GetClientCount() int
	ContentType() string
}

// PlayerController is the playback controller.
type PlayerController interface {
	PlayOrPause(ctx context.Context, stationID string) error
	Toggle(ctx context.Context) error
	Stop()
	ToggleExpanded()
	Expand()
	Minimize()
	HandleEvent(ctx context.Context, event audio.Event) error
	Phase() player.Phase
}

// Navigator resolves page URLs into views.
type Navigator interface {
	Navigate(ctx context.Context, u *url.URL) (router.View, error)
	Back(ctx context.Context) (router.View, error)
	Forward(ctx context.Context) (router.View, error)
	SubmitSearch(ctx context.Context, query string) (router.View, error)
	ClearSearch(ctx context.Context) (router.View, error)
	Current() (router.View, bool)
	CanGoBack() bool
	CanGoForward() bool
}

// CountryLister provides the navigation country menu.
type CountryLister interface {
	Countries(ctx context.Context) ([]radio.Country, error)
}

// Options configure a Server.
type Options struct {
	State     *radio.AppState
	Player    PlayerController
	Navigator Navigator
	Countries CountryLister
	Renderer  *view.Renderer
	Stream    StreamHandler
	StaticDir string
	// PlayTimeout bounds a play request, delay and fallback included.
	PlayTimeout time.Duration
	Logger      *slog.Logger
	Sentry      *sentryhelper.SentryHelper
}

// Server is the HTTP front end.
type Server struct {
	router      *mux.Router
	state       *radio.AppState
	player      PlayerController
	navigator   Navigator
	countries   CountryLister
	renderer    *view.Renderer
	stream      StreamHandler
	staticDir   string
	playTimeout time.Duration
	logger      *slog.Logger
	sentry      *sentryhelper.SentryHelper
}

// NewServer creates the server and its routes.
func NewServer(opts Options) *Server {
	if opts.StaticDir == "" {
		opts.StaticDir = defaultStaticDir
	}
	if opts.PlayTimeout <= 0 {
		opts.PlayTimeout = defaultPlayTimeout
	}
	s := &Server{
		router:      mux.NewRouter(),
		state:       opts.State,
		player:      opts.Player,
		navigator:   opts.Navigator,
		countries:   opts.Countries,
		renderer:    opts.Renderer,
		stream:      opts.Stream,
		staticDir:   opts.StaticDir,
		playTimeout: opts.PlayTimeout,
		logger:      logger.WithComponent(opts.Logger, "http"),
		sentry:      opts.Sentry,
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.readyzHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.setupPageRoutes()
	s.setupPlayerRoutes()

	s.router.HandleFunc(listenRoute, s.listenHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/paises", s.countriesHandler).Methods(http.MethodGet)

	s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))

	s.router.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Ready - %d listeners, player %s", s.stream.GetClientCount(), s.player.Phase())
}

// countriesHandler returns the country index as JSON.
func (s *Server) countriesHandler(w http.ResponseWriter, r *http.Request) {
	countries, err := s.countries.Countries(r.Context())
	if err != nil {
		s.logger.Error("Failed to load countries", slog.String("error", err.Error()))
		s.sentry.CaptureError(err, "http", "countries")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": view.ConnectionErrorMessage})
		return
	}
	writeJSON(w, http.StatusOK, countries)
}

// listenHandler relays the shared audio output to one listener.
func (s *Server) listenHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("Streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	clientCh, clientID, err := s.stream.AddClient()
	if err != nil {
		s.logger.Warn("Listener rejected", slog.String("remote_addr", r.RemoteAddr), slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.stream.RemoveClient(clientID)

	relay.SetListenerHeaders(w, s.stream.ContentType())
	// Headers go out immediately so the audio element starts waiting for data.
	flusher.Flush()

	listenerCount.Inc()
	defer listenerCount.Dec()

	remoteAddr := r.RemoteAddr
	s.logger.Info("Listener connected", slog.String("remote_addr", remoteAddr), slog.Int("client_id", clientID))

	var totalBytesSent int64
	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("Listener disconnected",
				slog.Int("client_id", clientID),
				slog.Int64("bytes_sent", totalBytesSent))
			return
		case data, ok := <-clientCh:
			if !ok {
				return
			}
			n, err := w.Write(data)
			if err != nil {
				if relay.IsConnectionClosedError(err) {
					s.logger.Info("Listener went away", slog.Int("client_id", clientID), slog.String("error", err.Error()))
				} else {
					s.logger.Error("Failed to write to listener", slog.Int("client_id", clientID), slog.String("error", err.Error()))
					s.sentry.CaptureError(fmt.Errorf("failed to write to listener %d: %w", clientID, err), "http", "listen")
				}
				return
			}
			totalBytesSent += int64(n)
			bytesSent.Add(float64(n))
			flusher.Flush()
		}
	}
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Not found", slog.String("path", r.URL.Path))
	body, err := s.renderer.Error("Página no encontrada.")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.writePage(w, r, http.StatusNotFound, view.Layout{
		Title:     view.DocumentTitle("Página no encontrada"),
		Nav:       s.nav(r.Context(), router.ViewRequest{}),
		Player:    s.state.PlayerBar(),
		ReturnURL: "/",
		Body:      body,
	})
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, status int, page view.Layout) {
	var buf strings.Builder
	if err := s.renderer.Page(&buf, page); err != nil {
		s.logger.Error("Failed to render page", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		s.sentry.CaptureError(err, "http", "render")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// wantsJSON reports whether the caller is a script rather than a form post.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// safeReturn keeps redirects on this site.
func safeReturn(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	return raw
}

func isSuperseded(err error) bool {
	return errors.Is(err, player.ErrSuperseded) || errors.Is(err, router.ErrStale)
}
