// Package view renders the directory pages with html/template.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"

	"github.com/aposazhennikov/radio-directory-web/logger"
	"github.com/aposazhennikov/radio-directory-web/radio"
	sentryhelper "github.com/aposazhennikov/radio-directory-web/sentry_helper"
)

//go:embed templates/*.html
var embedded embed.FS

const (
	// SiteName is appended to every document title.
	SiteName = "TuRadio.lat"

	// ConnectionErrorMessage is shown when the catalog cannot be reached.
	ConnectionErrorMessage = "Error al conectar con el servidor de radios."
	// GenresErrorMessage is shown when the genre list cannot be loaded.
	GenresErrorMessage = "Error al cargar los géneros."
	// StationNotFoundMessage is shown for an unknown or unreachable station.
	StationNotFoundMessage = "No se encontró la estación solicitada."

	paginationWindow = 5
)

// Options configure a Renderer.
type Options struct {
	// TemplatesDir replaces the embedded templates and is watched for changes.
	TemplatesDir string
	Logger       *slog.Logger
	Sentry       *sentryhelper.SentryHelper
}

// Renderer holds the parsed templates. With a templates directory configured
// it reparses them whenever a file there changes.
type Renderer struct {
	mu      sync.RWMutex
	tmpl    *template.Template
	dir     string
	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *slog.Logger
	sentry  *sentryhelper.SentryHelper
}

// NewRenderer parses the templates and, for a templates directory, starts
// watching it.
func NewRenderer(opts Options) (*Renderer, error) {
	r := &Renderer{
		dir:    opts.TemplatesDir,
		logger: logger.WithComponent(opts.Logger, "view"),
		sentry: opts.Sentry,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	if r.dir == "" {
		return r, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create template watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}
	r.watcher = watcher
	r.done = make(chan struct{})
	go r.watchTemplates()

	return r, nil
}

// Close stops watching the templates directory.
func (r *Renderer) Close() error {
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.Close()
	<-r.done
	return err
}

// Reload reparses the templates. On error the previous set stays in use.
func (r *Renderer) Reload() error {
	var source fs.FS = embedded
	pattern := "templates/*.html"
	if r.dir != "" {
		source = os.DirFS(r.dir)
		pattern = "*.html"
	}

	tmpl, err := template.New("").Funcs(funcs).ParseFS(source, pattern)
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	r.mu.Lock()
	r.tmpl = tmpl
	r.mu.Unlock()
	return nil
}

func (r *Renderer) watchTemplates() {
	defer close(r.done)
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".html" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("Failed to reload templates", slog.String("file", event.Name), slog.String("error", err.Error()))
				r.sentry.CaptureError(err, "view", "reload")
				continue
			}
			r.logger.Info("Templates reloaded", slog.String("file", event.Name))

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("Template watcher error", slog.String("error", err.Error()))
			r.sentry.CaptureError(fmt.Errorf("fsnotify error: %w", err), "view", "watch")
		}
	}
}

func (r *Renderer) fragment(name string, data interface{}) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.execute(&buf, name, data); err != nil {
		return "", err
	}
	// Already escaped by html/template.
	return template.HTML(buf.String()), nil
}

func (r *Renderer) execute(w io.Writer, name string, data interface{}) error {
	r.mu.RLock()
	tmpl := r.tmpl
	r.mu.RUnlock()
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	return nil
}

var funcs = template.FuncMap{
	"placeholder": func() string { return radio.PlaceholderLogo },
	"genreURL":    GenreURL,
	"stationURL":  StationURL,
	"countryURL":  CountryURL,
}

// StationURL is the detail page of a station.
func StationURL(id string) string {
	return "/?radio=" + url.QueryEscape(id)
}

// GenreURL is the first page of a genre listing.
func GenreURL(name string) string {
	return "/?genero=" + url.QueryEscape(name) + "&pagina=1"
}

// CountryURL is the listing of a country.
func CountryURL(code string) string {
	return "/?pais=" + url.QueryEscape(code)
}

// Card is one station in a grid.
type Card struct {
	UUID      string
	Name      string
	Country   string
	Logo      string
	DetailURL string
	Playing   bool
	// ReturnURL is where the play control sends the browser back to.
	ReturnURL string
}

func cards(stations []radio.Station, playback radio.PlaybackState, returnURL string) []Card {
	return lo.Map(stations, func(st radio.Station, _ int) Card {
		return Card{
			UUID:      st.UUID,
			Name:      st.Name,
			Country:   st.Country,
			Logo:      st.DisplayLogo(),
			DetailURL: StationURL(st.UUID),
			Playing:   playback.IsPlaying(st.UUID),
			ReturnURL: returnURL,
		}
	})
}

// PageLink is one pagination control.
type PageLink struct {
	Number   int
	URL      string
	Active   bool
	Disabled bool
}

// Pagination is the page window plus previous and next controls.
type Pagination struct {
	Prev  PageLink
	Next  PageLink
	Pages []PageLink
}

// Paginate builds the page window around current. It returns nil when there
// is at most one page. Links keep every parameter of base except pagina.
func Paginate(current, total int, base *url.URL) *Pagination {
	if total <= 1 {
		return nil
	}
	current = lo.Clamp(current, 1, total)

	start := max(1, current-paginationWindow/2)
	end := min(total, start+paginationWindow-1)
	start = max(1, end-paginationWindow+1)

	link := func(n int) string {
		u := url.URL{Path: "/"}
		if base != nil {
			u = *base
			if u.Path == "" {
				u.Path = "/"
			}
		}
		q := u.Query()
		q.Set("pagina", strconv.Itoa(n))
		u.RawQuery = q.Encode()
		u.Scheme, u.Host = "", ""
		return u.RequestURI()
	}

	p := &Pagination{
		Prev: PageLink{Number: current - 1, Disabled: current <= 1},
		Next: PageLink{Number: current + 1, Disabled: current >= total},
	}
	if !p.Prev.Disabled {
		p.Prev.URL = link(current - 1)
	}
	if !p.Next.Disabled {
		p.Next.URL = link(current + 1)
	}
	for n := start; n <= end; n++ {
		p.Pages = append(p.Pages, PageLink{Number: n, URL: link(n), Active: n == current})
	}
	return p
}

// ListData is the input of a station listing.
type ListData struct {
	Title    string
	Query    string
	Page     radio.Page
	Playback radio.PlaybackState
	// BaseURL is the URL of the listing, used for pagination links.
	BaseURL *url.URL
	// ReturnURL is where play controls send the browser back to.
	ReturnURL string
}

type listModel struct {
	Title      string
	Empty      string
	Cards      []Card
	CountLine  string
	Pagination *Pagination
	ReturnURL  string
}

// List renders a station listing.
func (r *Renderer) List(data ListData) (template.HTML, error) {
	m := listModel{
		Title:     data.Title,
		Cards:     cards(data.Page.Stations, data.Playback, data.ReturnURL),
		ReturnURL: data.ReturnURL,
	}
	if len(m.Cards) == 0 {
		m.Empty = EmptyMessage(data.Query)
	}
	if data.Page.Paginated {
		m.CountLine = fmt.Sprintf("Mostrando %d de %d radios en total.", len(data.Page.Stations), data.Page.Total)
		m.Pagination = Paginate(data.Page.CurrentPage, data.Page.TotalPages, data.BaseURL)
	}
	return r.fragment("list", m)
}

// EmptyMessage is the text of a listing without stations.
func EmptyMessage(query string) string {
	if strings.TrimSpace(query) != "" {
		return fmt.Sprintf(`No se encontraron resultados para "%s".`, query)
	}
	return "No se encontraron estaciones para esta selección."
}

// Genres renders the genre tag cloud.
func (r *Renderer) Genres(title string, genres []radio.Genre) (template.HTML, error) {
	return r.fragment("genres", struct {
		Title  string
		Genres []radio.Genre
	}{title, genres})
}

// DetailData is the input of a station detail page.
type DetailData struct {
	Station     radio.Station
	Recommended []radio.Station
	Playback    radio.PlaybackState
	ReturnURL   string
}

type detailModel struct {
	Station     radio.Station
	Logo        string
	Genres      []string
	Playing     bool
	Recommended []Card
	ReturnURL   string
}

// Detail renders the detail page of a station with its recommendations.
func (r *Renderer) Detail(data DetailData) (template.HTML, error) {
	return r.fragment("detail", detailModel{
		Station:     data.Station,
		Logo:        data.Station.DisplayLogo(),
		Genres:      data.Station.Genres(),
		Playing:     data.Playback.IsPlaying(data.Station.UUID),
		Recommended: cards(data.Recommended, data.Playback, data.ReturnURL),
		ReturnURL:   data.ReturnURL,
	})
}

// Error renders an inline error message.
func (r *Renderer) Error(message string) (template.HTML, error) {
	return r.fragment("error", message)
}

// Nav is the navigation bar model.
type Nav struct {
	Countries []radio.Country
	// Active is populares, search, generos or a country code.
	Active string
	Query  string
	// CountriesFailed replaces the country menu with an error entry.
	CountriesFailed bool
	CanGoBack       bool
	CanGoForward    bool
}

// Layout is the full page.
type Layout struct {
	Title     string
	Nav       Nav
	Player    radio.PlayerBar
	Alert     string
	ReturnURL string
	Body      template.HTML
}

// DocumentTitle appends the site name to a page title.
func DocumentTitle(title string) string {
	return title + " - " + SiteName
}

// Page writes the full page.
func (r *Renderer) Page(w io.Writer, page Layout) error {
	return r.execute(w, "layout", page)
}
