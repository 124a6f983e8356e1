package view_test

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aposazhennikov/radio-directory-web/radio"
	"github.com/aposazhennikov/radio-directory-web/view"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func pageNumbers(p *view.Pagination) []int {
	numbers := make([]int, 0, len(p.Pages))
	for _, l := range p.Pages {
		numbers = append(numbers, l.Number)
	}
	return numbers
}

func TestPaginate(t *testing.T) {
	base, err := url.Parse("/?genero=rock&pagina=4")
	require.NoError(t, err)

	testCases := []struct {
		name     string
		current  int
		total    int
		pages    []int
		prevOff  bool
		nextOff  bool
		activeAt int
	}{
		{"first of ten", 1, 10, []int{1, 2, 3, 4, 5}, true, false, 1},
		{"middle of ten", 5, 10, []int{3, 4, 5, 6, 7}, false, false, 5},
		{"last of ten", 10, 10, []int{6, 7, 8, 9, 10}, false, true, 10},
		{"second of three", 2, 3, []int{1, 2, 3}, false, false, 2},
		{"out of range clamps", 42, 4, []int{1, 2, 3, 4}, false, true, 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := view.Paginate(tc.current, tc.total, base)
			require.NotNil(t, p)
			assert.Equal(t, tc.pages, pageNumbers(p))
			assert.Equal(t, tc.prevOff, p.Prev.Disabled)
			assert.Equal(t, tc.nextOff, p.Next.Disabled)
			for _, l := range p.Pages {
				assert.Equal(t, l.Number == tc.activeAt, l.Active, "page %d", l.Number)
			}
		})
	}
}

func TestPaginateSinglePage(t *testing.T) {
	assert.Nil(t, view.Paginate(1, 1, nil))
	assert.Nil(t, view.Paginate(1, 0, nil))
}

func TestPaginateLinksKeepOtherParams(t *testing.T) {
	base, err := url.Parse("/?genero=rock&pagina=2")
	require.NoError(t, err)

	p := view.Paginate(2, 3, base)
	require.NotNil(t, p)

	next, err := url.Parse(p.Next.URL)
	require.NoError(t, err)
	assert.Equal(t, "/", next.Path)
	assert.Equal(t, "rock", next.Query().Get("genero"))
	assert.Equal(t, "3", next.Query().Get("pagina"))

	prev, err := url.Parse(p.Prev.URL)
	require.NoError(t, err)
	assert.Equal(t, "1", prev.Query().Get("pagina"))
}

func newRenderer(t *testing.T) *view.Renderer {
	t.Helper()
	r, err := view.NewRenderer(view.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

var stations = []radio.Station{
	{UUID: "s1", Name: "Rock FM", Country: "Argentina", Logo: "https://cdn/rock.png"},
	{UUID: "s2", Name: "Jazz AM", Country: "Chile"},
}

func TestListMarksPlayingStation(t *testing.T) {
	r := newRenderer(t)
	playing := stations[0]

	html, err := r.List(view.ListData{
		Title:     "Radios Populares",
		Page:      radio.Page{Stations: stations},
		Playback:  radio.PlaybackState{CurrentPlaying: &playing},
		ReturnURL: "/?filtro=populares",
	})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "Radios Populares")
	assert.Equal(t, 1, strings.Count(out, `class="station-card is-playing"`))
	assert.Contains(t, out, `aria-label="Pausar Rock FM"`)
	assert.Contains(t, out, `aria-label="Reproducir Jazz AM"`)
	assert.Contains(t, out, radio.PlaceholderLogo, "station without logo uses placeholder")
	assert.Contains(t, out, `name="uuid" value="s2"`)
	assert.NotContains(t, out, "Mostrando")
	assert.NotContains(t, out, `class="pagination"`)
}

func TestListPausedStationIsNotMarked(t *testing.T) {
	r := newRenderer(t)
	loaded := stations[0]

	html, err := r.List(view.ListData{
		Page:     radio.Page{Stations: stations},
		Playback: radio.PlaybackState{CurrentPlaying: &loaded, IsPaused: true},
	})
	require.NoError(t, err)
	assert.NotContains(t, string(html), "is-playing")
}

func TestListEmptyStates(t *testing.T) {
	r := newRenderer(t)

	html, err := r.List(view.ListData{Title: `Resultados para: "xyz"`, Query: "xyz"})
	require.NoError(t, err)
	assert.Contains(t, string(html), "No se encontraron resultados para &#34;xyz&#34;.")

	html, err = r.List(view.ListData{Title: "Radios de AR"})
	require.NoError(t, err)
	assert.Contains(t, string(html), "No se encontraron estaciones para esta selección.")
}

func TestEmptyMessage(t *testing.T) {
	assert.Equal(t, `No se encontraron resultados para "xyz".`, view.EmptyMessage("xyz"))
	assert.Equal(t, "No se encontraron estaciones para esta selección.", view.EmptyMessage(""))
}

func TestListCountLineAndPagination(t *testing.T) {
	r := newRenderer(t)
	base, err := url.Parse("/?genero=rock&pagina=2")
	require.NoError(t, err)

	html, err := r.List(view.ListData{
		Title:   "Radios de: Rock",
		Page:    radio.Page{Stations: stations, Total: 45, CurrentPage: 2, TotalPages: 3, Paginated: true},
		BaseURL: base,
	})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "Mostrando 2 de 45 radios en total.")
	assert.Contains(t, out, `class="pagination"`)
	assert.Contains(t, out, `<span class="page-link active" aria-current="page">2</span>`)
}

func TestGenres(t *testing.T) {
	r := newRenderer(t)

	html, err := r.Genres("Buscar por Género", []radio.Genre{{Name: "rock", StationCount: 120}, {Name: "música latina", StationCount: 3}})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "Buscar por Género")
	assert.Contains(t, out, `href="/?genero=rock&amp;pagina=1"`)
	assert.Contains(t, out, "(120)")
	assert.Contains(t, out, "m%C3%BAsica")
}

func TestDetail(t *testing.T) {
	r := newRenderer(t)
	st := radio.Station{UUID: "s9", Name: "Salsa 99", Country: "Colombia", StreamURL: "http://s/99", GenreTags: "salsa, tropical", Popularity: 12}

	html, err := r.Detail(view.DetailData{
		Station:     st,
		Recommended: stations,
		Playback:    radio.PlaybackState{CurrentPlaying: &st},
	})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "<h1>Salsa 99</h1>")
	assert.Contains(t, out, "Escuchar Ahora")
	assert.Contains(t, out, "primary-play-btn is-playing")
	assert.Contains(t, out, "12 votos")
	assert.Contains(t, out, radio.PlaceholderLogo)
	assert.Contains(t, out, `href="/?genero=tropical&amp;pagina=1"`)
	assert.Contains(t, out, "Radios Recomendadas de Colombia")
	assert.Contains(t, out, "Rock FM")
	assert.Contains(t, out, "Volver al listado principal")
	assert.Contains(t, out, `<a href="/nav/back" class="btn-back">`)
}

func TestErrorFragment(t *testing.T) {
	r := newRenderer(t)
	html, err := r.Error(view.ConnectionErrorMessage)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Error al conectar con el servidor de radios.")
}

func TestPageLayout(t *testing.T) {
	r := newRenderer(t)
	body, err := r.Error("boom")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Page(&buf, view.Layout{
		Title: view.DocumentTitle("Radios de Argentina"),
		Nav: view.Nav{
			Countries: []radio.Country{{Code: "AR", Name: "Argentina"}, {Code: "CL", Name: "Chile"}},
			Active:    "AR",
		},
		Player: radio.PlayerBar{Active: true, Playing: true, Name: "Rock FM", Logo: "https://cdn/rock.png"},
		Alert:  "⚠️ algo falló",
		Body:   body,
	}))

	out := buf.String()
	assert.Contains(t, out, "<title>Radios de Argentina - TuRadio.lat</title>")
	assert.Contains(t, out, `<a href="/?pais=AR" class="nav-link active">Argentina</a>`)
	assert.Contains(t, out, `<a href="/?pais=CL" class="nav-link">Chile</a>`)
	assert.Contains(t, out, "⚠️ algo falló")
	assert.Contains(t, out, `class="player-bar active"`)
	assert.Contains(t, out, `src="/listen"`)
	assert.Contains(t, out, "autoplay")
	assert.Contains(t, out, "boom")
}

func TestTemplatesDirOverrideReloads(t *testing.T) {
	dir := t.TempDir()
	write := func(body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "error.html"), []byte(body), 0o600))
	}
	write(`{{define "error"}}first {{.}}{{end}}`)

	r, err := view.NewRenderer(view.Options{TemplatesDir: dir})
	require.NoError(t, err)
	defer r.Close()

	html, err := r.Error("x")
	require.NoError(t, err)
	assert.Equal(t, "first x", string(html))

	write(`{{define "error"}}second {{.}}{{end}}`)
	assert.Eventually(t, func() bool {
		html, err := r.Error("x")
		return err == nil && string(html) == "second x"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestBrokenTemplatesDirFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.html"), []byte(`{{define "error"}}{{.`), 0o600))

	_, err := view.NewRenderer(view.Options{TemplatesDir: dir})
	require.Error(t, err)
}

func TestDocumentTitle(t *testing.T) {
	assert.Equal(t, "Radios Populares - TuRadio.lat", view.DocumentTitle("Radios Populares"))
}
