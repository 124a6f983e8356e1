// Package radio defines the station directory model shared by the catalog
// client, the player and the renderer.
package radio

import (
	"strings"

	"github.com/samber/lo"
)

// PlaceholderLogo is served whenever a station has no usable logo.
const PlaceholderLogo = "/static/images/placeholder-radio.svg"

// Station is a directory entry as returned by the remote API.
type Station struct {
	UUID        string `json:"uuid"`
	Name        string `json:"nombre"`
	Country     string `json:"pais"`
	CountryCode string `json:"pais_code"`
	StreamURL   string `json:"stream_url"`
	Logo        string `json:"logo"`
	GenreTags   string `json:"generos"`
	Popularity  int    `json:"popularidad"`
}

// Genres splits the comma-joined genre string. A missing string yields no genres.
func (s Station) Genres() []string {
	parts := lo.Map(strings.Split(s.GenreTags, ","), func(g string, _ int) string {
		return strings.TrimSpace(g)
	})
	return lo.Compact(parts)
}

// DisplayLogo returns the station logo or the placeholder.
func (s Station) DisplayLogo() string {
	if s.Logo == "" {
		return PlaceholderLogo
	}
	return s.Logo
}

// NeedsBetterLogo reports whether a fallback logo lookup is worth trying.
func (s Station) NeedsBetterLogo() bool {
	return s.Logo == "" || s.Logo == PlaceholderLogo
}

// Country is an entry of the country index.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Genre is an entry of the genre index.
type Genre struct {
	Name         string `json:"name"`
	StationCount int    `json:"stationcount"`
}

// Page is one page of search results.
type Page struct {
	Stations    []Station
	Total       int
	CurrentPage int
	TotalPages  int
	// Paginated is false when the API answered with a bare list.
	Paginated bool
}
