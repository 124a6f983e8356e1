// Package router maps page URLs to views and drives navigation.
package router

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aposazhennikov/radio-directory-web/view"
)

// Kind selects which view a URL shows.
type Kind int

const (
	KindPopular Kind = iota
	KindDetail
	KindGenre
	KindGenres
	KindSearch
	KindCountry
)

func (k Kind) String() string {
	switch k {
	case KindPopular:
		return "popular"
	case KindDetail:
		return "detail"
	case KindGenre:
		return "genre"
	case KindGenres:
		return "genres"
	case KindSearch:
		return "search"
	case KindCountry:
		return "country"
	default:
		return "unknown"
	}
}

// Navigation tokens marking the active menu entry. Country listings use the
// country code itself.
const (
	ActivePopular = "populares"
	ActiveSearch  = "search"
	ActiveGenres  = "generos"
)

// Fetch limits per view.
const (
	LimitList            = 100
	LimitCountry         = 200
	LimitGenre           = 200
	LimitRecommendations = 10
)

// ViewRequest is what a URL asks for.
type ViewRequest struct {
	Kind      Kind
	StationID string
	Genre     string
	Query     string
	Country   string
	Page      int
	Title     string
	Active    string
}

// DocumentTitle is the browser title for the request.
func (v ViewRequest) DocumentTitle() string {
	return view.DocumentTitle(v.Title)
}

// Route decides the view for u. Precedence: radio, genero, filtro=generos
// (without query or pais), query (optionally within pais), pais, populares.
func Route(u *url.URL) ViewRequest {
	params := u.Query()
	get := func(key string) string {
		return strings.TrimSpace(params.Get(key))
	}

	req := ViewRequest{Page: parsePage(get("pagina"))}
	query, country, genre := get("query"), get("pais"), get("genero")

	switch {
	case get("radio") != "":
		req.Kind = KindDetail
		req.StationID = get("radio")
		req.Title = "Sintonizando"

	case genre != "":
		req.Kind = KindGenre
		req.Genre = genre
		req.Title = GenreTitle(genre)
		req.Active = ActiveGenres

	case get("filtro") == ActiveGenres && query == "" && country == "":
		req.Kind = KindGenres
		req.Title = "Buscar por Género"
		req.Active = ActiveGenres

	case query != "":
		req.Kind = KindSearch
		req.Query = query
		req.Country = country
		req.Title = SearchTitle(query, country)
		req.Active = ActiveSearch
		if country != "" {
			req.Active = country
		}

	case country != "":
		req.Kind = KindCountry
		req.Country = country
		req.Title = CountryTitle(country)
		req.Active = country

	default:
		req.Kind = KindPopular
		req.Title = "Radios Populares"
		req.Active = ActivePopular
	}

	return req
}

// GenreTitle is the title of a genre listing, first letter capitalized.
func GenreTitle(genre string) string {
	r, size := utf8.DecodeRuneInString(genre)
	if r == utf8.RuneError {
		return "Radios de: " + genre
	}
	return "Radios de: " + string(unicode.ToUpper(r)) + genre[size:]
}

// SearchTitle is the title of a search, scoped to a country when given.
func SearchTitle(query, country string) string {
	title := fmt.Sprintf("Resultados para: \"%s\"", query)
	if country != "" {
		title += " en " + country
	}
	return title
}

// CountryTitle is the title of a country listing.
func CountryTitle(country string) string {
	return "Radios de " + country
}

func parsePage(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Canonical returns the comparable form of a page URL: path plus sorted query.
func Canonical(u *url.URL) string {
	path := u.Path
	if path == "" || path == "/index.html" {
		path = "/"
	}
	if q := u.Query().Encode(); q != "" {
		return path + "?" + q
	}
	return path
}
