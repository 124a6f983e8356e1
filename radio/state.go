package radio

import (
	"strings"
	"sync"

	"github.com/samber/lo"
)

// PlaybackState tracks the station loaded into the audio output.
// IsPaused is only meaningful while CurrentPlaying is set.
type PlaybackState struct {
	CurrentPlaying *Station
	IsPaused       bool
}

// IsPlaying reports whether the given station is loaded and not paused.
func (p PlaybackState) IsPlaying(stationID string) bool {
	return p.CurrentPlaying != nil && !p.IsPaused && p.CurrentPlaying.UUID == stationID
}

// IsLoaded reports whether the given station is the loaded one, paused or not.
func (p PlaybackState) IsLoaded(stationID string) bool {
	return p.CurrentPlaying != nil && p.CurrentPlaying.UUID == stationID
}

// PlayerBar is the view model of the minimized and expanded player.
type PlayerBar struct {
	Active   bool
	Expanded bool
	Playing  bool
	Name     string
	Country  string
	Genres   string
	Logo     string
}

// ListingState is the most recently committed fetch. Play controls carry only a
// station id; this is the table they are joined against.
type ListingState struct {
	Stations    []Station
	Detail      *Station
	CurrentPage int
	TotalPages  int
	CurrentURL  string
}

// AppState is the single application state shared by the router, the renderer
// and the player.
type AppState struct {
	mu       sync.RWMutex
	playback PlaybackState
	bar      PlayerBar
	listing  ListingState
	alert    string
}

// NewAppState creates an idle state.
func NewAppState() *AppState {
	return &AppState{
		playback: PlaybackState{IsPaused: true},
	}
}

// Playback returns a copy of the playback state.
func (s *AppState) Playback() PlaybackState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyPlayback(s.playback)
}

// PlayerBar returns a copy of the player bar view model.
func (s *AppState) PlayerBar() PlayerBar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bar
}

// UpdatePlayback mutates playback state and player bar atomically.
func (s *AppState) UpdatePlayback(fn func(p *PlaybackState, bar *PlayerBar)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.playback, &s.bar)
	// Nothing loaded means nothing can be un-paused.
	if s.playback.CurrentPlaying == nil {
		s.playback.IsPaused = true
	}
	s.bar.Playing = s.playback.CurrentPlaying != nil && !s.playback.IsPaused
}

// Listing returns a copy of the listing state.
func (s *AppState) Listing() ListingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := s.listing
	l.Stations = append([]Station(nil), s.listing.Stations...)
	if s.listing.Detail != nil {
		d := *s.listing.Detail
		l.Detail = &d
	}
	return l
}

// ReplaceListing swaps the listing wholesale.
func (s *AppState) ReplaceListing(l ListingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.Stations = append([]Station(nil), l.Stations...)
	s.listing = l
}

// FindStation looks a station up in the detail record and then in the listing.
func (s *AppState) FindStation(id string) (Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listing.Detail != nil && s.listing.Detail.UUID == id {
		return *s.listing.Detail, true
	}
	return lo.Find(s.listing.Stations, func(st Station) bool {
		return st.UUID == id
	})
}

// PatchLogo stores a better logo on every copy of the station the state holds.
func (s *AppState) PatchLogo(id, logo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.listing.Stations {
		if s.listing.Stations[i].UUID == id {
			s.listing.Stations[i].Logo = logo
		}
	}
	if s.listing.Detail != nil && s.listing.Detail.UUID == id {
		s.listing.Detail.Logo = logo
	}
	if s.playback.CurrentPlaying != nil && s.playback.CurrentPlaying.UUID == id {
		s.playback.CurrentPlaying.Logo = logo
	}
}

// SetAlert stores a one-shot user-facing message.
func (s *AppState) SetAlert(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = strings.TrimSpace(msg)
}

// TakeAlert returns the pending message and clears it.
func (s *AppState) TakeAlert() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.alert
	s.alert = ""
	return msg
}

func copyPlayback(p PlaybackState) PlaybackState {
	if p.CurrentPlaying != nil {
		st := *p.CurrentPlaying
		p.CurrentPlaying = &st
	}
	return p
}
