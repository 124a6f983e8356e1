package radio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aposazhennikov/radio-directory-web/radio"
)

func TestStationGenres(t *testing.T) {
	assert.Equal(t, []string{"rock", "pop", "indie"}, radio.Station{GenreTags: "rock, pop,,indie ,"}.Genres())
	assert.Empty(t, radio.Station{}.Genres())
}

func TestStationLogo(t *testing.T) {
	assert.Equal(t, radio.PlaceholderLogo, radio.Station{}.DisplayLogo())
	assert.Equal(t, "https://x/logo.png", radio.Station{Logo: "https://x/logo.png"}.DisplayLogo())

	assert.True(t, radio.Station{}.NeedsBetterLogo())
	assert.True(t, radio.Station{Logo: radio.PlaceholderLogo}.NeedsBetterLogo())
	assert.False(t, radio.Station{Logo: "https://x/logo.png"}.NeedsBetterLogo())
}

func TestAppStatePlaybackInvariant(t *testing.T) {
	state := radio.NewAppState()
	assert.True(t, state.Playback().IsPaused)
	assert.Nil(t, state.Playback().CurrentPlaying)

	st := radio.Station{UUID: "a", Name: "A"}
	state.UpdatePlayback(func(p *radio.PlaybackState, _ *radio.PlayerBar) {
		p.CurrentPlaying = &st
		p.IsPaused = false
	})
	assert.True(t, state.Playback().IsPlaying("a"))
	assert.True(t, state.PlayerBar().Playing)

	state.UpdatePlayback(func(p *radio.PlaybackState, _ *radio.PlayerBar) {
		p.CurrentPlaying = nil
		p.IsPaused = false
	})
	assert.True(t, state.Playback().IsPaused, "clearing the station forces paused")
	assert.False(t, state.PlayerBar().Playing)
}

func TestAppStatePlaybackIsCopied(t *testing.T) {
	state := radio.NewAppState()
	state.UpdatePlayback(func(p *radio.PlaybackState, _ *radio.PlayerBar) {
		p.CurrentPlaying = &radio.Station{UUID: "a", Name: "A"}
	})

	snapshot := state.Playback()
	snapshot.CurrentPlaying.Name = "mutated"
	assert.Equal(t, "A", state.Playback().CurrentPlaying.Name)
}

func TestAppStateFindAndPatch(t *testing.T) {
	state := radio.NewAppState()
	state.ReplaceListing(radio.ListingState{
		Stations: []radio.Station{{UUID: "a"}, {UUID: "b"}},
		Detail:   &radio.Station{UUID: "d"},
	})

	_, ok := state.FindStation("b")
	assert.True(t, ok)
	_, ok = state.FindStation("d")
	assert.True(t, ok)
	_, ok = state.FindStation("zzz")
	assert.False(t, ok)

	state.PatchLogo("b", "https://logo/b.png")
	st, ok := state.FindStation("b")
	require.True(t, ok)
	assert.Equal(t, "https://logo/b.png", st.Logo)
}

func TestAppStateAlertIsOneShot(t *testing.T) {
	state := radio.NewAppState()
	state.SetAlert("  boom ")
	assert.Equal(t, "boom", state.TakeAlert())
	assert.Empty(t, state.TakeAlert())
}
