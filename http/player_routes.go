package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aposazhennikov/radio-directory-web/audio"
	"github.com/aposazhennikov/radio-directory-web/player"
)

type stationResponse struct {
	UUID    string `json:"uuid"`
	Name    string `json:"nombre"`
	Country string `json:"pais"`
	Logo    string `json:"logo"`
	Stream  string `json:"stream_url"`
}

type playerStateResponse struct {
	Phase     string           `json:"phase"`
	Playing   bool             `json:"playing"`
	Paused    bool             `json:"paused"`
	Expanded  bool             `json:"expanded"`
	Station   *stationResponse `json:"station"`
	Listeners int              `json:"listeners"`
}

func (s *Server) setupPlayerRoutes() {
	s.router.HandleFunc("/player/state", s.playerStateHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/player/station", s.playStationHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/player/toggle", s.toggleHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/player/stop", s.stopHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/player/expand", s.expandHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/player/open", s.openHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/player/events/{event}", s.eventHandler).Methods(http.MethodPost)
}

// playContext detaches a play request from the client connection: a browser
// that gives up on the redirect must not cancel a stream that is starting.
func (s *Server) playContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.playTimeout)
}

func (s *Server) playStationHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	stationID := r.PostFormValue("uuid")
	if stationID == "" {
		http.Error(w, "Missing station", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.playContext(r)
	defer cancel()

	err := s.player.PlayOrPause(ctx, stationID)
	switch {
	case errors.Is(err, player.ErrUnknownStation):
		s.logger.Warn("Play requested for unknown station", slog.String("station", stationID))
		if wantsJSON(r) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
	case err != nil && !isSuperseded(err):
		// The failure alert is already in the state and shows on the next page.
		s.logger.Info("Play request failed", slog.String("station", stationID), slog.String("error", err.Error()))
	}
	s.respondPlayer(w, r)
}

func (s *Server) toggleHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.playContext(r)
	defer cancel()

	if err := s.player.Toggle(ctx); err != nil && !isSuperseded(err) {
		s.logger.Info("Toggle failed", slog.String("error", err.Error()))
	}
	s.respondPlayer(w, r)
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	s.player.Stop()
	s.respondPlayer(w, r)
}

func (s *Server) expandHandler(w http.ResponseWriter, r *http.Request) {
	s.player.ToggleExpanded()
	s.respondPlayer(w, r)
}

// openHandler serves the station info in the minimized bar, which only ever expands.
func (s *Server) openHandler(w http.ResponseWriter, r *http.Request) {
	s.player.Expand()
	s.respondPlayer(w, r)
}

// eventHandler receives play, pause and ended notifications from the page's
// audio element.
func (s *Server) eventHandler(w http.ResponseWriter, r *http.Request) {
	event := audio.Event(mux.Vars(r)["event"])

	ctx, cancel := s.playContext(r)
	defer cancel()

	if err := s.player.HandleEvent(ctx, event); err != nil {
		if errors.Is(err, player.ErrUnknownEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !isSuperseded(err) {
			s.logger.Info("Player event failed", slog.String("event", string(event)), slog.String("error", err.Error()))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) playerStateHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.playerState())
}

func (s *Server) playerState() playerStateResponse {
	playback := s.state.Playback()
	bar := s.state.PlayerBar()
	resp := playerStateResponse{
		Phase:     s.player.Phase().String(),
		Playing:   playback.CurrentPlaying != nil && !playback.IsPaused,
		Paused:    playback.CurrentPlaying != nil && playback.IsPaused,
		Expanded:  bar.Expanded,
		Listeners: s.stream.GetClientCount(),
	}
	if st := playback.CurrentPlaying; st != nil {
		resp.Station = &stationResponse{
			UUID:    st.UUID,
			Name:    st.Name,
			Country: st.Country,
			Logo:    st.DisplayLogo(),
			Stream:  st.StreamURL,
		}
	}
	return resp
}

// respondPlayer answers scripts with the player state and forms with a
// redirect back to the page they were posted from.
func (s *Server) respondPlayer(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, s.playerState())
		return
	}
	http.Redirect(w, r, safeReturn(r.PostFormValue("return")), http.StatusSeeOther)
}
