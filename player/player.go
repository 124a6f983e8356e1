// Package player implements the playback controller: the only writer of the
// playback state and of the shared audio output.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aposazhennikov/radio-directory-web/audio"
	"github.com/aposazhennikov/radio-directory-web/logger"
	"github.com/aposazhennikov/radio-directory-web/radio"
	sentryhelper "github.com/aposazhennikov/radio-directory-web/sentry_helper"
	"github.com/aposazhennikov/radio-directory-web/stream"
)

// DefaultPlayDelay is the pause inserted before requesting playback. It damps
// flicker from streams that fail immediately.
const DefaultPlayDelay = 300 * time.Millisecond

var (
	// ErrSuperseded is returned by a play attempt that a newer Play or Stop replaced.
	ErrSuperseded = errors.New("playback superseded by a newer request")
	// ErrUnknownStation is returned when a play control names a station that is not loaded.
	ErrUnknownStation = errors.New("station is not part of the current listing")
	// ErrUnknownEvent is returned by HandleEvent for an unrecognised event.
	ErrUnknownEvent = errors.New("unknown playback event")
)

// Phase is the state of the current playback session.
type Phase int

const (
	Idle Phase = iota
	Loading
	Playing
	Paused
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Output is the single shared audio output.
type Output interface {
	SetSource(url string)
	Play(ctx context.Context) error
	Pause()
	Stop()
}

// LogoResolver finds a logo for stations that have none.
type LogoResolver interface {
	ResolveBetterLogo(ctx context.Context, stationID string) (string, bool)
}

// Notifier is told about terminal playback failures.
type Notifier interface {
	NotifyPlaybackFailure(ctx context.Context, station radio.Station, err error)
}

// StartObserver is implemented by notifiers that also want to know when a
// station starts playing.
type StartObserver interface {
	NotifyPlaybackStarted(ctx context.Context, station radio.Station)
}

// Options configure a Controller.
type Options struct {
	State     *radio.AppState
	Output    Output
	Resolver  LogoResolver
	Notifiers []Notifier
	Sentry    *sentryhelper.SentryHelper
	Logger    *slog.Logger
	// PlayDelay defaults to DefaultPlayDelay; a negative value disables it.
	PlayDelay time.Duration
}

// Controller drives the audio output and keeps the playback state and the
// player bar consistent with it.
type Controller struct {
	state     *radio.AppState
	output    Output
	resolver  LogoResolver
	notifiers []Notifier
	sentry    *sentryhelper.SentryHelper
	logger    *slog.Logger
	delay     time.Duration

	// mu orders session changes; it is never held across network I/O.
	mu    sync.Mutex
	gen   uint64
	phase Phase
	// started is set once the session's station reached the output.
	started bool
}

// NewController creates a controller in the Idle phase.
func NewController(opts Options) *Controller {
	if opts.State == nil {
		opts.State = radio.NewAppState()
	}
	if opts.PlayDelay == 0 {
		opts.PlayDelay = DefaultPlayDelay
	}
	if opts.PlayDelay < 0 {
		opts.PlayDelay = 0
	}
	return &Controller{
		state:     opts.State,
		output:    opts.Output,
		resolver:  opts.Resolver,
		notifiers: opts.Notifiers,
		sentry:    opts.Sentry,
		logger:    logger.WithComponent(opts.Logger, "player"),
		delay:     opts.PlayDelay,
	}
}

// Phase returns the phase of the current session.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// State returns the application state the controller writes to.
func (c *Controller) State() *radio.AppState {
	return c.state
}

// Play starts a new session for station, superseding any previous one.
func (c *Controller) Play(ctx context.Context, station radio.Station) error {
	gen := c.begin(station)

	if station.NeedsBetterLogo() && c.resolver != nil {
		if better, ok := c.resolver.ResolveBetterLogo(ctx, station.UUID); ok {
			station.Logo = better
			c.state.PatchLogo(station.UUID, better)
		}
	}

	secureURL := stream.Normalize(station.StreamURL)
	if !c.setSourceIfCurrent(gen, secureURL) {
		return c.superseded(station)
	}

	if err := c.wait(ctx); err != nil {
		return c.fail(ctx, gen, station, secureURL, false, err)
	}
	if c.isStale(gen) {
		return c.superseded(station)
	}

	attempted := secureURL
	err := c.output.Play(ctx)
	if c.isStale(gen) {
		return c.superseded(station)
	}

	retried := false
	if err != nil && stream.IsUpgraded(station.StreamURL) {
		playbackFallbacks.Inc()
		logger.LogPlaybackEvent(c.logger, slog.LevelWarn, "Secure stream failed, retrying original URL",
			station.UUID, station.StreamURL, slog.String("error", err.Error()))

		if !c.setSourceIfCurrent(gen, station.StreamURL) {
			return c.superseded(station)
		}
		attempted = station.StreamURL
		retried = true
		err = c.output.Play(ctx)
		if c.isStale(gen) {
			return c.superseded(station)
		}
	}

	if err != nil {
		return c.fail(ctx, gen, station, attempted, retried, err)
	}

	if c.succeed(gen, station, attempted) {
		for _, n := range c.notifiers {
			if o, ok := n.(StartObserver); ok {
				o.NotifyPlaybackStarted(ctx, station)
			}
		}
	}
	return nil
}

// Pause pauses the loaded station. It does nothing when nothing plays.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	pb := c.state.Playback()
	if pb.CurrentPlaying == nil || pb.IsPaused {
		return
	}
	if c.phase == Loading {
		// Abandon the pending start; Resume restarts it.
		c.gen++
	}
	c.output.Pause()
	c.phase = Paused
	c.state.UpdatePlayback(func(p *radio.PlaybackState, _ *radio.PlayerBar) {
		p.IsPaused = true
	})
	logger.LogPlaybackEvent(c.logger, slog.LevelInfo, "Playback paused", pb.CurrentPlaying.UUID, c.sourceOf(pb))
}

// Resume continues the paused station. A session paused before it started,
// or whose source cannot be resumed, is started again from scratch.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	pb := c.state.Playback()
	if pb.CurrentPlaying == nil || !pb.IsPaused {
		c.mu.Unlock()
		return nil
	}
	if !c.started {
		c.mu.Unlock()
		return c.Play(ctx, *pb.CurrentPlaying)
	}
	gen := c.gen
	c.mu.Unlock()

	if err := c.output.Play(ctx); err != nil {
		logger.LogPlaybackEvent(c.logger, slog.LevelWarn, "Resume failed, restarting station",
			pb.CurrentPlaying.UUID, pb.CurrentPlaying.StreamURL, slog.String("error", err.Error()))
		return c.Play(ctx, *pb.CurrentPlaying)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return nil
	}
	c.phase = Playing
	c.state.UpdatePlayback(func(p *radio.PlaybackState, bar *radio.PlayerBar) {
		p.IsPaused = false
		bar.Active = true
	})
	return nil
}

// Toggle pauses or resumes the loaded station; with nothing loaded it is a no-op.
func (c *Controller) Toggle(ctx context.Context) error {
	pb := c.state.Playback()
	switch {
	case pb.CurrentPlaying == nil:
		return nil
	case pb.IsPaused:
		return c.Resume(ctx)
	default:
		c.Pause()
		return nil
	}
}

// PlayOrPause is the contract of every rendered play control: pause the
// station if it is the one playing, resume it if it is loaded but paused,
// otherwise start it.
func (c *Controller) PlayOrPause(ctx context.Context, stationID string) error {
	pb := c.state.Playback()
	switch {
	case pb.IsPlaying(stationID):
		c.Pause()
		return nil
	case pb.IsLoaded(stationID):
		return c.Resume(ctx)
	}

	station, ok := c.state.FindStation(stationID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStation, stationID)
	}
	return c.Play(ctx, station)
}

// Stop ends the session from any phase. It always succeeds.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.phase = Idle
	c.started = false
	c.output.Stop()
	c.state.UpdatePlayback(func(p *radio.PlaybackState, bar *radio.PlayerBar) {
		p.CurrentPlaying = nil
		p.IsPaused = true
		*bar = radio.PlayerBar{}
	})
}

// HandleEvent applies a native playback notification, whichever side raised it.
func (c *Controller) HandleEvent(ctx context.Context, event audio.Event) error {
	switch event {
	case audio.EventPause, audio.EventEnded, audio.EventPlay:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if c.Phase() == Loading {
		// Events during a start belong to the previous source.
		return nil
	}
	if event == audio.EventPlay {
		return c.Resume(ctx)
	}
	c.Pause()
	return nil
}

// ToggleExpanded switches the player bar between minimized and expanded.
func (c *Controller) ToggleExpanded() {
	c.state.UpdatePlayback(func(p *radio.PlaybackState, bar *radio.PlayerBar) {
		if p.CurrentPlaying == nil || !bar.Active {
			bar.Expanded = false
			return
		}
		bar.Expanded = !bar.Expanded
	})
}

// Expand opens the expanded player when a station is loaded.
func (c *Controller) Expand() {
	c.state.UpdatePlayback(func(p *radio.PlaybackState, bar *radio.PlayerBar) {
		if p.CurrentPlaying != nil && bar.Active {
			bar.Expanded = true
		}
	})
}

// Minimize collapses the player bar without touching playback.
func (c *Controller) Minimize() {
	c.state.UpdatePlayback(func(_ *radio.PlaybackState, bar *radio.PlayerBar) {
		bar.Expanded = false
	})
}

func (c *Controller) begin(station radio.Station) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.phase = Loading
	c.started = false
	loading := station
	c.state.UpdatePlayback(func(p *radio.PlaybackState, _ *radio.PlayerBar) {
		p.CurrentPlaying = &loading
		p.IsPaused = false
	})
	logger.LogPlaybackEvent(c.logger, slog.LevelInfo, "Loading station", station.UUID, station.StreamURL,
		slog.String("name", station.Name))
	return c.gen
}

func (c *Controller) setSourceIfCurrent(gen uint64, url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.output.SetSource(url)
	return true
}

func (c *Controller) isStale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

func (c *Controller) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Controller) succeed(gen uint64, station radio.Station, attempted string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}

	c.phase = Playing
	c.started = true
	playing := station
	c.state.UpdatePlayback(func(p *radio.PlaybackState, bar *radio.PlayerBar) {
		p.CurrentPlaying = &playing
		p.IsPaused = false
		bar.Active = true
		bar.Expanded = false
		bar.Name = station.Name
		bar.Country = station.Country
		bar.Genres = strings.Join(station.Genres(), ", ")
		bar.Logo = station.DisplayLogo()
	})
	playbackAttempts.WithLabelValues("success").Inc()
	logger.LogPlaybackEvent(c.logger, slog.LevelInfo, "Playback started", station.UUID, attempted)
	return true
}

func (c *Controller) superseded(station radio.Station) error {
	playbackAttempts.WithLabelValues("superseded").Inc()
	logger.LogPlaybackEvent(c.logger, slog.LevelDebug, "Playback attempt superseded", station.UUID, station.StreamURL)
	return ErrSuperseded
}

func (c *Controller) fail(ctx context.Context, gen uint64, station radio.Station, attempted string, retried bool, cause error) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return c.superseded(station)
	}
	c.phase = Failed
	c.started = false
	c.output.Stop()
	c.state.UpdatePlayback(func(p *radio.PlaybackState, bar *radio.PlayerBar) {
		p.CurrentPlaying = nil
		p.IsPaused = true
		*bar = radio.PlayerBar{}
	})
	c.mu.Unlock()

	playbackAttempts.WithLabelValues("failure").Inc()
	logger.LogPlaybackEvent(c.logger, slog.LevelError, "Playback failed", station.UUID, attempted,
		slog.String("name", station.Name),
		slog.Bool("retried", retried),
		slog.String("error", cause.Error()))
	c.sentry.CapturePlaybackFailure(cause, station.UUID, station.Name, attempted)

	c.state.SetAlert(FailureMessage(station, retried))
	for _, n := range c.notifiers {
		n.NotifyPlaybackFailure(ctx, station, cause)
	}
	return fmt.Errorf("failed to play %s: %w", station.Name, cause)
}

func (c *Controller) sourceOf(pb radio.PlaybackState) string {
	if pb.CurrentPlaying == nil {
		return ""
	}
	return pb.CurrentPlaying.StreamURL
}

// FailureMessage is the alert shown when a station cannot be played.
func FailureMessage(station radio.Station, retried bool) string {
	if retried {
		return fmt.Sprintf("⚠️ La estación '%s' no se pudo reproducir. Intenta abrirla en la página de detalle y haz clic en Reproducir.", station.Name)
	}
	return fmt.Sprintf("⚠️ La estación '%s' no se pudo reproducir. Esto suele deberse a problemas de streaming o bloqueo de contenido mixto.", station.Name)
}
