// Package audio implements the single shared audio output: one source at a
// time, relayed to every connected listener.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aposazhennikov/radio-directory-web/relay"
)

const (
	defaultClientChannelBuffer = 64
	defaultStartTimeout        = 10 * time.Second
)

var (
	// ErrNoSource is returned by Play when no source has been set.
	ErrNoSource = errors.New("no audio source set")
	// ErrTooManyListeners is returned by AddClient once the listener limit is reached.
	ErrTooManyListeners = errors.New("maximum number of listeners exceeded")
	// ErrInterrupted is returned by a Play whose start was overtaken by Pause, Stop or SetSource.
	ErrInterrupted = errors.New("playback start interrupted")
)

// Event is a playback notification raised by the output itself.
type Event string

const (
	EventPause Event = "pause"
	EventPlay  Event = "play"
	EventEnded Event = "ended"
)

// Options configure an Output.
type Options struct {
	Client       *http.Client
	MaxClients   int
	StartTimeout time.Duration
	// DisableProbe skips decoding the head of mp3 streams before reporting success.
	DisableProbe bool
	Logger       *slog.Logger
	// OnBytes is called with the size of every chunk fanned out to listeners.
	OnBytes func(n int)
}

// Output owns at most one upstream stream and fans it out to listeners.
type Output struct {
	client       *http.Client
	maxClients   int
	startTimeout time.Duration
	probe        bool
	logger       *slog.Logger
	onBytes      func(int)

	mu          sync.Mutex
	source      string
	upstream    *relay.Source
	cancelPump  context.CancelFunc
	pumpDone    chan struct{}
	contentType string
	onEvent     func(Event)
	// epoch moves on every Pause, Stop and source change; a start only
	// commits if it is unchanged.
	epoch uint64

	clientMutex    sync.RWMutex
	clientCounter  int
	clientChannels map[int]chan []byte
}

// NewOutput creates an idle output.
func NewOutput(opts Options) *Output {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = defaultStartTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Output{
		client:         opts.Client,
		maxClients:     opts.MaxClients,
		startTimeout:   opts.StartTimeout,
		probe:          !opts.DisableProbe,
		logger:         opts.Logger,
		onBytes:        opts.OnBytes,
		clientChannels: make(map[int]chan []byte),
	}
}

// OnEvent registers the callback for notifications raised by the output
// (currently only EventEnded when the upstream stops on its own).
func (o *Output) OnEvent(fn func(Event)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onEvent = fn
}

// SetSource replaces the source. A different URL drops the current upstream.
func (o *Output) SetSource(url string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if url == o.source {
		return
	}
	o.epoch++
	o.haltLocked()
	o.source = url
}

// Source returns the current source URL.
func (o *Output) Source() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.source
}

// ContentType returns the media type of the active upstream.
func (o *Output) ContentType() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.contentType
}

// Play connects to the current source and starts relaying it. Playing an
// already relayed source is a no-op. ctx bounds only the start, not the stream.
func (o *Output) Play(ctx context.Context) error {
	o.mu.Lock()
	source := o.source
	if source == "" {
		o.mu.Unlock()
		return ErrNoSource
	}
	if o.upstream != nil {
		o.mu.Unlock()
		return nil
	}
	epoch := o.epoch
	o.mu.Unlock()

	streamCtx, cancel := context.WithCancel(context.Background())
	stopWatch := context.AfterFunc(ctx, cancel)
	timer := time.AfterFunc(o.startTimeout, cancel)

	upstream, format, err := o.open(streamCtx, source)

	timer.Stop()
	if !stopWatch() || streamCtx.Err() != nil {
		cancel()
		if upstream != nil {
			upstream.Close()
		}
		if err == nil {
			err = fmt.Errorf("playback start aborted: %w", context.Cause(streamCtx))
		}
		return err
	}
	if err != nil {
		cancel()
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != epoch || o.upstream != nil {
		cancel()
		upstream.Close()
		if o.epoch != epoch {
			return fmt.Errorf("%w: %s", ErrInterrupted, source)
		}
		// A concurrent Play of the same source won.
		return nil
	}

	o.upstream = upstream
	o.contentType = upstream.ContentType
	o.cancelPump = cancel
	o.pumpDone = make(chan struct{})
	go o.pump(streamCtx, upstream, o.pumpDone)

	attrs := []any{
		slog.String("source", source),
		slog.String("content_type", upstream.ContentType),
	}
	if format.SampleRate > 0 {
		attrs = append(attrs,
			slog.Int("sample_rate", format.SampleRate),
			slog.Int("channels", format.NumChannels),
			slog.String("probe_window", format.FrameDuration()))
	}
	o.logger.Info("Audio output started", attrs...)
	return nil
}

func (o *Output) open(ctx context.Context, source string) (*relay.Source, Format, error) {
	upstream, err := relay.Dial(ctx, o.client, source)
	if err != nil {
		return nil, Format{}, err
	}
	if !o.probe || !needsProbe(upstream.ContentType) {
		return upstream, Format{}, nil
	}

	head, peekErr := upstream.Peek(probeBytes)
	if peekErr != nil && len(head) == 0 {
		upstream.Close()
		return nil, Format{}, fmt.Errorf("failed to read stream head: %w", peekErr)
	}
	format, probeErr := probeMP3(head)
	if probeErr != nil {
		upstream.Close()
		return nil, Format{}, probeErr
	}
	return upstream, format, nil
}

// Pause stops relaying but keeps the source, so Play resumes it. Live radio
// cannot be buffered, so the upstream is dropped.
func (o *Output) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.epoch++
	o.haltLocked()
}

// Stop halts playback and clears the source.
func (o *Output) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.epoch++
	o.haltLocked()
	o.source = ""
}

// IsPlaying reports whether an upstream is being relayed.
func (o *Output) IsPlaying() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.upstream != nil
}

// haltLocked cancels the pump and waits for it. Callers hold o.mu.
func (o *Output) haltLocked() {
	if o.upstream == nil {
		return
	}
	o.cancelPump()
	o.upstream.Close()
	done := o.pumpDone
	o.upstream = nil
	o.cancelPump = nil
	o.pumpDone = nil
	o.contentType = ""

	// The pump never takes o.mu while its context is cancelled, so this cannot deadlock.
	<-done
}

func (o *Output) pump(ctx context.Context, upstream *relay.Source, done chan struct{}) {
	pumpErr := upstream.Pump(ctx, o.broadcast)
	close(done)

	if ctx.Err() != nil {
		return
	}
	if pumpErr != nil {
		o.logger.Warn("Upstream stream failed", slog.String("source", upstream.URL), slog.String("error", pumpErr.Error()))
	} else {
		o.logger.Info("Upstream stream ended", slog.String("source", upstream.URL))
	}

	o.mu.Lock()
	if o.upstream != upstream {
		o.mu.Unlock()
		return
	}
	o.upstream.Close()
	o.upstream = nil
	o.cancelPump = nil
	o.pumpDone = nil
	onEvent := o.onEvent
	o.mu.Unlock()

	if onEvent != nil {
		onEvent(EventEnded)
	}
}

// AddClient adds a new listener and returns a channel for receiving data.
func (o *Output) AddClient() (<-chan []byte, int, error) {
	o.clientMutex.Lock()
	defer o.clientMutex.Unlock()

	if o.maxClients > 0 && len(o.clientChannels) >= o.maxClients {
		return nil, 0, fmt.Errorf("%w (%d)", ErrTooManyListeners, o.maxClients)
	}

	o.clientCounter++
	clientID := o.clientCounter
	// Buffered so a slow listener does not stall the others.
	ch := make(chan []byte, defaultClientChannelBuffer)
	o.clientChannels[clientID] = ch

	o.logger.Debug("Listener connected", slog.Int("client_id", clientID), slog.Int("listeners", len(o.clientChannels)))
	return ch, clientID, nil
}

// RemoveClient removes a listener.
func (o *Output) RemoveClient(clientID int) {
	o.clientMutex.Lock()
	defer o.clientMutex.Unlock()

	if ch, exists := o.clientChannels[clientID]; exists {
		close(ch)
		delete(o.clientChannels, clientID)
		o.logger.Debug("Listener disconnected", slog.Int("client_id", clientID), slog.Int("listeners", len(o.clientChannels)))
	}
}

// GetClientCount returns the current number of listeners.
func (o *Output) GetClientCount() int {
	o.clientMutex.RLock()
	defer o.clientMutex.RUnlock()
	return len(o.clientChannels)
}

// broadcast hands a chunk to every listener; full channels drop the chunk.
func (o *Output) broadcast(data []byte) {
	o.clientMutex.RLock()
	defer o.clientMutex.RUnlock()

	for id, ch := range o.clientChannels {
		select {
		case ch <- data:
		default:
			o.logger.Debug("Listener too slow, chunk dropped", slog.Int("client_id", id))
		}
	}
	if o.onBytes != nil && len(o.clientChannels) > 0 {
		o.onBytes(len(data) * len(o.clientChannels))
	}
}

// Close stops playback and disconnects every listener.
func (o *Output) Close() {
	o.Stop()

	o.clientMutex.Lock()
	defer o.clientMutex.Unlock()
	for id, ch := range o.clientChannels {
		close(ch)
		delete(o.clientChannels, id)
	}
}
