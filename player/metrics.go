package player

import "github.com/prometheus/client_golang/prometheus"

var (
	playbackAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_playback_attempts_total",
			Help: "Playback attempts by outcome",
		},
		[]string{"result"},
	)

	playbackFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_playback_fallbacks_total",
			Help: "Retries with the original stream URL after the secure variant failed",
		},
	)
)

func init() {
	prometheus.MustRegister(playbackAttempts)
	prometheus.MustRegister(playbackFallbacks)
}
