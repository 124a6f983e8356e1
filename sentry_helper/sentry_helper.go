package sentry_helper

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryHelper wraps optional Sentry reporting. A disabled helper is a no-op,
// so callers never need to check whether a DSN was configured.
type SentryHelper struct {
	enabled bool
	logger  *slog.Logger
}

// NewSentryHelper creates a new SentryHelper instance.
func NewSentryHelper(enabled bool, logger *slog.Logger) *SentryHelper {
	if logger == nil {
		logger = slog.Default()
	}
	return &SentryHelper{
		enabled: enabled,
		logger:  logger,
	}
}

// IsEnabled returns whether Sentry is enabled.
func (h *SentryHelper) IsEnabled() bool {
	return h != nil && h.enabled
}

// CaptureError captures an error tagged with the component and operation that produced it.
func (h *SentryHelper) CaptureError(err error, component string, operation string) {
	h.CaptureErrorWithExtra(err, component, operation, nil)
}

// CaptureErrorWithExtra is CaptureError with additional context attached to the event.
func (h *SentryHelper) CaptureErrorWithExtra(err error, component string, operation string, extra map[string]interface{}) {
	if !h.IsEnabled() || err == nil {
		return
	}

	// Clone hub to avoid data races between concurrent handlers.
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("operation", operation)
		for key, value := range extra {
			scope.SetExtra(key, value)
		}
		hub.CaptureException(err)
	})
}

// CapturePlaybackFailure reports a terminal playback failure for a station.
func (h *SentryHelper) CapturePlaybackFailure(err error, stationID, stationName, streamURL string) {
	h.CaptureErrorWithExtra(err, "player", "play", map[string]interface{}{
		"station_id":   stationID,
		"station_name": stationName,
		"stream_url":   streamURL,
	})
}

// AddBreadcrumb records a navigation or playback step leading up to a possible error.
func (h *SentryHelper) AddBreadcrumb(category, message string, data map[string]interface{}) {
	if !h.IsEnabled() || message == "" {
		return
	}

	sentry.CurrentHub().AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Data:      data,
		Timestamp: time.Now(),
	}, nil)
}

// SafeFlush safely flushes Sentry events with timeout.
func (h *SentryHelper) SafeFlush(timeout time.Duration) {
	if !h.IsEnabled() {
		return
	}

	if !sentry.Flush(timeout) {
		h.logger.Warn("Sentry flush timeout", "timeout", timeout)
	}
}
