package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogsampling "github.com/samber/slog-sampling"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug   LogLevel = "DEBUG"
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

// Config holds the logger configuration.
type Config struct {
	Level                 LogLevel
	Output                io.Writer
	DisableSampling       bool
	ThresholdSamplingTick time.Duration
	ThresholdSamplingMax  uint64
	ThresholdSamplingRate float64
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:                 LevelInfo,
		Output:                os.Stdout,
		DisableSampling:       false,
		ThresholdSamplingTick: 5 * time.Second,
		ThresholdSamplingMax:  20,   // Allow first 20 identical messages.
		ThresholdSamplingRate: 0.05, // Then only 5% of subsequent messages.
	}
}

// NewLogger creates a new configured logger with sampling.
func NewLogger(config *Config) *slog.Logger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	baseHandler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLogLevel(config.Level),
	})

	if config.DisableSampling {
		return slog.New(baseHandler)
	}

	// Errors are never sampled: a failed stream must always reach the log.
	thresholdOption := slogsampling.ThresholdSamplingOption{
		Tick:      config.ThresholdSamplingTick,
		Threshold: config.ThresholdSamplingMax,
		Rate:      config.ThresholdSamplingRate,
		Matcher:   slogsampling.MatchByLevelAndMessage(),
	}

	return slog.New(
		slogmulti.
			Router().
			Add(baseHandler, func(_ context.Context, r slog.Record) bool {
				return r.Level >= slog.LevelError
			}).
			Add(
				slogmulti.Pipe(thresholdOption.NewMiddleware()).Handler(baseHandler),
				func(_ context.Context, r slog.Record) bool {
					return r.Level < slog.LevelError
				},
			).
			Handler(),
	)
}

// ParseLevel converts a free-form level name (as found in LOG_LEVEL) to LogLevel.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARNING", "WARN":
		return LevelWarning
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// parseLogLevel converts LogLevel to slog.Level.
func parseLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent adds a component field to the logger for better categorization.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

// LogPlaybackEvent logs playback-related events with consistent fields.
func LogPlaybackEvent(logger *slog.Logger, level slog.Level, msg string, stationID string, streamURL string, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("station", stationID),
		slog.String("stream_url", streamURL),
		slog.String("event_type", "playback"),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(context.Background(), level, msg, allAttrs...)
}

// LogNetworkEvent logs outbound API calls with consistent fields.
func LogNetworkEvent(logger *slog.Logger, level slog.Level, msg string, endpoint string, requestID string, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("endpoint", endpoint),
		slog.String("request_id", requestID),
		slog.String("event_type", "network"),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(context.Background(), level, msg, allAttrs...)
}
