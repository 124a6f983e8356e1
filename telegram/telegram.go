package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aposazhennikov/radio-directory-web/radio"
)

const (
	DefaultAPIURL   = "https://api.telegram.org"
	DefaultCooldown = 5 * time.Minute
)

// Config configures playback alerts.
type Config struct {
	BotToken string
	ChatID   string
	// APIURL is the Bot API base URL.
	APIURL string
	// Cooldown is the minimum time between two failure alerts for one station.
	Cooldown time.Duration
	// Timezone names the zone alert times are shown in; UTC when empty or unknown.
	Timezone string
}

// Enabled reports whether alerts can be sent.
func (c Config) Enabled() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// StationStatus tracks a station that failed to play.
type StationStatus struct {
	StationID string
	DownSince time.Time
	LastAlert *time.Time
}

// Notifier sends playback failure and recovery alerts to a Telegram chat.
type Notifier struct {
	config     Config
	location   *time.Location
	statuses   map[string]*StationStatus
	mutex      sync.Mutex
	logger     *slog.Logger
	httpClient *http.Client
	now        func() time.Time
}

// NewNotifier creates a notifier. With an incomplete config it logs and drops
// every alert.
func NewNotifier(config Config, logger *slog.Logger) *Notifier {
	if config.APIURL == "" {
		config.APIURL = DefaultAPIURL
	}
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}

	loc := time.UTC
	if config.Timezone != "" {
		if l, err := time.LoadLocation(config.Timezone); err == nil {
			loc = l
		}
	}

	return &Notifier{
		config:     config,
		location:   loc,
		statuses:   make(map[string]*StationStatus),
		logger:     logger.With("component", "telegram"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// IsEnabled reports whether alerts are delivered.
func (n *Notifier) IsEnabled() bool {
	return n.config.Enabled()
}

// NotifyPlaybackFailure alerts that a station could not be played. Repeated
// failures of the same station within the cooldown are not re-sent.
func (n *Notifier) NotifyPlaybackFailure(ctx context.Context, station radio.Station, cause error) {
	now := n.now()

	n.mutex.Lock()
	status, exists := n.statuses[station.UUID]
	if !exists {
		status = &StationStatus{StationID: station.UUID, DownSince: now}
		n.statuses[station.UUID] = status
	}
	if status.LastAlert != nil && now.Sub(*status.LastAlert) < n.config.Cooldown {
		n.mutex.Unlock()
		n.logger.Debug("Alert suppressed by cooldown", slog.String("station", station.UUID))
		return
	}
	// Reserve the slot so concurrent failures of the station send once.
	previous := status.LastAlert
	reserved := &now
	status.LastAlert = reserved
	n.mutex.Unlock()

	message := fmt.Sprintf("🚨 *Station Down*\n\n📻 *Station:* %s\n", escapeMarkdown(station.Name))
	if station.Country != "" {
		message += fmt.Sprintf("🌎 *Country:* %s\n", escapeMarkdown(station.Country))
	}
	message += fmt.Sprintf("🔗 *Stream:* `%s`\n", station.StreamURL)
	message += fmt.Sprintf("⏰ *Time:* %s\n", now.In(n.location).Format("15:04:05"))
	if cause != nil {
		message += fmt.Sprintf("❗ *Error:* %s", escapeMarkdown(cause.Error()))
	}

	if !n.deliver(ctx, station, message) {
		n.mutex.Lock()
		if status.LastAlert == reserved {
			status.LastAlert = previous
		}
		n.mutex.Unlock()
	}
}

// NotifyPlaybackStarted sends a recovery alert when a station that previously
// failed plays again.
func (n *Notifier) NotifyPlaybackStarted(ctx context.Context, station radio.Station) {
	n.mutex.Lock()
	status, exists := n.statuses[station.UUID]
	if exists {
		delete(n.statuses, station.UUID)
	}
	n.mutex.Unlock()
	if !exists || status.LastAlert == nil {
		return
	}

	now := n.now()
	message := fmt.Sprintf("✅ *Station Restored*\n\n📻 *Station:* %s\n", escapeMarkdown(station.Name))
	message += fmt.Sprintf("⏰ *Time:* %s\n", now.In(n.location).Format("15:04:05"))
	message += fmt.Sprintf("⏱️ *Downtime:* %s", formatDuration(now.Sub(status.DownSince)))
	n.deliver(ctx, station, message)
}

// Status returns the tracked status of a failed station.
func (n *Notifier) Status(stationID string) (StationStatus, bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	status, ok := n.statuses[stationID]
	if !ok {
		return StationStatus{}, false
	}
	return *status, true
}

func (n *Notifier) deliver(ctx context.Context, station radio.Station, message string) bool {
	if !n.IsEnabled() {
		n.logger.Debug("Cannot send alert - missing configuration",
			"has_bot_token", n.config.BotToken != "",
			"has_chat_id", n.config.ChatID != "")
		return false
	}

	if err := n.SendMessage(ctx, message); err != nil {
		n.logger.Error("Failed to send alert", "station", station.UUID, "error", err.Error())
		return false
	}
	n.logger.Info("Alert sent", "station", station.UUID)
	return true
}

// SendMessage posts a Markdown message to the configured chat.
func (n *Notifier) SendMessage(ctx context.Context, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.config.APIURL, n.config.BotToken)

	payload := map[string]interface{}{
		"chat_id":    n.config.ChatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var errorResponse struct {
			OK          bool   `json:"ok"`
			ErrorCode   int    `json:"error_code"`
			Description string `json:"description"`
		}
		if json.Unmarshal(body, &errorResponse) == nil && errorResponse.Description != "" {
			return fmt.Errorf("telegram API error: %s", errorResponse.Description)
		}
		return fmt.Errorf("telegram API error: %s", string(body))
	}

	return nil
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%d hours %d minutes", hours, minutes)
}
