// Package config loads settings from flags, a .env file and the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aposazhennikov/radio-directory-web/logo"
)

const (
	defaultPort          = 8000
	defaultAPIURL        = "https://lfaftechapi.onrender.com/api"
	defaultPlayDelay     = 300 * time.Millisecond
	defaultLogLevel      = "info"
	defaultEnv           = "development"
	defaultStaticDir     = "./static"
	defaultMaxClients    = 500
	defaultHTTPTimeout   = 10 * time.Second
	defaultStartTimeout  = 10 * time.Second
	defaultCacheTTL      = 10 * time.Minute
	defaultAlertCooldown = 5 * time.Minute
	defaultEnvFile       = ".env"
)

// Config is the application configuration.
type Config struct {
	Port          int
	APIURL        string
	LogoLookupURL string
	PlayDelay     time.Duration
	LogLevel      string
	SentryDSN     string
	Env           string
	TemplatesDir  string
	StaticDir     string

	MaxClients   int
	HTTPTimeout  time.Duration
	StartTimeout time.Duration
	DisableProbe bool
	CacheTTL     time.Duration

	TelegramBotToken string
	TelegramChatID   string
	TelegramAPIURL   string
	AlertCooldown    time.Duration
	AlertTimezone    string
}

// Load parses args, then overrides them with environment variables. A .env
// file is loaded first when present; variables already set win over it.
// Priority: environment > flags > defaults.
func Load(args []string) (*Config, error) {
	config := &Config{}
	flags := flag.NewFlagSet("radio-directory-web", flag.ContinueOnError)

	var envFile string
	flags.StringVar(&envFile, "env-file", defaultEnvFile, "Path of an optional .env file")
	flags.IntVar(&config.Port, "port", defaultPort, "HTTP server port")
	flags.StringVar(&config.APIURL, "api-url", defaultAPIURL, "Base URL of the radio API")
	flags.StringVar(&config.LogoLookupURL, "logo-lookup-url", logo.DefaultLookupURL, "Base URL of the logo lookup directory")
	flags.DurationVar(&config.PlayDelay, "play-delay", defaultPlayDelay, "Delay before requesting playback")
	flags.StringVar(&config.LogLevel, "log-level", defaultLogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&config.Env, "env", defaultEnv, "Deployment environment reported to Sentry")
	flags.StringVar(&config.TemplatesDir, "templates-dir", "", "Directory overriding the embedded templates")
	flags.StringVar(&config.StaticDir, "static-dir", defaultStaticDir, "Directory served under /static/")
	flags.IntVar(&config.MaxClients, "max-clients", defaultMaxClients, "Maximum simultaneous listeners")
	flags.DurationVar(&config.HTTPTimeout, "http-timeout", defaultHTTPTimeout, "Timeout of API calls")
	flags.DurationVar(&config.StartTimeout, "start-timeout", defaultStartTimeout, "Timeout for a stream to start")
	flags.BoolVar(&config.DisableProbe, "disable-probe", false, "Skip decoding the stream head before playing")
	flags.DurationVar(&config.CacheTTL, "cache-ttl", defaultCacheTTL, "Lifetime of cached country and genre lists")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var errs []error
	envString(&config.APIURL, "API_URL")
	envString(&config.LogoLookupURL, "LOGO_LOOKUP_URL")
	envString(&config.LogLevel, "LOG_LEVEL")
	envString(&config.SentryDSN, "SENTRY_DSN")
	envString(&config.Env, "ENV")
	envString(&config.TemplatesDir, "TEMPLATES_DIR")
	envString(&config.StaticDir, "STATIC_DIR")
	errs = append(errs,
		envInt(&config.Port, "PORT"),
		envInt(&config.MaxClients, "MAX_CLIENTS"),
		envDuration(&config.PlayDelay, "PLAY_DELAY"),
		envDuration(&config.HTTPTimeout, "HTTP_TIMEOUT"),
		envDuration(&config.StartTimeout, "STREAM_START_TIMEOUT"),
		envDuration(&config.CacheTTL, "CATALOG_CACHE_TTL"),
		envBool(&config.DisableProbe, "DISABLE_PROBE"),
	)

	config.AlertCooldown = defaultAlertCooldown
	envString(&config.TelegramBotToken, "TG_BOT_TOKEN")
	envString(&config.TelegramChatID, "TG_CHAT_ID")
	envString(&config.TelegramAPIURL, "TG_API_URL")
	envString(&config.AlertTimezone, "TG_ALERT_TIMEZONE")
	errs = append(errs, envDuration(&config.AlertCooldown, "TG_ALERT_COOLDOWN"))

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.APIURL == "" {
		return errors.New("api url must not be empty")
	}
	if c.PlayDelay < 0 {
		return fmt.Errorf("invalid play delay %s", c.PlayDelay)
	}
	if c.MaxClients <= 0 {
		return fmt.Errorf("invalid max clients %d", c.MaxClients)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

func envBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	*dst = b
	return nil
}
