package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/aposazhennikov/radio-directory-web/audio"
	"github.com/aposazhennikov/radio-directory-web/catalog"
	"github.com/aposazhennikov/radio-directory-web/config"
	httpServer "github.com/aposazhennikov/radio-directory-web/http"
	"github.com/aposazhennikov/radio-directory-web/logger"
	"github.com/aposazhennikov/radio-directory-web/logo"
	"github.com/aposazhennikov/radio-directory-web/player"
	"github.com/aposazhennikov/radio-directory-web/radio"
	"github.com/aposazhennikov/radio-directory-web/router"
	sentryhelper "github.com/aposazhennikov/radio-directory-web/sentry_helper"
	"github.com/aposazhennikov/radio-directory-web/telegram"
	"github.com/aposazhennikov/radio-directory-web/view"
)

const (
	shutdownTimeout = 10 * time.Second
	sentryFlush     = 2 * time.Second
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	logConfig := logger.DefaultConfig()
	logConfig.Level = logger.ParseLevel(cfg.LogLevel)
	log := logger.NewLogger(logConfig)
	slog.SetDefault(log)

	sentryEnabled := false
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			Release:     "radio-directory-web@1.0.0",
		})
		if err != nil {
			log.Error("Failed to initialize Sentry", slog.String("error", err.Error()))
		} else {
			sentryEnabled = true
		}
	}
	sentryHelper := sentryhelper.NewSentryHelper(sentryEnabled, log)
	defer sentryHelper.SafeFlush(sentryFlush)

	if err := run(cfg, log, sentryHelper); err != nil {
		log.Error("Server stopped with error", slog.String("error", err.Error()))
		sentryHelper.CaptureError(err, "main", "run")
		sentryHelper.SafeFlush(sentryFlush)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, sentryHelper *sentryhelper.SentryHelper) error {
	state := radio.NewAppState()

	apiClient := &http.Client{Timeout: cfg.HTTPTimeout}
	catalogClient := catalog.NewClient(catalog.Options{
		BaseURL:    cfg.APIURL,
		HTTPClient: apiClient,
		CacheTTL:   cfg.CacheTTL,
		Logger:     log,
		OnError:    httpServer.CountAPIError,
	})

	resolver := logo.NewResolver(logo.Options{
		LookupURL:  cfg.LogoLookupURL,
		HTTPClient: apiClient,
		Logger:     log,
	})

	output := audio.NewOutput(audio.Options{
		MaxClients:   cfg.MaxClients,
		StartTimeout: cfg.StartTimeout,
		DisableProbe: cfg.DisableProbe,
		Logger:       logger.WithComponent(log, "audio"),
		OnBytes:      httpServer.CountFanoutBytes,
	})

	var notifiers []player.Notifier
	alerts := telegram.NewNotifier(telegram.Config{
		BotToken: cfg.TelegramBotToken,
		ChatID:   cfg.TelegramChatID,
		APIURL:   cfg.TelegramAPIURL,
		Cooldown: cfg.AlertCooldown,
		Timezone: cfg.AlertTimezone,
	}, log)
	if alerts.IsEnabled() {
		notifiers = append(notifiers, alerts)
		log.Info("Telegram alerts enabled")
	}

	playDelay := cfg.PlayDelay
	if playDelay == 0 {
		playDelay = -1
	}
	controller := player.NewController(player.Options{
		State:     state,
		Output:    output,
		Resolver:  resolver,
		Notifiers: notifiers,
		Sentry:    sentryHelper,
		Logger:    log,
		PlayDelay: playDelay,
	})
	output.OnEvent(func(event audio.Event) {
		if err := controller.HandleEvent(context.Background(), event); err != nil {
			log.Warn("Failed to apply output event", slog.String("event", string(event)), slog.String("error", err.Error()))
		}
	})

	renderer, err := view.NewRenderer(view.Options{
		TemplatesDir: cfg.TemplatesDir,
		Logger:       log,
		Sentry:       sentryHelper,
	})
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	defer renderer.Close()

	navigator := router.NewNavigator(catalogClient, state, log, sentryHelper)

	server := httpServer.NewServer(httpServer.Options{
		State:     state,
		Player:    controller,
		Navigator: navigator,
		Countries: catalogClient,
		Renderer:  renderer,
		Stream:    output,
		StaticDir: cfg.StaticDir,
		Logger:    log,
		Sentry:    sentryHelper,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server started", slog.String("addr", httpSrv.Addr), slog.String("api_url", cfg.APIURL))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Info("Received signal, shutting down", slog.String("signal", sig.String()))
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("failed to serve: %w", err)
		}
	}

	controller.Stop()
	// Closing the listener channels ends the long-lived /listen responses.
	output.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
