package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sjawhar/ghost-wispr-live/internal/api"
	"github.com/sjawhar/ghost-wispr-live/internal/client"
	"github.com/sjawhar/ghost-wispr-live/internal/config"
	"github.com/sjawhar/ghost-wispr-live/internal/history"
	"github.com/sjawhar/ghost-wispr-live/internal/level"
	"github.com/sjawhar/ghost-wispr-live/internal/logging"
	"github.com/sjawhar/ghost-wispr-live/internal/observability"
	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
	"github.com/sjawhar/ghost-wispr-live/internal/refresh"
	"github.com/sjawhar/ghost-wispr-live/internal/server"
	"github.com/sjawhar/ghost-wispr-live/internal/session"
	"github.com/sjawhar/ghost-wispr-live/internal/transport"
	"github.com/sjawhar/ghost-wispr-live/internal/tui"
	"github.com/sjawhar/ghost-wispr-live/internal/urlstate"
)

func main() {
	configPath := flag.String("config", "wispr-live.yaml", "path to YAML config")
	headless := flag.Bool("headless", false, "log live events instead of running the terminal UI")
	flag.Parse()

	if err := run(*configPath, *headless); err != nil {
		fmt.Fprintf(os.Stderr, "wispr-live: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, headless bool) error {
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var logOut io.Writer = os.Stderr
	if !headless {
		f, err := logging.OpenFile(cfg.LogFile)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	logger := logging.New(logOut, cfg.LogLevel, cfg.LogFormat)
	for _, w := range warnings {
		logger.Warn().Msg(w)
		if !headless {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
	}

	wsURL, err := cfg.WebSocketURL()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	live, err := client.New(client.Options{
		URL:   wsURL,
		Token: cfg.APIToken,
		Backoff: transport.Backoff{
			Base:   cfg.ParsedReconnectBaseDelay(),
			Factor: transport.DefaultFactor,
			Max:    cfg.ParsedReconnectMaxDelay(),
		},
		MaxAttempts: cfg.MaxReconnectAttempts,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("build live client: %w", err)
	}
	defer func() { _ = live.Close() }()

	view := session.NewView(level.NewSmoother(cfg.LevelHistory), logging.Component(logger, "session"), metrics)
	live.Subscribe(view.Handle)

	rest := api.New(cfg.ServerURL, cfg.APIToken, api.WithHealthTimeout(cfg.ParsedHealthTimeout()))

	cache, err := history.NewCache()
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	refresher := history.NewRefresher(cache, rest, cfg.ParsedRefreshDebounce(), logging.Component(logger, "history"), metrics)
	defer refresher.Close()
	live.Subscribe(refresher.Handle)

	settings := refresh.NewDebouncer(cfg.ParsedRefreshDebounce(), func() {
		loadSettings(ctx, rest, logger)
	})
	defer settings.Stop()
	live.Subscribe(settings.Handler(protocol.TypeSettingsUpdated))

	if err := rest.Health(ctx); err != nil {
		logger.Warn().Err(err).Str("server", cfg.ServerURL).Msg("server health check failed")
	}
	go func() {
		loadSettings(ctx, rest, logger)
		if err := refresher.Refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("initial history load failed")
		}
	}()

	live.OnStateChange(func(s transport.State) {
		logger.Info().Str("state", s.String()).Int("attempt", live.Attempt()).Msg("live connection")
	})
	live.Start(ctx)

	srv := server.New(server.Deps{
		View:     view,
		Conn:     live,
		Feed:     live,
		History:  cache,
		Controls: rest,
		Metrics:  metrics,
		Logger:   logging.Component(logger, "server"),
	})
	go func() {
		if err := server.Serve(ctx, cfg.StatusAddr, srv.Router(), logging.Component(logger, "server")); err != nil {
			logger.Error().Err(err).Msg("status API stopped")
		}
	}()

	if headless {
		return runHeadless(ctx, live, view, logger)
	}

	nav, err := urlstate.NewHistory(tui.PathLive)
	if err != nil {
		return err
	}
	err = tui.Run(ctx, tui.Deps{
		View:        view,
		Controls:    rest,
		History:     cache,
		Nav:         nav,
		SearchDelay: cfg.ParsedSearchDebounce(),
	}, level.NewSampler(view, cfg.RenderFPS), refresher)
	stop()
	return err
}

// runHeadless logs session changes until ctx is cancelled or the connection
// gives up.
func runHeadless(ctx context.Context, live *client.Client, view *session.View, logger zerolog.Logger) error {
	log := logging.Component(logger, "headless")
	view.OnChange(func(s session.Snapshot) {
		ev := log.Info().Str("status", string(s.Status)).Str("session_id", s.SessionID)
		if s.Notice != nil {
			ev = ev.Str("notice", s.Notice.Message)
		}
		ev.Str("final", s.FinalText).Str("interim", s.InterimText).Msg("session")
	})

	unsubscribe := live.Subscribe(func(msg protocol.Message) error {
		switch m := msg.(type) {
		case *protocol.SessionFinished:
			ev := log.Info().Str("session_id", m.Session())
			if m.Record != nil {
				ev = ev.Float64("duration", m.Record.Duration)
			}
			ev.Msg("session finished")
		case *protocol.DownloadProgress:
			log.Info().Str("model", m.Model).Float64("progress", m.Progress).Msg("model download")
		case *protocol.DownloadComplete:
			log.Info().Str("model", m.Model).Msg("model download complete")
		case *protocol.DownloadError:
			log.Warn().Str("model", m.Model).Str("error", m.Message).Msg("model download failed")
		}
		return nil
	})
	defer unsubscribe()

	log.Info().Str("client_id", live.ID()).Msg("wispr-live running headless")
	select {
	case <-ctx.Done():
	case <-live.Done():
		if err := live.LastError(); err != nil {
			return fmt.Errorf("live connection closed: %w", err)
		}
	}
	return nil
}

func loadSettings(ctx context.Context, rest *api.Client, logger zerolog.Logger) {
	settings, err := rest.Settings(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("settings unavailable")
		return
	}
	logger.Info().Str("hotkey", settings.Hotkey).Interface("features", settings.Features).Msg("server settings")
}
