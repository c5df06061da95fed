// Package pixel assembles the Pixel voice assistant: settings, Telegram,
// reminders, the function router, voice sessions and the web API.
package pixel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/teslashibe/go-pixel/internal/config"
	"github.com/teslashibe/go-pixel/pkg/hub"
	"github.com/teslashibe/go-pixel/pkg/live"
	"github.com/teslashibe/go-pixel/pkg/live/bundled"
	"github.com/teslashibe/go-pixel/pkg/reminder"
	"github.com/teslashibe/go-pixel/pkg/session"
	"github.com/teslashibe/go-pixel/pkg/settings"
	"github.com/teslashibe/go-pixel/pkg/telegram"
	"github.com/teslashibe/go-pixel/pkg/tools"
	"github.com/teslashibe/go-pixel/pkg/web"
)

// shutdownTimeout bounds the web server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// App owns every long-lived component and their lifecycle.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store     settings.Store
	messenger *telegram.Client
	reminders *reminder.Scheduler
	router    *tools.Router

	mu       sync.Mutex
	dialer   live.Dialer
	sessions *session.Manager
	opts     []session.Option

	hub *hub.Hub
	web *web.Server
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the root logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithStore replaces the configured settings store.
func WithStore(s settings.Store) Option {
	return func(a *App) { a.store = s }
}

// WithDialer replaces the configured live transport.
func WithDialer(d live.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithSessionOptions passes options to the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(a *App) { a.opts = append(a.opts, opts...) }
}

// New creates an App. Call Init before use.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("pixel: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init opens the store and builds the messaging and reminder components.
// Persisted reminders are re-armed.
func (a *App) Init(ctx context.Context) error {
	if a.store == nil {
		store, err := settings.OpenBadger(settings.BadgerOptions{
			Dir:      a.cfg.Store.Dir,
			InMemory: a.cfg.Store.InMemory,
			Logger:   a.logger.With("component", "badger"),
		})
		if err != nil {
			return fmt.Errorf("pixel: open store: %w", err)
		}
		a.store = store
	}

	a.messenger = telegram.New(a.cfg.Telegram.BotToken,
		telegram.WithAPIBase(a.cfg.Telegram.APIBase),
		telegram.WithLogger(a.logger.With("component", "telegram")),
	)
	if !a.messenger.Configured() {
		a.logger.Warn("TELEGRAM_BOT_TOKEN not set, telegram delivery disabled")
	}

	a.reminders = reminder.New(a.store, a.messenger,
		reminder.WithLogger(a.logger.With("component", "reminder")),
	)
	if _, err := a.reminders.Restore(ctx); err != nil {
		return err
	}

	a.router = &tools.Router{
		Messenger:  a.messenger,
		Reminders:  a.reminders,
		Recipients: a.store,
		Logger:     a.logger.With("component", "tools"),
	}
	return nil
}

// Sessions returns the session manager, creating it on first use.
func (a *App) Sessions() *session.Manager {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessions != nil {
		return a.sessions
	}
	if a.dialer == nil {
		d, err := bundled.New(bundled.Config{
			Transport: a.cfg.Gemini.Transport,
			APIKey:    a.cfg.Gemini.APIKey,
			Endpoint:  a.cfg.Gemini.Endpoint,
			Logger:    a.logger.With("component", "live"),
		})
		if err != nil {
			// Sessions fail to open with this error; the rest still works.
			a.logger.Warn("live transport unavailable", "error", err)
			d = failingDialer{err: err}
		}
		a.dialer = d
	}

	setup := live.NewSetup(a.cfg.Gemini.Model, a.cfg.Gemini.Instruction(), a.cfg.Gemini.Voice)
	setup.GoogleSearch = a.cfg.Gemini.GoogleSearch
	setup.InputRate = a.cfg.Audio.Capture.SampleRate
	setup.OutputRate = a.cfg.Audio.Playback.SampleRate

	opts := append([]session.Option{session.WithLogger(a.logger)}, a.opts...)
	a.sessions = session.NewManager(session.Config{
		Setup:     setup,
		Capture:   a.cfg.Audio.Capture,
		Playback:  a.cfg.Audio.Playback,
		SendQueue: a.cfg.Audio.SendQueue,
	}, a.dialer, a.router, opts...)
	return a.sessions
}

// Store returns the settings store.
func (a *App) Store() settings.Store { return a.store }

// Messenger returns the Telegram client.
func (a *App) Messenger() *telegram.Client { return a.messenger }

// Reminders returns the reminder scheduler.
func (a *App) Reminders() *reminder.Scheduler { return a.reminders }

// Serve runs the web API on ln until ctx is cancelled.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.hub = hub.New("events", a.logger)
	go a.hub.Run(ctx)

	a.web = web.NewServer(web.Options{
		Sessions:  a.Sessions(),
		Settings:  a.store,
		Messenger: a.messenger,
		Reminders: a.reminders,
		Hub:       a.hub,
		Logger:    a.logger,
		StaticDir: a.cfg.Web.StaticDir,
	})
	a.reminders.AddNotifier(a.web)

	errCh := make(chan error, 1)
	go func() { errCh <- a.web.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Sessions().Stop()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.web.Shutdown(sctx)
}

// Talk runs one voice session in the foreground until ctx is cancelled or
// the session ends, reporting events through cb.
func (a *App) Talk(ctx context.Context, userID string, cb session.Callbacks) error {
	var failure error
	onError := cb.OnError
	cb.OnError = func(err error) {
		failure = err
		if onError != nil {
			onError(err)
		}
	}

	s, err := a.Sessions().Start(ctx, cb, userID)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		s.Stop()
		<-s.Done()
		return nil
	case <-s.Done():
		return failure
	}
}

// Shutdown stops any session and releases every component.
func (a *App) Shutdown() {
	a.mu.Lock()
	sessions := a.sessions
	a.mu.Unlock()
	if sessions != nil {
		sessions.Stop()
	}
	if a.reminders != nil {
		a.reminders.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("close store", "error", err)
		}
	}
}

// failingDialer reports why no transport could be built.
type failingDialer struct{ err error }

func (d failingDialer) Dial(context.Context, live.Setup) (live.Channel, error) {
	return nil, d.err
}
