// Package web serves the Pixel HTTP API and the live event stream.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-pixel/pkg/hub"
	"github.com/teslashibe/go-pixel/pkg/session"
	"github.com/teslashibe/go-pixel/pkg/settings"
	"github.com/teslashibe/go-pixel/pkg/tools"
)

// Sessions controls voice sessions. *session.Manager satisfies it.
type Sessions interface {
	Start(ctx context.Context, cb session.Callbacks, userID string) (*session.Session, error)
	Stop()
	Current() *session.Session
	State() session.State
}

// Reminders schedules and cancels reminders. *reminder.Scheduler satisfies it.
type Reminders interface {
	Schedule(ctx context.Context, userID, message string, delay time.Duration) (string, error)
	Cancel(ctx context.Context, id string) error
}

// Options wires the server's dependencies. Only Hub is required; routes
// whose dependency is nil answer 503.
type Options struct {
	Sessions  Sessions
	Settings  settings.Store
	Messenger tools.Messenger
	Reminders Reminders
	Hub       *hub.Hub
	Logger    *slog.Logger

	// StaticDir, when set, is served at /.
	StaticDir string
}

// Server is the HTTP API.
type Server struct {
	app  *fiber.App
	opts Options
	log  *slog.Logger

	// Last transcripts, replayed to clients on connect.
	mu        sync.RWMutex
	lastUser  string
	lastModel string
}

// NewServer builds the fiber app and its routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts: opts,
		log:  opts.Logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Pixel",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/session", s.handleStartSession)
	api.Delete("/session", s.handleStopSession)
	api.Get("/users/:id/telegram", s.handleGetTelegram)
	api.Put("/users/:id/telegram", s.handleSetTelegram)
	api.Post("/telegram", s.handleSendTelegram)
	api.Get("/reminders", s.handleListReminders)
	api.Post("/reminders", s.handleCreateReminder)
	api.Delete("/reminders/:id", s.handleCancelReminder)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info("web server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("web server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// callbacks forwards session events to websocket clients.
func (s *Server) callbacks() session.Callbacks {
	publish := func(t hub.EventType, data any) {
		if err := s.opts.Hub.Publish(t, data); err != nil {
			s.log.Warn("publish failed", "type", t, "error", err)
		}
	}
	return session.Callbacks{
		OnAudioLevel: func(level float64) {
			publish(hub.EventAudioLevel, fiber.Map{"level": level})
		},
		OnUserTranscription: func(text string) {
			s.mu.Lock()
			s.lastUser = text
			s.mu.Unlock()
			publish(hub.EventUserTranscription, fiber.Map{"text": text})
		},
		OnModelTranscription: func(text string) {
			s.mu.Lock()
			s.lastModel = text
			s.mu.Unlock()
			publish(hub.EventModelTranscription, fiber.Map{"text": text})
		},
		OnSessionEnd: func() {
			publish(hub.EventSessionEnd, nil)
		},
		OnError: func(err error) {
			publish(hub.EventError, fiber.Map{
				"kind":    session.KindOf(err).String(),
				"message": err.Error(),
			})
		},
	}
}

// Notify implements reminder.Notifier by pushing fired reminders to clients.
func (s *Server) Notify(title string, r settings.Reminder) {
	if err := s.opts.Hub.Publish(hub.EventReminder, fiber.Map{
		"title":   title,
		"id":      r.ID,
		"user_id": r.UserID,
		"message": r.Message,
		"due_at":  r.DueAt,
	}); err != nil {
		s.log.Warn("publish reminder failed", "error", err)
	}
}
