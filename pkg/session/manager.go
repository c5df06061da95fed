// Package session runs one voice conversation at a time: microphone capture
// streamed to a live channel, model audio scheduled for playback, transcripts
// and function calls surfaced to the caller.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-pixel/pkg/audioio"
	"github.com/teslashibe/go-pixel/pkg/live"
	"github.com/teslashibe/go-pixel/pkg/pcm"
	"github.com/teslashibe/go-pixel/pkg/playback"
	"github.com/teslashibe/go-pixel/pkg/tools"
)

// DefaultSendQueue is the capacity of the outbound audio queue.
const DefaultSendQueue = 32

// toolTimeout bounds one function call, which outlives a stop.
const toolTimeout = 30 * time.Second

// SourceFactory opens a capture device. audioio.NewSource satisfies it.
type SourceFactory func(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error)

// SinkFactory opens a playback device. audioio.NewSink satisfies it.
type SinkFactory func(cfg audioio.Config, logger *slog.Logger) (audioio.Sink, error)

// ToolHandler answers function calls. *tools.Router satisfies it.
type ToolHandler interface {
	Handle(ctx context.Context, call tools.Call, userID string) tools.Result
}

// Config configures sessions started by a Manager.
type Config struct {
	Setup    live.Setup
	Capture  audioio.Config
	Playback audioio.Config

	// SendQueue bounds captured chunks waiting to be sent.
	SendQueue int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithSourceFactory overrides how capture devices are opened.
func WithSourceFactory(f SourceFactory) Option {
	return func(m *Manager) { m.newSource = f }
}

// WithSinkFactory overrides how playback devices are opened.
func WithSinkFactory(f SinkFactory) Option {
	return func(m *Manager) { m.newSink = f }
}

// WithClock sets the playback clock.
func WithClock(c playback.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// Manager enforces a single active session.
type Manager struct {
	cfg    Config
	dialer live.Dialer
	tools  ToolHandler

	newSource SourceFactory
	newSink   SinkFactory
	clock     playback.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager that dials through dialer and answers
// function calls with handler.
func NewManager(cfg Config, dialer live.Dialer, handler ToolHandler, opts ...Option) *Manager {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = DefaultSendQueue
	}
	if cfg.Setup.OutputRate <= 0 {
		cfg.Setup.OutputRate = pcm.PlaybackRate
	}
	m := &Manager{
		cfg:       cfg,
		dialer:    dialer,
		tools:     handler,
		newSource: audioio.NewSource,
		newSink:   audioio.NewSink,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		m.clock = playback.NewSystemClock()
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Start acquires the microphone, opens the live channel and begins
// streaming. It returns once the session is Active.
//
// If a session already exists, Start returns ErrAlreadyActive and touches
// nothing. Any other failure is reported through cb.OnError, the session is
// torn down, and the same *Error is returned.
func (m *Manager) Start(ctx context.Context, cb Callbacks, userID string) (*Session, error) {
	m.mu.Lock()
	if m.current != nil {
		state := m.current.State()
		m.mu.Unlock()
		m.logger.Warn("session already active, ignoring start", "state", state)
		return nil, ErrAlreadyActive
	}
	s := newSession(m, cb, userID)
	m.current = s
	m.mu.Unlock()

	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the live session, or nil when idle.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// State returns the state of the current session, or StateIdle.
func (m *Manager) State() State {
	if s := m.Current(); s != nil {
		return s.State()
	}
	return StateIdle
}

// Stop stops the current session, if any.
func (m *Manager) Stop() {
	if s := m.Current(); s != nil {
		s.Stop()
	}
}

// release forgets s once it is Idle.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
}
