// Package reminder fires scheduled reminders as local notifications and
// Telegram messages, persisting them so they survive a restart.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-pixel/pkg/settings"
	"github.com/teslashibe/go-pixel/pkg/telegram"
)

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("reminder: scheduler closed")

// NotificationTitle is the title of local reminder notifications.
const NotificationTitle = "Pixel AI Reminder"

// deliverTimeout bounds the Telegram delivery of a fired reminder.
const deliverTimeout = 30 * time.Second

// Messenger delivers fired reminders.
type Messenger interface {
	Deliver(ctx context.Context, recipientID, text string) telegram.Outcome
}

// Notifier shows a local notification for a fired reminder.
type Notifier interface {
	Notify(title string, r settings.Reminder)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title string, r settings.Reminder)

// Notify calls f.
func (f NotifierFunc) Notify(title string, r settings.Reminder) { f(title, r) }

// Scheduler arms one timer per pending reminder.
type Scheduler struct {
	store     settings.Store
	messenger Messenger
	logger    *slog.Logger

	mu        sync.Mutex
	notifiers []Notifier
	timers    map[string]*time.Timer
	closed    bool
	wg        sync.WaitGroup
	now       func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithNotifier adds a local notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) {
		s.notifiers = append(s.notifiers, n)
	}
}

// New creates a scheduler. messenger may be nil, in which case fired
// reminders are only notified locally.
func New(store settings.Store, messenger Messenger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		messenger: messenger,
		logger:    slog.Default(),
		timers:    make(map[string]*time.Timer),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNotifier registers n for subsequent reminders.
func (s *Scheduler) AddNotifier(n Notifier) {
	s.mu.Lock()
	s.notifiers = append(s.notifiers, n)
	s.mu.Unlock()
}

// Schedule persists a reminder for userID and fires it after delay.
// It returns the reminder id.
func (s *Scheduler) Schedule(ctx context.Context, userID, message string, delay time.Duration) (string, error) {
	if delay <= 0 {
		return "", fmt.Errorf("reminder: delay must be positive, got %v", delay)
	}

	now := s.now()
	r := settings.Reminder{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   message,
		DueAt:     now.Add(delay),
		CreatedAt: now,
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	if err := s.store.SaveReminder(ctx, r); err != nil {
		return "", fmt.Errorf("reminder: save: %w", err)
	}
	s.arm(r, delay)

	s.logger.Info("reminder scheduled",
		"id", r.ID,
		"user_id", userID,
		"due_at", r.DueAt.Format(time.RFC3339),
	)
	return r.ID, nil
}

// Restore re-arms reminders persisted by a previous process. Overdue
// reminders fire immediately. It returns how many were armed.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	pending, err := s.store.Reminders(ctx)
	if err != nil {
		return 0, fmt.Errorf("reminder: load: %w", err)
	}

	n := 0
	now := s.now()
	for _, r := range pending {
		s.mu.Lock()
		_, armed := s.timers[r.ID]
		s.mu.Unlock()
		if armed {
			continue
		}
		s.arm(r, max(r.DueAt.Sub(now), 0))
		n++
	}
	if n > 0 {
		s.logger.Info("reminders restored", "count", n)
	}
	return n, nil
}

// Cancel disarms and deletes a pending reminder.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	return s.store.DeleteReminder(ctx, id)
}

// Pending returns the number of armed reminders.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close disarms all timers and waits for reminders already firing.
// Pending reminders stay persisted for Restore.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Scheduler) arm(r settings.Reminder, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.timers[r.ID] = time.AfterFunc(delay, func() { s.fire(r) })
}

func (s *Scheduler) fire(r settings.Reminder) {
	s.mu.Lock()
	if _, ok := s.timers[r.ID]; !ok || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, r.ID)
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	log := s.logger.With("id", r.ID, "user_id", r.UserID)
	log.Info("reminder fired", "message", r.Message)

	if err := s.store.DeleteReminder(ctx, r.ID); err != nil {
		log.Error("delete fired reminder failed", "error", err)
	}

	for _, n := range notifiers {
		n.Notify(NotificationTitle, r)
	}

	if s.messenger == nil {
		return
	}
	chatID, err := s.store.TelegramID(ctx, r.UserID)
	if err != nil || chatID == "" {
		log.Warn("telegram user id not set, cannot send reminder via telegram")
		return
	}
	out := s.messenger.Deliver(ctx, chatID, "🔔 Reminder: "+r.Message)
	if !out.OK {
		log.Warn("reminder delivery failed", "result", out.Message)
	}
}
