// Package settings persists per-user configuration and pending reminders.
package settings

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("settings: not found")

// Reminder is a pending reminder.
type Reminder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	DueAt     time.Time `json:"due_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists settings.
type Store interface {
	// TelegramID returns the user's Telegram chat id, or ErrNotFound.
	TelegramID(ctx context.Context, userID string) (string, error)

	// SetTelegramID stores the user's chat id. An empty id removes it.
	SetTelegramID(ctx context.Context, userID, chatID string) error

	// SaveReminder stores or replaces a reminder.
	SaveReminder(ctx context.Context, r Reminder) error

	// DeleteReminder removes a reminder. Deleting a missing reminder is not an error.
	DeleteReminder(ctx context.Context, id string) error

	// Reminders returns all pending reminders ordered by due time.
	Reminders(ctx context.Context) ([]Reminder, error)

	Close() error
}

const (
	telegramPrefix = "telegram:"
	reminderPrefix = "reminder:"
)

func telegramKey(userID string) []byte { return []byte(telegramPrefix + userID) }
func reminderKey(id string) []byte     { return []byte(reminderPrefix + id) }
