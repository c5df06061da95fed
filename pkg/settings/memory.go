package settings

import (
	"context"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu        sync.RWMutex
	telegram  map[string]string
	reminders map[string]Reminder
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		telegram:  make(map[string]string),
		reminders: make(map[string]Reminder),
	}
}

// TelegramID implements Store.
func (m *Memory) TelegramID(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.telegram[userID]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

// SetTelegramID implements Store.
func (m *Memory) SetTelegramID(_ context.Context, userID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if chatID == "" {
		delete(m.telegram, userID)
		return nil
	}
	m.telegram[userID] = chatID
	return nil
}

// SaveReminder implements Store.
func (m *Memory) SaveReminder(_ context.Context, r Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders[r.ID] = r
	return nil
}

// DeleteReminder implements Store.
func (m *Memory) DeleteReminder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reminders, id)
	return nil
}

// Reminders implements Store.
func (m *Memory) Reminders(_ context.Context) ([]Reminder, error) {
	m.mu.RLock()
	out := make([]Reminder, 0, len(m.reminders))
	for _, r := range m.reminders {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sortReminders(out)
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
