package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the Badger store.
type BadgerOptions struct {
	// Dir is the data directory. Required unless InMemory is set.
	Dir string

	// InMemory keeps all data in memory.
	InMemory bool

	// Logger receives badger warnings and errors. Nil uses slog.Default.
	Logger *slog.Logger
}

// OpenBadger opens (or creates) a Badger store.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("settings: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger.With("component", "badger")})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("settings: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *Badger) set(key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (b *Badger) delete(key []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// TelegramID implements Store.
func (b *Badger) TelegramID(_ context.Context, userID string) (string, error) {
	val, err := b.get(telegramKey(userID))
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// SetTelegramID implements Store.
func (b *Badger) SetTelegramID(_ context.Context, userID, chatID string) error {
	if chatID == "" {
		return b.delete(telegramKey(userID))
	}
	return b.set(telegramKey(userID), []byte(chatID))
}

// SaveReminder implements Store.
func (b *Badger) SaveReminder(_ context.Context, r Reminder) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("settings: encode reminder: %w", err)
	}
	return b.set(reminderKey(r.ID), data)
}

// DeleteReminder implements Store.
func (b *Badger) DeleteReminder(_ context.Context, id string) error {
	return b.delete(reminderKey(id))
}

// Reminders implements Store.
func (b *Badger) Reminders(_ context.Context) ([]Reminder, error) {
	prefix := []byte(reminderPrefix)
	var out []Reminder
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var r Reminder
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("settings: decode reminder %s: %w", it.Item().Key(), err)
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortReminders(out)
	return out, nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func sortReminders(rs []Reminder) {
	slices.SortFunc(rs, func(a, b Reminder) int {
		return a.DueAt.Compare(b.DueAt)
	})
}

// badgerLogger routes badger warnings and errors to slog and drops the rest.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Error(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn(fmt.Sprintf(f, v...)) }
func (badgerLogger) Infof(string, ...interface{})          {}
func (badgerLogger) Debugf(string, ...interface{})         {}

var _ Store = (*Badger)(nil)
