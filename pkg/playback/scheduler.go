// Package playback schedules decoded model audio back-to-back so bursty
// network delivery plays without gaps or overlaps.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-pixel/pkg/pcm"
)

// Unit is a decoded buffer with its scheduled start time.
type Unit struct {
	ID       uint64
	Buffer   *pcm.Buffer
	Start    time.Duration
	Duration time.Duration
}

// End returns the time playback of u finishes.
func (u *Unit) End() time.Duration {
	return u.Start + u.Duration
}

// Player renders scheduled units.
//
// Play must not block and must not call ended synchronously. ended is called
// once when u finishes naturally; it is never called for a stopped unit.
type Player interface {
	Play(u *Unit, ended func(*Unit))
	Stop(u *Unit)
}

// Scheduler owns the playback cursor and the set of in-flight units.
// It is safe for concurrent use.
type Scheduler struct {
	clock  Clock
	player Player
	logger *slog.Logger

	mu     sync.Mutex
	next   time.Duration // 0 means "now"
	active map[*Unit]struct{}
	seq    uint64
}

// NewScheduler creates a scheduler rendering through player.
func NewScheduler(clock Clock, player Player, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:  clock,
		player: player,
		logger: logger,
		active: make(map[*Unit]struct{}),
	}
}

// Schedule queues buf to start when the previous unit ends, or now if the
// cursor is behind the clock, and advances the cursor by its duration.
func (s *Scheduler) Schedule(buf *pcm.Buffer) *Unit {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.next, s.clock.Now())
	s.seq++
	u := &Unit{
		ID:       s.seq,
		Buffer:   buf,
		Start:    start,
		Duration: buf.Duration(),
	}
	s.next = u.End()
	s.active[u] = struct{}{}

	// Under the lock so a concurrent Flush never misses a unit.
	s.player.Play(u, s.Ended)
	return u
}

// Ended removes u from the active set. Players call it on natural completion.
func (s *Scheduler) Ended(u *Unit) {
	s.mu.Lock()
	delete(s.active, u)
	s.mu.Unlock()
}

// Flush stops every active unit, empties the active set and resets the
// cursor so the next unit starts from the current clock.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.active)
	for u := range s.active {
		s.player.Stop(u)
	}
	clear(s.active)
	s.next = 0

	if n > 0 {
		s.logger.Debug("playback flushed", "units", n)
	}
}

// Active returns the number of units scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the cursor; zero means the next unit starts immediately.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
