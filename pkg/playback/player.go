package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-pixel/pkg/audioio"
)

// writeChunk bounds how much audio is handed to the sink per write, which
// bounds how late a Stop can take effect.
const writeChunk = 100 * time.Millisecond

type entry struct {
	unit   *Unit
	ended  func(*Unit)
	cancel chan struct{}
}

// SinkPlayer renders units to an audioio.Sink in start-time order from a
// single goroutine started with Run.
type SinkPlayer struct {
	sink   audioio.Sink
	clock  Clock
	logger *slog.Logger

	mu      sync.Mutex
	queue   []*entry
	byUnit  map[*Unit]*entry
	current *entry
	wake    chan struct{}
}

// NewSinkPlayer creates a player writing to sink. clock must be the same
// clock the Scheduler uses.
func NewSinkPlayer(sink audioio.Sink, clock Clock, logger *slog.Logger) *SinkPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SinkPlayer{
		sink:   sink,
		clock:  clock,
		logger: logger,
		byUnit: make(map[*Unit]*entry),
		wake:   make(chan struct{}, 1),
	}
}

// Play enqueues u.
func (p *SinkPlayer) Play(u *Unit, ended func(*Unit)) {
	e := &entry{unit: u, ended: ended, cancel: make(chan struct{})}

	p.mu.Lock()
	p.queue = append(p.queue, e)
	p.byUnit[u] = e
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stop cancels u. If u is being written, buffered sink audio is discarded.
func (p *SinkPlayer) Stop(u *Unit) {
	p.mu.Lock()
	e, ok := p.byUnit[u]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.byUnit, u)
	close(e.cancel)
	playing := p.current == e
	for i, q := range p.queue {
		if q == e {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if playing {
		if err := p.sink.Clear(); err != nil {
			p.logger.Warn("sink clear failed", "error", err)
		}
	}
}

// Pending returns the number of queued or playing units.
func (p *SinkPlayer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byUnit)
}

// Run plays units until ctx is cancelled.
func (p *SinkPlayer) Run(ctx context.Context) {
	for {
		e := p.dequeue()
		if e == nil {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				continue
			}
		}

		if p.play(ctx, e) {
			e.ended(e.unit)
		}

		p.mu.Lock()
		p.current = nil
		delete(p.byUnit, e.unit)
		p.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
	}
}

func (p *SinkPlayer) dequeue() *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	e := p.queue[0]
	p.queue = p.queue[1:]
	p.current = e
	return e
}

// play writes e at its start time and reports whether it ran to completion.
func (p *SinkPlayer) play(ctx context.Context, e *entry) bool {
	if !p.waitUntil(ctx, e, e.unit.Start) {
		return false
	}

	samples := mono(e.unit)
	rate := e.unit.Buffer.SampleRate
	if sinkRate := p.sink.Config().SampleRate; sinkRate > 0 && sinkRate != rate {
		samples = audioio.Resample(samples, rate, sinkRate)
		rate = sinkRate
	}

	step := int(int64(rate) * int64(writeChunk) / int64(time.Second))
	if step <= 0 {
		step = len(samples)
	}
	for off := 0; off < len(samples); off += step {
		select {
		case <-e.cancel:
			return false
		case <-ctx.Done():
			return false
		default:
		}
		if err := p.sink.Write(ctx, samples[off:min(off+step, len(samples))]); err != nil {
			p.logger.Warn("sink write failed", "unit", e.unit.ID, "error", err)
			return false
		}
	}

	return p.waitUntil(ctx, e, e.unit.End())
}

func (p *SinkPlayer) waitUntil(ctx context.Context, e *entry, at time.Duration) bool {
	d := at - p.clock.Now()
	if d <= 0 {
		select {
		case <-e.cancel:
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-e.cancel:
		return false
	case <-ctx.Done():
		return false
	}
}

func mono(u *Unit) []float32 {
	b := u.Buffer
	switch len(b.Channels) {
	case 0:
		return nil
	case 1:
		return b.Channels[0]
	}
	out := make([]float32, b.Frames())
	for _, ch := range b.Channels {
		for i, s := range ch {
			out[i] += s / float32(len(b.Channels))
		}
	}
	return out
}
