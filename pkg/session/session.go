package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-pixel/pkg/audioio"
	"github.com/teslashibe/go-pixel/pkg/live"
	"github.com/teslashibe/go-pixel/pkg/pcm"
	"github.com/teslashibe/go-pixel/pkg/playback"
	"github.com/teslashibe/go-pixel/pkg/tools"
)

// Session is one conversation. It is created by Manager.Start and ended by
// Stop, a remote close, or a failure.
type Session struct {
	ID        string
	UserID    string
	StartedAt time.Time

	m      *Manager
	cb     Callbacks
	logger *slog.Logger

	// ctx scopes the session goroutines; cancel is called during teardown.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	source    audioio.Source
	sink      audioio.Sink
	channel   live.Channel
	scheduler *playback.Scheduler
	userText  strings.Builder
	modelText strings.Builder

	errOnce sync.Once
	queue   chan pcm.WireChunk
}

func newSession(m *Manager, cb Callbacks, userID string) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        id,
		UserID:    userID,
		StartedAt: time.Now(),
		m:         m,
		cb:        cb,
		logger:    m.logger.With("session_id", id),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateStarting,
		queue:     make(chan pcm.WireChunk, m.cfg.SendQueue),
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has returned to Idle.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// PlaybackActive returns the number of model audio units scheduled or playing.
func (s *Session) PlaybackActive() int {
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()
	if sched == nil {
		return 0
	}
	return sched.Active()
}

func (s *Session) active() bool {
	return s.State() == StateActive
}

// adopt stores a resource acquired while starting. It reports false, and
// the caller must release the resource itself, if a stop won the race.
func (s *Session) adopt(set func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStarting {
		return false
	}
	set()
	return true
}

// start acquires capture, playback and the channel in that order. Every
// acquisition re-checks the state, so a concurrent Stop wins cleanly.
func (s *Session) start(ctx context.Context) error {
	// Cancelling the caller's ctx aborts a start still in progress. Devices
	// run under the session ctx; only the dial is bounded by ctx.
	defer context.AfterFunc(ctx, s.abortStart)()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(s.ctx, cancel)()

	cfg := s.m.cfg
	s.logger.Info("starting session", "user_id", s.UserID, "model", cfg.Setup.Model)

	src, err := s.m.newSource(cfg.Capture, s.logger)
	if err != nil {
		return s.fail(KindDevice, fmt.Errorf("open capture: %w", err))
	}
	if !s.adopt(func() { s.source = src }) {
		_ = src.Close()
		return ErrStopped
	}
	if err := src.Start(s.ctx); err != nil {
		if s.State() != StateStarting {
			return ErrStopped
		}
		kind := KindDevice
		if errors.Is(err, audioio.ErrPermissionDenied) {
			kind = KindPermissionDenied
		}
		return s.fail(kind, fmt.Errorf("start capture: %w", err))
	}

	sink, err := s.m.newSink(cfg.Playback, s.logger)
	if err != nil {
		return s.fail(KindDevice, fmt.Errorf("open playback: %w", err))
	}
	if !s.adopt(func() { s.sink = sink }) {
		_ = sink.Close()
		return ErrStopped
	}
	if err := sink.Start(s.ctx); err != nil {
		if s.State() != StateStarting {
			return ErrStopped
		}
		return s.fail(KindDevice, fmt.Errorf("start playback: %w", err))
	}
	player := playback.NewSinkPlayer(sink, s.m.clock, s.logger)
	scheduler := playback.NewScheduler(s.m.clock, player, s.logger)

	ch, err := s.m.dialer.Dial(ctx, cfg.Setup)
	if err != nil {
		if s.State() != StateStarting {
			return ErrStopped
		}
		return s.fail(KindChannelOpen, err)
	}
	if !s.adopt(func() {
		s.channel = ch
		s.scheduler = scheduler
		s.state = StateActive
	}) {
		_ = ch.Close()
		return ErrStopped
	}

	go player.Run(s.ctx)
	go s.capture(src.Stream())
	go s.send(ch)
	go s.receive(ch, scheduler)

	s.logger.Info("session active")
	return nil
}

func (s *Session) abortStart() {
	if s.State() == StateStarting {
		s.logger.Info("start cancelled")
		s.Stop()
	}
}

// fail reports a lifecycle failure once and tears the session down. A
// failure observed while already stopping is a consequence of the stop and
// is not reported.
func (s *Session) fail(kind Kind, cause error) error {
	err := &Error{Kind: kind, Cause: cause}
	state := s.State()
	if state == StateStopping || state == StateIdle {
		return err
	}
	s.errOnce.Do(func() {
		s.logger.Error("session failed", "kind", kind, "error", cause)
		s.cb.reportError(err)
	})
	s.Stop()
	return err
}

// Stop ends the session. It is idempotent, safe from any goroutine
// including callbacks, and does not wait for session goroutines.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateStopping || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	ch, src, sink, sched := s.channel, s.source, s.sink, s.scheduler
	s.channel, s.source, s.sink = nil, nil, nil
	s.mu.Unlock()

	s.logger.Info("stopping session")
	if err := s.teardown(ch, src, sink, sched); err != nil {
		s.logger.Error("session teardown", "error", err)
	}

	s.cb.sessionEnd()

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.m.release(s)
	close(s.done)

	s.logger.Info("session ended", "duration", time.Since(s.StartedAt).Round(time.Millisecond))
}

// teardown releases everything, continuing past individual failures.
func (s *Session) teardown(ch live.Channel, src audioio.Source, sink audioio.Sink, sched *playback.Scheduler) error {
	var errs []error

	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, live.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if src != nil {
		if err := src.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop capture: %w", err))
		}
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close capture: %w", err))
		}
	}

	s.cancel()

	if sched != nil {
		sched.Flush()
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close playback: %w", err))
		}
	}

	return errors.Join(errs...)
}

// capture measures and encodes each frame, in capture order, onto the
// send queue.
func (s *Session) capture(frames <-chan audioio.Frame) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				// The source stops itself when the device goes away.
				if s.active() {
					s.fail(KindDevice, fmt.Errorf("capture ended: %w", audioio.ErrDeviceUnavailable))
				}
				return
			}
			if !s.active() {
				return
			}
			s.cb.audioLevel(pcm.RMS(frame.Samples))
			chunk := pcm.EncodeRate(frame.Samples, frame.SampleRate)

			select {
			case s.queue <- chunk:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *Session) send(ch live.Channel) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case chunk := <-s.queue:
			if !s.active() {
				return
			}
			if err := ch.SendAudio(s.ctx, chunk); err != nil {
				s.channelError(err)
				return
			}
		}
	}
}

func (s *Session) receive(ch live.Channel, sched *playback.Scheduler) {
	for {
		msg, err := ch.Receive(s.ctx)
		if err != nil {
			s.channelError(err)
			return
		}
		if !s.active() {
			return
		}
		s.handle(ch, sched, msg)
	}
}

// channelError ends the session after a send or receive failure. An
// orderly remote close is not an error.
func (s *Session) channelError(err error) {
	if !s.active() || s.ctx.Err() != nil {
		return
	}
	if errors.Is(err, live.ErrClosed) {
		s.logger.Info("live channel closed by remote")
		s.Stop()
		return
	}
	s.fail(KindTransport, err)
}

func (s *Session) handle(ch live.Channel, sched *playback.Scheduler, msg *live.ServerMessage) {
	for _, call := range msg.ToolCalls {
		go s.runTool(ch, call)
	}

	if msg.InputTranscription != "" {
		s.mu.Lock()
		s.userText.WriteString(msg.InputTranscription)
		text := s.userText.String()
		s.mu.Unlock()
		s.cb.userTranscription(text)
	}
	if msg.OutputTranscription != "" {
		s.mu.Lock()
		s.modelText.WriteString(msg.OutputTranscription)
		text := s.modelText.String()
		s.mu.Unlock()
		s.cb.modelTranscription(text)
	}
	if msg.TurnComplete {
		s.mu.Lock()
		s.userText.Reset()
		s.modelText.Reset()
		s.mu.Unlock()
	}

	for _, data := range msg.Audio {
		if !s.active() {
			return
		}
		buf := pcm.Decode(data, s.m.cfg.Setup.OutputRate, 1)
		if buf.Frames() == 0 {
			continue
		}
		sched.Schedule(buf)
	}

	if msg.Interrupted {
		s.logger.Debug("model interrupted, flushing playback")
		sched.Flush()
	}

	if msg.GoAway {
		s.logger.Warn("server going away")
	}
}

// runTool answers one function call. A stop does not cancel the side
// effect; the result is dropped if the session ended meanwhile.
func (s *Session) runTool(ch live.Channel, call tools.Call) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), toolTimeout)
	defer cancel()

	res := s.m.tools.Handle(ctx, call, s.UserID)
	if !s.active() {
		s.logger.Debug("discarding function result after session end", "call_id", call.ID)
		return
	}
	if err := ch.SendToolResults(s.ctx, res); err != nil {
		s.channelError(err)
	}
}
