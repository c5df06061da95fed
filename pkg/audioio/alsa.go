//go:build linux

package audioio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-pixel/pkg/pcm"
)

// startTimeout bounds how long Start waits for the first captured frame.
const startTimeout = 3 * time.Second

// Process constructors, swapped in tests.
var (
	recordCommand = exec.Command
	playCommand   = exec.Command
)

// ALSASource captures audio by streaming raw float samples from arecord.
type ALSASource struct {
	cfg    Config
	logger *slog.Logger
	device string

	mu       sync.Mutex
	running  bool
	closed   bool
	cmd      *exec.Cmd
	streamCh chan Frame
	stopCh   chan struct{}

	// Stats
	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// newALSASource creates a new ALSA audio source.
func newALSASource(cfg Config, logger *slog.Logger) (Source, error) {
	if _, err := exec.LookPath("arecord"); err != nil {
		return nil, fmt.Errorf("%w: arecord not found: %v", ErrDeviceUnavailable, err)
	}

	device := cfg.Device
	if device == "" {
		device = "default"
	}

	return &ALSASource{
		cfg:      cfg,
		logger:   logger,
		device:   device,
		streamCh: make(chan Frame, 16),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start opens the capture device and waits for the first frame so that
// permission and device errors surface here rather than mid-stream.
func (s *ALSASource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}

	rate := s.cfg.DeviceRate()
	cmd := recordCommand("arecord", "-q",
		"-D", s.device,
		"-t", "raw",
		"-f", "FLOAT_LE",
		"-r", strconv.Itoa(rate),
		"-c", strconv.Itoa(s.cfg.Channels),
	)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return classifyDeviceError(err, "")
	}

	s.cmd = cmd
	s.running = true
	s.stopCh = make(chan struct{})
	s.streamCh = make(chan Frame, 16)
	ready := make(chan error, 1)
	go s.captureLoop(cmd, stderr, stdout, s.streamCh, ready)
	s.mu.Unlock()

	select {
	case err := <-ready:
		if err != nil {
			s.Stop()
			return err
		}
	case <-time.After(startTimeout):
		s.Stop()
		return fmt.Errorf("%w: no audio from %s after %v", ErrDeviceUnavailable, s.device, startTimeout)
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	}

	s.logger.Info("ALSA audio source started",
		"device", s.device,
		"rate", rate,
	)
	return nil
}

// captureLoop owns the process: it is the only caller of cmd.Wait.
func (s *ALSASource) captureLoop(cmd *exec.Cmd, stderr *bytes.Buffer, r io.Reader, out chan Frame, ready chan<- error) {
	defer cmd.Wait()

	deviceRate := s.cfg.DeviceRate()
	deviceFrame := s.cfg.FrameSize * deviceRate / s.cfg.SampleRate
	raw := make([]byte, deviceFrame*s.cfg.Channels*4)
	first := true

	for {
		if _, err := io.ReadFull(r, raw); err != nil {
			if first {
				_ = cmd.Wait()
				ready <- classifyDeviceError(err, stderr.String())
				return
			}
			s.streamLost(cmd, err)
			return
		}
		if first {
			first = false
			ready <- nil
		}

		samples := make([]float32, len(raw)/4)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		if s.cfg.Channels == 2 {
			samples = StereoToMono(samples)
		}
		samples = Resample(samples, deviceRate, s.cfg.SampleRate)

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		select {
		case out <- Frame{Samples: samples, SampleRate: s.cfg.SampleRate}:
			s.framesRead.Add(1)
			s.samplesRead.Add(int64(len(samples)))
		default:
			s.overruns.Add(1)
		}
		s.mu.Unlock()
	}
}

// streamLost stops the source after arecord exits on its own. Closing the
// stream is how the consumer learns the device is gone.
func (s *ALSASource) streamLost(cmd *exec.Cmd, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cmd != cmd {
		return
	}
	s.running = false
	s.cmd = nil
	close(s.stopCh)
	close(s.streamCh)

	s.logger.Warn("ALSA capture stream lost", "device", s.device, "error", err)
}

// classifyDeviceError maps arecord/aplay failures onto package errors.
func classifyDeviceError(err error, stderr string) error {
	msg := strings.ToLower(stderr)
	if strings.Contains(msg, "permission denied") || strings.Contains(msg, "operation not permitted") {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(stderr))
	}
	if stderr != "" {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, strings.TrimSpace(stderr))
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// Stop halts capture and kills the arecord process.
func (s *ALSASource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	close(s.streamCh)

	var err error
	if s.cmd != nil && s.cmd.Process != nil {
		err = s.cmd.Process.Kill()
	}
	s.cmd = nil

	s.logger.Info("ALSA audio source stopped", "device", s.device)
	return err
}

// Stream returns the frame channel.
func (s *ALSASource) Stream() <-chan Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *ALSASource) Config() Config {
	return s.cfg
}

// Name returns "alsa".
func (s *ALSASource) Name() string {
	return "alsa"
}

// Close releases resources.
func (s *ALSASource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns source statistics.
func (s *ALSASource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		FramesRead:  s.framesRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "alsa",
	}
}

var _ SourceWithStats = (*ALSASource)(nil)

// ALSASink plays PCM16 through an aplay process.
// Clear kills the process; the next Write starts a fresh one.
type ALSASink struct {
	cfg    Config
	logger *slog.Logger
	device string

	// writeMu serialises writers; mu is never held across a pipe write so
	// Clear can interrupt one.
	writeMu sync.Mutex
	mu      sync.Mutex
	running bool
	closed  bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	writes         atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

// newALSASink creates a new ALSA audio sink.
func newALSASink(cfg Config, logger *slog.Logger) (Sink, error) {
	if _, err := exec.LookPath("aplay"); err != nil {
		return nil, fmt.Errorf("%w: aplay not found: %v", ErrDeviceUnavailable, err)
	}

	device := cfg.Device
	if device == "" {
		device = "default"
	}

	return &ALSASink{
		cfg:    cfg,
		logger: logger,
		device: device,
	}, nil
}

// Start marks the sink open. The aplay process is started lazily.
func (s *ALSASink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	return nil
}

// startStreamLocked launches aplay (must hold mu).
func (s *ALSASink) startStreamLocked() error {
	cmd := playCommand("aplay", "-q",
		"-D", s.device,
		"-t", "raw",
		"-f", "S16_LE",
		"-r", strconv.Itoa(s.cfg.DeviceRate()),
		"-c", "1",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return classifyDeviceError(err, "")
	}
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

// stopStreamLocked kills the playback process (must hold mu).
func (s *ALSASink) stopStreamLocked() error {
	var err error
	if s.stdin != nil {
		err = s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		if kerr := s.cmd.Process.Kill(); kerr != nil && err == nil {
			err = kerr
		}
		_ = s.cmd.Wait()
	}
	s.cmd = nil
	return err
}

// Write streams samples to aplay. A Clear during the write aborts it.
func (s *ALSASink) Write(ctx context.Context, samples []float32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed || !s.running {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	if s.cmd == nil {
		if err := s.startStreamLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	stdin := s.stdin
	s.mu.Unlock()

	samples = Resample(samples, s.cfg.SampleRate, s.cfg.DeviceRate())
	if _, err := stdin.Write(pcm.EncodePCM16(samples)); err != nil {
		s.mu.Lock()
		// Pipeline died, restart on next write. After a Clear it is
		// already gone.
		if s.stdin == stdin {
			_ = s.stopStreamLocked()
		}
		s.mu.Unlock()
		return fmt.Errorf("write to aplay: %w", err)
	}

	s.writes.Add(1)
	s.samplesWritten.Add(int64(len(samples)))
	return nil
}

// Clear discards buffered audio by restarting the playback process.
func (s *ALSASink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clears.Add(1)
	return s.stopStreamLocked()
}

// Config returns the audio configuration.
func (s *ALSASink) Config() Config {
	return s.cfg
}

// Name returns "alsa".
func (s *ALSASink) Name() string {
	return "alsa"
}

// Close stops playback and releases the device.
func (s *ALSASink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.running = false
	return s.stopStreamLocked()
}

// Stats returns sink statistics.
func (s *ALSASink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		WritesTotal:    s.writes.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Clears:         s.clears.Load(),
		Running:        running,
		Backend:        "alsa",
	}
}

var _ SinkWithStats = (*ALSASink)(nil)
