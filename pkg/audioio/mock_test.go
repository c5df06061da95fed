package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func testCaptureConfig() Config {
	cfg := DefaultCaptureConfig()
	cfg.Backend = BackendMock
	cfg.FrameSize = 160 // 10ms at 16kHz
	return cfg
}

func TestMockSource_StartStop(t *testing.T) {
	src := NewMockSource(testCaptureConfig(), nil)
	defer src.Close()

	ctx := context.Background()

	// Start should succeed
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}
	if src.Starts() != 1 {
		t.Errorf("Expected 1 start, got %d", src.Starts())
	}

	// Stop should succeed
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopping again should be a no-op
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
	if src.Stops() != 1 {
		t.Errorf("Expected 1 stop, got %d", src.Stops())
	}
	if src.Running() {
		t.Error("Source should not be running after Stop")
	}
}

func TestMockSource_Stream(t *testing.T) {
	src := NewMockSource(testCaptureConfig(), nil, WithSineWave(440, 0.5))
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case frame, ok := <-src.Stream():
		if !ok {
			t.Fatal("Stream closed unexpectedly")
		}
		if len(frame.Samples) != 160 {
			t.Errorf("Expected 160 samples, got %d", len(frame.Samples))
		}
		if frame.SampleRate != 16000 {
			t.Errorf("Expected sample rate 16000, got %d", frame.SampleRate)
		}
		if frame.Duration() != 10*time.Millisecond {
			t.Errorf("Expected 10ms frame, got %v", frame.Duration())
		}
		var nonZero bool
		for _, s := range frame.Samples {
			if s != 0 {
				nonZero = true
				break
			}
		}
		if !nonZero {
			t.Error("Sine wave frame should not be silent")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for frame")
	}
}

func TestMockSource_StreamClosedOnStop(t *testing.T) {
	src := NewMockSource(testCaptureConfig(), nil, WithManualFrames())
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	stream := src.Stream()
	src.Stop()

	select {
	case _, ok := <-stream:
		if ok {
			t.Error("Expected closed stream")
		}
	case <-time.After(time.Second):
		t.Fatal("Stream was not closed")
	}
}

func TestMockSource_Emit(t *testing.T) {
	src := NewMockSource(testCaptureConfig(), nil, WithManualFrames(), WithStreamBuffer(2))
	defer src.Close()

	if src.Emit([]float32{0.1}) {
		t.Error("Emit should fail before Start")
	}

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !src.Emit([]float32{0.1, 0.2}) {
		t.Fatal("First Emit should succeed")
	}
	if !src.Emit([]float32{0.3}) {
		t.Fatal("Second Emit should succeed")
	}
	// Buffer of 2 is now full
	if src.Emit([]float32{0.4}) {
		t.Error("Emit should report overrun when buffer is full")
	}

	first := <-src.Stream()
	if len(first.Samples) != 2 || first.Samples[0] != 0.1 {
		t.Errorf("Frames delivered out of order: %v", first.Samples)
	}

	stats := src.Stats()
	if stats.FramesRead != 2 {
		t.Errorf("Expected 2 frames read, got %d", stats.FramesRead)
	}
	if stats.Overruns != 1 {
		t.Errorf("Expected 1 overrun, got %d", stats.Overruns)
	}
	if stats.Backend != "mock" {
		t.Errorf("Expected backend 'mock', got %q", stats.Backend)
	}
}

func TestMockSource_StartError(t *testing.T) {
	src := NewMockSource(testCaptureConfig(), nil, WithStartError(ErrPermissionDenied))
	defer src.Close()

	err := src.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Expected ErrPermissionDenied, got %v", err)
	}
	if src.Running() {
		t.Error("Source should not be running after failed Start")
	}
}

func TestMockSource_Close(t *testing.T) {
	src := NewMockSource(testCaptureConfig(), nil)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !src.Closed() {
		t.Error("Closed should report true")
	}

	// Close is idempotent
	if err := src.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}

	if err := src.Start(context.Background()); err != io.ErrClosedPipe {
		t.Errorf("Expected io.ErrClosedPipe after Close, got %v", err)
	}
}

func TestMockSource_ContextCancel(t *testing.T) {
	src := NewMockSource(testCaptureConfig(), nil)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for src.Running() {
		if time.Now().After(deadline) {
			t.Fatal("Source still running after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMockSink_Write(t *testing.T) {
	sink := NewMockSink(DefaultPlaybackConfig(), nil)
	defer sink.Close()

	ctx := context.Background()

	if err := sink.Write(ctx, []float32{0.1}); err != io.ErrClosedPipe {
		t.Errorf("Expected io.ErrClosedPipe before Start, got %v", err)
	}

	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := sink.Write(ctx, []float32{0.1, 0.2}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := sink.Write(ctx, []float32{0.3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	written := sink.Written()
	if len(written) != 2 {
		t.Fatalf("Expected 2 writes, got %d", len(written))
	}

	stats := sink.Stats()
	if stats.WritesTotal != 2 {
		t.Errorf("Expected 2 writes, got %d", stats.WritesTotal)
	}
	if stats.SamplesWritten != 3 {
		t.Errorf("Expected 3 samples, got %d", stats.SamplesWritten)
	}
}

func TestMockSink_Clear(t *testing.T) {
	sink := NewMockSink(DefaultPlaybackConfig(), nil)
	defer sink.Close()

	ctx := context.Background()
	sink.Start(ctx)
	sink.Write(ctx, []float32{0.5})

	if err := sink.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if len(sink.Written()) != 0 {
		t.Error("Clear should discard written audio")
	}
	if sink.Stats().Clears != 1 {
		t.Errorf("Expected 1 clear, got %d", sink.Stats().Clears)
	}
}

func TestMockSink_Close(t *testing.T) {
	sink := NewMockSink(DefaultPlaybackConfig(), nil)
	ctx := context.Background()
	sink.Start(ctx)

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !sink.Closed() {
		t.Error("Closed should report true")
	}
	if err := sink.Write(ctx, []float32{0.1}); err != io.ErrClosedPipe {
		t.Errorf("Expected io.ErrClosedPipe after Close, got %v", err)
	}
	if err := sink.Start(ctx); err != io.ErrClosedPipe {
		t.Errorf("Expected io.ErrClosedPipe restarting closed sink, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default capture", func(c *Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"negative device rate", func(c *Config) { c.DeviceSampleRate = -1 }, true},
		{"zero channels", func(c *Config) { c.Channels = 0 }, true},
		{"zero frame size", func(c *Config) { c.FrameSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCaptureConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := DefaultCaptureConfig()
	if got := cfg.FrameDuration(); got != 256*time.Millisecond {
		t.Errorf("Expected 256ms frame, got %v", got)
	}
	if cfg.DeviceRate() != 16000 {
		t.Errorf("Expected device rate 16000, got %d", cfg.DeviceRate())
	}
	cfg.DeviceSampleRate = 48000
	if cfg.DeviceRate() != 48000 {
		t.Errorf("Expected device rate 48000, got %d", cfg.DeviceRate())
	}
}

func TestNewSource_Mock(t *testing.T) {
	src, err := NewSource(testCaptureConfig(), nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	defer src.Close()
	if src.Name() != "mock" {
		t.Errorf("Expected mock backend, got %q", src.Name())
	}

	bad := testCaptureConfig()
	bad.Channels = 0
	if _, err := NewSource(bad, nil); err == nil {
		t.Error("Expected error for invalid config")
	}
}
