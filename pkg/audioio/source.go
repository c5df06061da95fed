package audioio

import (
	"context"
	"errors"
	"io"
	"time"
)

// Errors returned when a device cannot be acquired.
var (
	// ErrPermissionDenied indicates access to the device was refused.
	ErrPermissionDenied = errors.New("audioio: permission denied")

	// ErrDeviceUnavailable indicates the device could not be opened.
	ErrDeviceUnavailable = errors.New("audioio: device unavailable")
)

// Frame is a fixed-size buffer of captured float32 samples in [-1, 1].
type Frame struct {
	// Samples holds interleaved samples.
	Samples []float32

	// SampleRate is the sample rate of this frame.
	SampleRate int
}

// Duration returns the duration of this frame for mono audio.
func (f Frame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start acquires the device and begins capture.
	// It fails with ErrPermissionDenied or ErrDeviceUnavailable.
	Start(ctx context.Context) error

	// Stop halts audio capture and releases the device.
	// It is safe to call Stop multiple times.
	Stop() error

	// Stream returns a channel that receives frames in capture order.
	// The channel is closed when the source is stopped.
	Stream() <-chan Frame

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "alsa", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// FramesRead is the total number of frames delivered.
	FramesRead int64 `json:"frames_read"`

	// SamplesRead is the total number of samples delivered.
	SamplesRead int64 `json:"samples_read"`

	// Overruns is the number of frames dropped because the consumer lagged.
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
