package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start opens the output device.
	Start(ctx context.Context) error

	// Write sends samples at Config().SampleRate to the output device.
	// This may block while the device buffer is full.
	Write(ctx context.Context, samples []float32) error

	// Clear discards all buffered audio immediately.
	// Use this to interrupt playback (e.g., when the model is interrupted).
	Clear() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "alsa", "mock").
	Name() string

	// Close releases all resources. It is safe to call Close multiple times.
	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	// WritesTotal is the total number of writes accepted.
	WritesTotal int64 `json:"writes_total"`

	// SamplesWritten is the total number of samples written.
	SamplesWritten int64 `json:"samples_written"`

	// Clears is the number of times buffered audio was discarded.
	Clears int64 `json:"clears"`

	// Running indicates if the sink is currently open.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
