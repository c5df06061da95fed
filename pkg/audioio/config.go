// Package audioio provides audio capture and playback devices.
//
// This package supports two backends:
//   - ALSA (Linux) - arecord/aplay processes streaming raw audio
//   - Mock - CI/Testing without hardware
//
// Capture produces fixed-size float32 frames at a steady cadence.
// Playback accepts float32 samples at the configured rate.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendALSA uses Linux ALSA tools for audio I/O.
	BackendALSA Backend = "alsa"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration for one direction (capture or playback).
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (selects best available for platform)
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the rate frames are delivered or accepted at, in Hz.
	// Default: 16000 for capture, 24000 for playback.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// DeviceSampleRate is the rate the hardware runs at.
	// Zero means the same as SampleRate; otherwise audio is resampled.
	DeviceSampleRate int `yaml:"device_sample_rate" json:"device_sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// FrameSize is the number of samples per channel in each captured frame.
	// Default: 4096
	FrameSize int `yaml:"frame_size" json:"frame_size"`

	// Device is the platform-specific device identifier.
	// Examples:
	//   - ALSA: "hw:0,0", "default", "plughw:1,0"
	//   - Mock: ignored
	Device string `yaml:"device" json:"device"`
}

// DefaultCaptureConfig returns the microphone configuration: 16 kHz mono,
// 4096-sample frames.
func DefaultCaptureConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: 16000,
		Channels:   1,
		FrameSize:  4096,
	}
}

// DefaultPlaybackConfig returns the speaker configuration: 24 kHz mono.
func DefaultPlaybackConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: 24000,
		Channels:   1,
		FrameSize:  2400,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.DeviceSampleRate < 0 {
		return fmt.Errorf("device_sample_rate must not be negative, got %d", c.DeviceSampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame_size must be positive, got %d", c.FrameSize)
	}
	return nil
}

// DeviceRate returns the hardware sample rate.
func (c *Config) DeviceRate() int {
	if c.DeviceSampleRate > 0 {
		return c.DeviceSampleRate
	}
	return c.SampleRate
}

// FrameDuration returns the capture cadence implied by FrameSize.
func (c *Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}
