// Package pcm converts between captured floating-point audio and the
// 16-bit little-endian PCM used on the wire.
//
// Captured frames are float32 samples in [-1, 1]. They are scaled to the
// int16 range, clamped, packed little-endian and base64 framed for transport.
// Received PCM is unpacked, de-interleaved and rescaled back to float32.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Sample rates used by the live channel.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000
)

// scale maps [-1, 1] onto the int16 range.
const scale = 32768.0

// MIMEType returns the wire type tag for PCM audio at the given rate.
func MIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// WireChunk is an encoded, transport-ready audio payload.
type WireChunk struct {
	// Data is base64 encoded PCM16LE.
	Data string `json:"data"`

	// MIMEType tags the payload, e.g. "audio/pcm;rate=16000".
	MIMEType string `json:"mimeType"`
}

// Bytes returns the raw PCM bytes carried by the chunk.
func (c WireChunk) Bytes() ([]byte, error) {
	return DecodeBase64(c.Data)
}

// Encode converts a captured 16 kHz frame into a wire chunk.
func Encode(frame []float32) WireChunk {
	return EncodeRate(frame, CaptureRate)
}

// EncodeRate converts a frame captured at rate into a wire chunk.
func EncodeRate(frame []float32, rate int) WireChunk {
	return WireChunk{
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16(frame)),
		MIMEType: MIMEType(rate),
	}
}

// EncodePCM16 packs samples as little-endian int16. Out-of-range and NaN
// samples are clamped rather than rejected.
func EncodePCM16(frame []float32) []byte {
	out := make([]byte, len(frame)*2)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	v := math.Round(float64(s) * scale)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// DecodeBase64 decodes a base64 payload received from the channel.
func DecodeBase64(data string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("pcm: invalid base64 payload: %w", err)
	}
	return b, nil
}

// Buffer is decoded, playable audio.
type Buffer struct {
	// SampleRate is the playback rate in Hz.
	SampleRate int

	// Channels holds one slice of samples per channel, all the same length.
	Channels [][]float32
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Interleaved returns the samples of all channels interleaved.
func (b *Buffer) Interleaved() []float32 {
	n := b.Frames()
	out := make([]float32, 0, n*len(b.Channels))
	for i := 0; i < n; i++ {
		for _, ch := range b.Channels {
			out = append(out, ch[i])
		}
	}
	return out
}

// Decode unpacks little-endian int16 PCM into a playable buffer.
// A trailing odd byte and an incomplete final frame are ignored.
func Decode(data []byte, sampleRate, channels int) *Buffer {
	if channels <= 0 {
		channels = 1
	}
	frames := len(data) / 2 / channels

	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(data[off:]))
			buf.Channels[ch][i] = float32(s) / scale
		}
	}
	return buf
}

// DecodeChunk decodes a wire chunk into a playable buffer.
func DecodeChunk(c WireChunk, sampleRate, channels int) (*Buffer, error) {
	raw, err := c.Bytes()
	if err != nil {
		return nil, err
	}
	return Decode(raw, sampleRate, channels), nil
}
