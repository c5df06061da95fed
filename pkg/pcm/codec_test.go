package pcm

import (
	"encoding/base64"
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestEncode_MIMEAndLength(t *testing.T) {
	frame := make([]float32, 4096)
	chunk := Encode(frame)

	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("expected audio/pcm;rate=16000, got %s", chunk.MIMEType)
	}

	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		t.Fatalf("chunk data is not base64: %v", err)
	}
	if len(raw) != 8192 {
		t.Errorf("expected 8192 bytes, got %d", len(raw))
	}
}

func TestEncodePCM16_Clamps(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"positive full scale", 1, math.MaxInt16},
		{"negative full scale", -1, math.MinInt16},
		{"above range", 3.5, math.MaxInt16},
		{"below range", -7, math.MinInt16},
		{"nan", float32(math.NaN()), 0},
		{"positive inf", float32(math.Inf(1)), math.MaxInt16},
		{"half", 0.5, 16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := EncodePCM16([]float32{tt.in})
			got := int16(uint16(b[0]) | uint16(b[1])<<8)
			if got != tt.want {
				t.Errorf("EncodePCM16(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	frame := make([]float32, 2048)
	for i := range frame {
		frame[i] = rng.Float32()*2 - 1
	}

	chunk := Encode(frame)
	buf, err := DecodeChunk(chunk, CaptureRate, 1)
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}

	if buf.Frames() != len(frame) {
		t.Fatalf("expected %d frames, got %d", len(frame), buf.Frames())
	}

	const bound = 1.0 / 32768
	for i, want := range frame {
		got := buf.Channels[0][i]
		if diff := math.Abs(float64(got - want)); diff > bound {
			t.Fatalf("sample %d: got %v want %v (diff %v > %v)", i, got, want, diff, bound)
		}
	}
}

func TestDecode_RepresentableSamplesAreExact(t *testing.T) {
	frame := []float32{0, 1.0 / 32768, -1, 0.25, -0.5, 32767.0 / 32768}
	buf := Decode(EncodePCM16(frame), CaptureRate, 1)

	for i, want := range frame {
		if got := buf.Channels[0][i]; got != want {
			t.Errorf("sample %d: got %v want %v", i, got, want)
		}
	}
}

func TestDecode_Deinterleaves(t *testing.T) {
	// L R L R
	raw := EncodePCM16([]float32{0.5, -0.5, 0.25, -0.25})
	buf := Decode(raw, PlaybackRate, 2)

	if len(buf.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(buf.Channels))
	}
	if buf.Frames() != 2 {
		t.Fatalf("expected 2 frames, got %d", buf.Frames())
	}
	if buf.Channels[0][0] != 0.5 || buf.Channels[0][1] != 0.25 {
		t.Errorf("left channel mismatch: %v", buf.Channels[0])
	}
	if buf.Channels[1][0] != -0.5 || buf.Channels[1][1] != -0.25 {
		t.Errorf("right channel mismatch: %v", buf.Channels[1])
	}

	inter := buf.Interleaved()
	if len(inter) != 4 || inter[1] != -0.5 {
		t.Errorf("interleaved mismatch: %v", inter)
	}
}

func TestDecode_IgnoresTrailingByte(t *testing.T) {
	raw := append(EncodePCM16([]float32{0.5}), 0x7f)
	buf := Decode(raw, PlaybackRate, 1)
	if buf.Frames() != 1 {
		t.Errorf("expected 1 frame, got %d", buf.Frames())
	}

	if Decode(nil, PlaybackRate, 0).Frames() != 0 {
		t.Error("expected empty buffer for nil input")
	}
}

func TestBuffer_Duration(t *testing.T) {
	buf := Decode(make([]byte, 2*24000), PlaybackRate, 1)
	if d := buf.Duration(); d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}

	buf = Decode(make([]byte, 2*2400), PlaybackRate, 1)
	if d := buf.Duration(); d != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", d)
	}
}

func TestDecodeChunk_InvalidBase64(t *testing.T) {
	_, err := DecodeChunk(WireChunk{Data: "%%%"}, PlaybackRate, 1)
	if err == nil {
		t.Error("expected error for invalid base64")
	}
}
