// Package live defines the duplex streaming channel to a conversational
// model: realtime audio out, audio, transcripts and function calls in.
package live

import (
	"context"
	"errors"

	"github.com/teslashibe/go-pixel/pkg/pcm"
	"github.com/teslashibe/go-pixel/pkg/tools"
)

// Sentinel errors for the live package.
var (
	// ErrClosed indicates the channel was closed, locally or by the remote side.
	ErrClosed = errors.New("live: channel closed")

	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("live: API key is required")

	// ErrSetupFailed indicates the remote side rejected or never acknowledged setup.
	ErrSetupFailed = errors.New("live: setup failed")
)

// Modality is a response modality.
type Modality string

// Response modalities.
const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Setup is the configuration sent when a channel opens.
type Setup struct {
	Model             string
	SystemInstruction string
	Voice             string

	ResponseModalities  []Modality
	InputTranscription  bool
	OutputTranscription bool

	// GoogleSearch enables the built-in web search tool.
	GoogleSearch bool

	// Functions are declared to the model alongside web search.
	Functions []tools.Declaration

	// InputRate and OutputRate are the PCM sample rates in each direction.
	InputRate  int
	OutputRate int
}

// NewSetup returns the voice-session setup: audio responses, both
// transcriptions, web search and the router's functions.
func NewSetup(model, instruction, voice string) Setup {
	return Setup{
		Model:               model,
		SystemInstruction:   instruction,
		Voice:               voice,
		ResponseModalities:  []Modality{ModalityAudio},
		InputTranscription:  true,
		OutputTranscription: true,
		GoogleSearch:        true,
		Functions:           tools.Declarations(),
		InputRate:           pcm.CaptureRate,
		OutputRate:          pcm.PlaybackRate,
	}
}

// ServerMessage is one inbound message. Any combination of fields may be set.
type ServerMessage struct {
	SetupComplete bool

	// InputTranscription and OutputTranscription are incremental fragments.
	InputTranscription  string
	OutputTranscription string

	// Audio holds raw PCM16LE payloads at the output rate, in arrival order.
	Audio [][]byte

	TurnComplete bool
	Interrupted  bool

	ToolCalls []tools.Call

	// GoAway reports the server will close the connection soon.
	GoAway bool
}

// Empty reports whether m carries nothing the session acts on.
func (m *ServerMessage) Empty() bool {
	return !m.SetupComplete && m.InputTranscription == "" && m.OutputTranscription == "" &&
		len(m.Audio) == 0 && !m.TurnComplete && !m.Interrupted && len(m.ToolCalls) == 0 && !m.GoAway
}

// Channel is an open duplex connection. Sends are safe for concurrent use;
// Receive must be called from a single goroutine.
type Channel interface {
	// SendAudio sends one realtime audio chunk.
	SendAudio(ctx context.Context, chunk pcm.WireChunk) error

	// SendToolResults answers function calls.
	SendToolResults(ctx context.Context, results ...tools.Result) error

	// Receive blocks for the next message. It returns ErrClosed after an
	// orderly close from either side.
	Receive(ctx context.Context) (*ServerMessage, error)

	// Close closes the channel. It is safe to call multiple times.
	Close() error
}

// Dialer opens channels. Dial returns once the remote side has accepted the setup.
type Dialer interface {
	Dial(ctx context.Context, setup Setup) (Channel, error)
}
