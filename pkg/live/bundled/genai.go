package bundled

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/teslashibe/go-pixel/pkg/live"
	"github.com/teslashibe/go-pixel/pkg/pcm"
	"github.com/teslashibe/go-pixel/pkg/tools"
)

// GenAIDialer opens live channels with the genai SDK.
type GenAIDialer struct {
	APIKey string
	Logger *slog.Logger
}

// Dial implements live.Dialer.
func (d *GenAIDialer) Dial(ctx context.Context, setup live.Setup) (live.Channel, error) {
	if d.APIKey == "" {
		return nil, live.ErrMissingAPIKey
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("live/genai: create client: %w", err)
	}

	session, err := client.Live.Connect(ctx, setup.Model, liveConnectConfig(setup))
	if err != nil {
		return nil, fmt.Errorf("live/genai: connect: %w", err)
	}

	logger.Info("gemini live connected", "transport", TransportSDK, "model", setup.Model)
	return &genaiChannel{session: session, closed: make(chan struct{})}, nil
}

// liveConnectConfig maps a setup onto the SDK's connect config.
func liveConnectConfig(setup live.Setup) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{}

	for _, m := range setup.ResponseModalities {
		cfg.ResponseModalities = append(cfg.ResponseModalities, genai.Modality(m))
	}
	if setup.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(setup.SystemInstruction, genai.RoleUser)
	}
	if setup.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: setup.Voice},
			},
		}
	}
	if setup.InputTranscription {
		cfg.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if setup.OutputTranscription {
		cfg.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if setup.GoogleSearch {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if len(setup.Functions) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(setup.Functions))
		for _, f := range setup.Functions {
			decls = append(decls, functionDeclaration(f))
		}
		cfg.Tools = append(cfg.Tools, &genai.Tool{FunctionDeclarations: decls})
	}
	return cfg
}

func functionDeclaration(d tools.Declaration) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(d.Params))
	for _, p := range d.Params {
		props[p.Name] = &genai.Schema{
			Type:        genai.Type(p.Type),
			Description: p.Description,
		}
	}
	return &genai.FunctionDeclaration{
		Name:        d.Name,
		Description: d.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   d.Required(),
		},
	}
}

// fromGenAI converts an SDK message.
func fromGenAI(msg *genai.LiveServerMessage) *live.ServerMessage {
	out := &live.ServerMessage{}
	if msg == nil {
		return out
	}
	out.SetupComplete = msg.SetupComplete != nil
	out.GoAway = msg.GoAway != nil

	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil {
			out.InputTranscription = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscription = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
					out.Audio = append(out.Audio, part.InlineData.Data)
				}
			}
		}
		out.TurnComplete = sc.TurnComplete
		out.Interrupted = sc.Interrupted
	}

	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, tools.Call{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	return out
}

type genaiChannel struct {
	session *genai.Session

	mu        sync.Mutex // serialises writes
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func (c *genaiChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *genaiChannel) SendAudio(ctx context.Context, chunk pcm.WireChunk) error {
	if c.isClosed() {
		return live.ErrClosed
	}
	raw, err := chunk.Bytes()
	if err != nil {
		return fmt.Errorf("live/genai: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wrap(c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: raw, MIMEType: chunk.MIMEType},
	}))
}

func (c *genaiChannel) SendToolResults(ctx context.Context, results ...tools.Result) error {
	if c.isClosed() {
		return live.ErrClosed
	}
	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.ResponseMap(),
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wrap(c.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses}))
}

// Receive blocks in the SDK; ctx is honoured by closing the channel.
func (c *genaiChannel) Receive(ctx context.Context) (*live.ServerMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := c.session.Receive()
	if err != nil {
		return nil, c.wrap(err)
	}
	return fromGenAI(msg), nil
}

func (c *genaiChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.session.Close()
	})
	return c.closeErr
}

// wrap maps orderly closes onto live.ErrClosed.
func (c *genaiChannel) wrap(err error) error {
	if err == nil {
		return nil
	}
	if c.isClosed() || isOrderlyClose(err) {
		return fmt.Errorf("%w: %v", live.ErrClosed, err)
	}
	return fmt.Errorf("live/genai: %w", err)
}

func isOrderlyClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}
