package bundled

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-pixel/pkg/live"
	"github.com/teslashibe/go-pixel/pkg/pcm"
	"github.com/teslashibe/go-pixel/pkg/tools"
)

// GeminiLiveURL is the BidiGenerateContent websocket endpoint.
const GeminiLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 120 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// WebSocketDialer speaks the Gemini Live protocol over gorilla/websocket.
type WebSocketDialer struct {
	APIKey string

	// URL overrides GeminiLiveURL.
	URL string

	// ReadTimeout and PingInterval default to 120s and 30s. Any inbound
	// frame, pongs included, extends the read deadline.
	ReadTimeout  time.Duration
	PingInterval time.Duration

	Logger *slog.Logger
}

// Wire types. Only the fields the session uses are modelled.

type wsPart struct {
	Text       string  `json:"text,omitempty"`
	InlineData *wsBlob `json:"inlineData,omitempty"`
}

type wsBlob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type wsContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []wsPart `json:"parts"`
}

type wsPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type wsVoiceConfig struct {
	PrebuiltVoiceConfig wsPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type wsSpeechConfig struct {
	VoiceConfig wsVoiceConfig `json:"voiceConfig"`
}

type wsGenerationConfig struct {
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	SpeechConfig       *wsSpeechConfig `json:"speechConfig,omitempty"`
}

type wsFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wsTool struct {
	GoogleSearch         *struct{}               `json:"googleSearch,omitempty"`
	FunctionDeclarations []wsFunctionDeclaration `json:"functionDeclarations,omitempty"`
}

type wsSetup struct {
	Model                    string              `json:"model"`
	GenerationConfig         *wsGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *wsContent          `json:"systemInstruction,omitempty"`
	Tools                    []wsTool            `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}           `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}           `json:"outputAudioTranscription,omitempty"`
}

type wsRealtimeInput struct {
	Audio *wsBlob `json:"audio"`
}

type wsToolResponse struct {
	FunctionResponses []tools.WireResult `json:"functionResponses"`
}

type wsClientMessage struct {
	Setup         *wsSetup         `json:"setup,omitempty"`
	RealtimeInput *wsRealtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *wsToolResponse  `json:"toolResponse,omitempty"`
}

type wsTranscription struct {
	Text string `json:"text"`
}

type wsServerContent struct {
	ModelTurn           *wsContent       `json:"modelTurn,omitempty"`
	TurnComplete        bool             `json:"turnComplete,omitempty"`
	Interrupted         bool             `json:"interrupted,omitempty"`
	InputTranscription  *wsTranscription `json:"inputTranscription,omitempty"`
	OutputTranscription *wsTranscription `json:"outputTranscription,omitempty"`
}

type wsFunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type wsToolCall struct {
	FunctionCalls []wsFunctionCall `json:"functionCalls"`
}

type wsServerMessage struct {
	SetupComplete *struct{}        `json:"setupComplete,omitempty"`
	ServerContent *wsServerContent `json:"serverContent,omitempty"`
	ToolCall      *wsToolCall      `json:"toolCall,omitempty"`
	GoAway        *struct{}        `json:"goAway,omitempty"`
}

func buildSetup(setup live.Setup) *wsSetup {
	s := &wsSetup{Model: modelPath(setup.Model)}

	gen := &wsGenerationConfig{}
	for _, m := range setup.ResponseModalities {
		gen.ResponseModalities = append(gen.ResponseModalities, string(m))
	}
	if setup.Voice != "" {
		gen.SpeechConfig = &wsSpeechConfig{
			VoiceConfig: wsVoiceConfig{PrebuiltVoiceConfig: wsPrebuiltVoice{VoiceName: setup.Voice}},
		}
	}
	s.GenerationConfig = gen

	if setup.SystemInstruction != "" {
		s.SystemInstruction = &wsContent{Parts: []wsPart{{Text: setup.SystemInstruction}}}
	}
	if setup.InputTranscription {
		s.InputAudioTranscription = &struct{}{}
	}
	if setup.OutputTranscription {
		s.OutputAudioTranscription = &struct{}{}
	}
	if setup.GoogleSearch {
		s.Tools = append(s.Tools, wsTool{GoogleSearch: &struct{}{}})
	}
	if len(setup.Functions) > 0 {
		decls := make([]wsFunctionDeclaration, 0, len(setup.Functions))
		for _, f := range setup.Functions {
			decls = append(decls, wsFunctionDeclaration{
				Name:        f.Name,
				Description: f.Description,
				Parameters:  f.JSONSchema(),
			})
		}
		s.Tools = append(s.Tools, wsTool{FunctionDeclarations: decls})
	}
	return s
}

func (m *wsServerMessage) toLive() *live.ServerMessage {
	out := &live.ServerMessage{
		SetupComplete: m.SetupComplete != nil,
		GoAway:        m.GoAway != nil,
	}
	if sc := m.ServerContent; sc != nil {
		if sc.InputTranscription != nil {
			out.InputTranscription = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscription = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && len(p.InlineData.Data) > 0 {
					out.Audio = append(out.Audio, p.InlineData.Data)
				}
			}
		}
		out.TurnComplete = sc.TurnComplete
		out.Interrupted = sc.Interrupted
	}
	if m.ToolCall != nil {
		for _, fc := range m.ToolCall.FunctionCalls {
			out.ToolCalls = append(out.ToolCalls, tools.Call{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	return out
}

// Dial connects, sends the setup and waits for setupComplete.
func (d *WebSocketDialer) Dial(ctx context.Context, setup live.Setup) (live.Channel, error) {
	if d.APIKey == "" {
		return nil, live.ErrMissingAPIKey
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := d.URL
	if endpoint == "" {
		endpoint = GeminiLiveURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("live/websocket: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", d.APIKey)
	u.RawQuery = q.Encode()

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("live/websocket: failed to connect: %w", err)
	}

	c := newWSChannel(ws, logger, d.ReadTimeout, d.PingInterval)
	if err := c.writeJSON(wsClientMessage{Setup: buildSetup(setup)}); err != nil {
		c.Close()
		return nil, fmt.Errorf("live/websocket: send setup: %w", err)
	}

	// The first message must acknowledge the setup. Cancelling ctx while
	// waiting closes the socket to unblock the read.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	msg, err := c.Receive(ctx)
	stop()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", live.ErrSetupFailed, err)
	}
	if !msg.SetupComplete {
		c.Close()
		return nil, fmt.Errorf("%w: unexpected first message", live.ErrSetupFailed)
	}

	go c.keepAlive()

	logger.Info("gemini live connected", "transport", TransportWebSocket, "model", setup.Model)
	return c, nil
}

type wsChannel struct {
	ws     *websocket.Conn
	logger *slog.Logger

	readTimeout  time.Duration
	pingInterval time.Duration

	wsMu      sync.Mutex // serialises writes
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func newWSChannel(ws *websocket.Conn, logger *slog.Logger, read, ping time.Duration) *wsChannel {
	if read <= 0 {
		read = readTimeout
	}
	if ping <= 0 {
		ping = pingInterval
	}
	c := &wsChannel{
		ws:           ws,
		logger:       logger,
		readTimeout:  read,
		pingInterval: ping,
		closed:       make(chan struct{}),
	}

	ws.SetPingHandler(func(appData string) error {
		c.extendDeadline()
		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})
	// The model is quiet while the user is; keepalive pongs keep the read alive.
	ws.SetPongHandler(func(string) error {
		return c.extendDeadline()
	})
	c.extendDeadline()
	return c
}

func (c *wsChannel) extendDeadline() error {
	return c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
}

func (c *wsChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// keepAlive sends periodic pings to keep the connection alive.
func (c *wsChannel) keepAlive() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.wsMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.wsMu.Unlock()
			if err != nil {
				c.logger.Debug("keepalive ping failed", "error", err)
				return
			}
		}
	}
}

func (c *wsChannel) writeJSON(v any) error {
	if c.isClosed() {
		return live.ErrClosed
	}
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.wrap(c.ws.WriteJSON(v))
}

func (c *wsChannel) SendAudio(ctx context.Context, chunk pcm.WireChunk) error {
	raw, err := chunk.Bytes()
	if err != nil {
		return fmt.Errorf("live/websocket: %w", err)
	}
	return c.writeJSON(wsClientMessage{
		RealtimeInput: &wsRealtimeInput{Audio: &wsBlob{MIMEType: chunk.MIMEType, Data: raw}},
	})
}

func (c *wsChannel) SendToolResults(ctx context.Context, results ...tools.Result) error {
	wire := make([]tools.WireResult, 0, len(results))
	for _, r := range results {
		wire = append(wire, r.Wire())
	}
	return c.writeJSON(wsClientMessage{ToolResponse: &wsToolResponse{FunctionResponses: wire}})
}

// Receive reads the next message that carries something. The server sends
// JSON in both text and binary frames.
func (c *wsChannel) Receive(ctx context.Context) (*live.ServerMessage, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, c.wrap(err)
		}
		c.extendDeadline()

		var raw wsServerMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			c.logger.Debug("failed to parse server message", "error", err)
			continue
		}
		msg := raw.toLive()
		if msg.Empty() {
			continue
		}
		return msg, nil
	}
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.wsMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wsMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *wsChannel) wrap(err error) error {
	if err == nil {
		return nil
	}
	if c.isClosed() || isOrderlyClose(err) || errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("%w: %v", live.ErrClosed, err)
	}
	return fmt.Errorf("live/websocket: %w", err)
}
