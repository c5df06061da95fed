package bundled

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-pixel/pkg/live"
	"github.com/teslashibe/go-pixel/pkg/pcm"
	"github.com/teslashibe/go-pixel/pkg/tools"
)

// fakeGemini is a minimal Gemini Live server.
type fakeGemini struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	key      string
	setup    map[string]any
	received []map[string]any
	conn     *websocket.Conn

	skipSetupComplete bool
	ready             chan struct{}
	got               chan struct{}
}

func newFakeGemini(t *testing.T) (*fakeGemini, *httptest.Server) {
	f := &fakeGemini{
		t:     t,
		ready: make(chan struct{}),
		got:   make(chan struct{}, 16),
	}
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return f, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (f *fakeGemini) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		return
	}

	f.mu.Lock()
	f.key = r.URL.Query().Get("key")
	f.setup, _ = first["setup"].(map[string]any)
	f.conn = conn
	skip := f.skipSetupComplete
	f.mu.Unlock()

	if skip {
		conn.WriteJSON(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
	} else {
		conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
	}
	close(f.ready)

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, msg)
		f.mu.Unlock()
		f.got <- struct{}{}
	}
}

func (f *fakeGemini) send(v any) {
	<-f.ready
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conn.WriteJSON(v); err != nil {
		f.t.Errorf("server write: %v", err)
	}
}

func (f *fakeGemini) sendBinary(v any) {
	<-f.ready
	data, _ := json.Marshal(v)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (f *fakeGemini) closeNormally() {
	<-f.ready
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
}

func (f *fakeGemini) waitReceived(t *testing.T) map[string]any {
	t.Helper()
	select {
	case <-f.got:
	case <-time.After(2 * time.Second):
		t.Fatal("server received nothing")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[len(f.received)-1]
}

func dial(t *testing.T, srv *httptest.Server) live.Channel {
	t.Helper()
	return dialWith(t, &WebSocketDialer{APIKey: "test-key", URL: wsURL(srv)})
}

func dialWith(t *testing.T, d *WebSocketDialer) live.Channel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := d.Dial(ctx, live.NewSetup("gemini-test", "be brief", "Puck"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestWebSocketDial_Setup(t *testing.T) {
	f, srv := newFakeGemini(t)
	dial(t, srv)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.key != "test-key" {
		t.Errorf("api key = %q", f.key)
	}
	if f.setup["model"] != "models/gemini-test" {
		t.Errorf("model = %v", f.setup["model"])
	}
	gen, _ := f.setup["generationConfig"].(map[string]any)
	if mods, _ := gen["responseModalities"].([]any); len(mods) != 1 || mods[0] != "AUDIO" {
		t.Errorf("responseModalities = %v", gen["responseModalities"])
	}
	if _, ok := f.setup["inputAudioTranscription"]; !ok {
		t.Error("input transcription not enabled")
	}
	if _, ok := f.setup["outputAudioTranscription"]; !ok {
		t.Error("output transcription not enabled")
	}
	toolList, _ := f.setup["tools"].([]any)
	if len(toolList) != 2 {
		t.Fatalf("tools = %v, want web search + functions", f.setup["tools"])
	}
	fns, _ := toolList[1].(map[string]any)["functionDeclarations"].([]any)
	if len(fns) != 2 {
		t.Errorf("function declarations = %v", fns)
	}
}

func TestWebSocketDial_SetupRejected(t *testing.T) {
	f, srv := newFakeGemini(t)
	f.skipSetupComplete = true

	d := &WebSocketDialer{APIKey: "k", URL: wsURL(srv)}
	_, err := d.Dial(context.Background(), live.NewSetup("m", "", ""))
	if !errors.Is(err, live.ErrSetupFailed) {
		t.Fatalf("err = %v, want ErrSetupFailed", err)
	}
}

func TestWebSocketDial_MissingKey(t *testing.T) {
	d := &WebSocketDialer{}
	if _, err := d.Dial(context.Background(), live.Setup{}); !errors.Is(err, live.ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestWebSocketChannel_SendAudio(t *testing.T) {
	f, srv := newFakeGemini(t)
	ch := dial(t, srv)

	chunk := pcm.Encode([]float32{0, 0.5, -0.5})
	if err := ch.SendAudio(context.Background(), chunk); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	msg := f.waitReceived(t)
	rt, _ := msg["realtimeInput"].(map[string]any)
	audio, _ := rt["audio"].(map[string]any)
	if audio["mimeType"] != "audio/pcm;rate=16000" {
		t.Errorf("mimeType = %v", audio["mimeType"])
	}
	if audio["data"] != chunk.Data {
		t.Errorf("data = %v, want %v", audio["data"], chunk.Data)
	}
}

func TestWebSocketChannel_SendToolResults(t *testing.T) {
	f, srv := newFakeGemini(t)
	ch := dial(t, srv)

	err := ch.SendToolResults(context.Background(), tools.Result{ID: "1", Name: "schedule-reminder", Output: "Reminder set for call mom"})
	if err != nil {
		t.Fatalf("SendToolResults: %v", err)
	}

	msg := f.waitReceived(t)
	tr, _ := msg["toolResponse"].(map[string]any)
	resps, _ := tr["functionResponses"].([]any)
	if len(resps) != 1 {
		t.Fatalf("functionResponses = %v", tr)
	}
	r := resps[0].(map[string]any)
	if r["id"] != "1" || r["name"] != "schedule-reminder" {
		t.Errorf("response = %v", r)
	}
	if r["response"].(map[string]any)["result"] != "Reminder set for call mom" {
		t.Errorf("result = %v", r["response"])
	}
}

func TestWebSocketChannel_Receive(t *testing.T) {
	f, srv := newFakeGemini(t)
	ch := dial(t, srv)
	ctx := context.Background()

	audio := pcm.EncodePCM16([]float32{0.25, -0.25})
	go func() {
		// Empty messages are skipped.
		f.send(map[string]any{"usageMetadata": map[string]any{}})
		f.send(map[string]any{"serverContent": map[string]any{
			"inputTranscription": map[string]any{"text": "hello"},
		}})
		f.sendBinary(map[string]any{"serverContent": map[string]any{
			"modelTurn": map[string]any{"parts": []any{
				map[string]any{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": audio}},
			}},
			"outputTranscription": map[string]any{"text": "hi there"},
		}})
		f.send(map[string]any{"toolCall": map[string]any{"functionCalls": []any{
			map[string]any{"id": "7", "name": "deliver-message", "args": map[string]any{"message": "yo"}},
		}}})
		f.send(map[string]any{"serverContent": map[string]any{"interrupted": true, "turnComplete": true}})
		f.closeNormally()
	}()

	msg, err := ch.Receive(ctx)
	if err != nil || msg.InputTranscription != "hello" {
		t.Fatalf("msg 1 = %+v, %v", msg, err)
	}

	msg, err = ch.Receive(ctx)
	if err != nil {
		t.Fatalf("msg 2: %v", err)
	}
	if msg.OutputTranscription != "hi there" || len(msg.Audio) != 1 || string(msg.Audio[0]) != string(audio) {
		t.Errorf("msg 2 = %+v", msg)
	}

	msg, err = ch.Receive(ctx)
	if err != nil || len(msg.ToolCalls) != 1 {
		t.Fatalf("msg 3 = %+v, %v", msg, err)
	}
	if call := msg.ToolCalls[0]; call.ID != "7" || call.Name != "deliver-message" || call.Args["message"] != "yo" {
		t.Errorf("tool call = %+v", call)
	}

	msg, err = ch.Receive(ctx)
	if err != nil || !msg.Interrupted || !msg.TurnComplete {
		t.Fatalf("msg 4 = %+v, %v", msg, err)
	}

	if _, err := ch.Receive(ctx); !errors.Is(err, live.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed on normal close", err)
	}
}

func TestWebSocketChannel_Close(t *testing.T) {
	_, srv := newFakeGemini(t)
	ch := dial(t, srv)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ch.Close()

	if err := ch.SendAudio(context.Background(), pcm.Encode([]float32{0})); !errors.Is(err, live.ErrClosed) {
		t.Errorf("SendAudio after close = %v, want ErrClosed", err)
	}
	if _, err := ch.Receive(context.Background()); !errors.Is(err, live.ErrClosed) {
		t.Errorf("Receive after close = %v, want ErrClosed", err)
	}
}

func TestWebSocketChannel_PongsKeepQuietChannelOpen(t *testing.T) {
	f, srv := newFakeGemini(t)
	ch := dialWith(t, &WebSocketDialer{
		APIKey:       "test-key",
		URL:          wsURL(srv),
		ReadTimeout:  200 * time.Millisecond,
		PingInterval: 50 * time.Millisecond,
	})

	got := make(chan error, 1)
	go func() {
		msg, err := ch.Receive(context.Background())
		if err == nil && !msg.TurnComplete {
			err = errors.New("unexpected message")
		}
		got <- err
	}()

	// Several read timeouts pass with no data from the server.
	select {
	case err := <-got:
		t.Fatalf("Receive returned while the server was quiet: %v", err)
	case <-time.After(600 * time.Millisecond):
	}

	f.send(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestWebSocketChannel_ReadTimeout(t *testing.T) {
	_, srv := newFakeGemini(t)
	ch := dialWith(t, &WebSocketDialer{
		APIKey:       "test-key",
		URL:          wsURL(srv),
		ReadTimeout:  100 * time.Millisecond,
		PingInterval: time.Hour,
	})

	_, err := ch.Receive(context.Background())
	if err == nil {
		t.Fatal("Receive succeeded on a dead connection")
	}
	if errors.Is(err, live.ErrClosed) {
		t.Errorf("timeout reported as orderly close: %v", err)
	}
}
