package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"

	"github.com/teslashibe/go-pixel/pkg/audioio"
	"github.com/teslashibe/go-pixel/pkg/hub"
	"github.com/teslashibe/go-pixel/pkg/live"
	"github.com/teslashibe/go-pixel/pkg/reminder"
	"github.com/teslashibe/go-pixel/pkg/session"
	"github.com/teslashibe/go-pixel/pkg/settings"
	"github.com/teslashibe/go-pixel/pkg/telegram"
	"github.com/teslashibe/go-pixel/pkg/tools"
)

type testEnv struct {
	srv       *Server
	hub       *hub.Hub
	store     *settings.Memory
	dialer    *live.Mock
	sessions  *session.Manager
	reminders *reminder.Scheduler
	sent      chan string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := quietLogger()

	sent := make(chan string, 8)
	bot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ChatID string `json:"chat_id"`
			Text   string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		sent <- body.ChatID + ":" + body.Text
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(bot.Close)

	store := settings.NewMemory()
	messenger := telegram.New("token", telegram.WithAPIBase(bot.URL), telegram.WithLogger(logger))
	reminders := reminder.New(store, messenger, reminder.WithLogger(logger))
	t.Cleanup(func() { reminders.Close() })

	capture := audioio.DefaultCaptureConfig()
	capture.Backend = audioio.BackendMock
	play := audioio.DefaultPlaybackConfig()
	play.Backend = audioio.BackendMock

	dialer := live.NewMock()
	router := &tools.Router{Messenger: messenger, Reminders: reminders, Recipients: store, Logger: logger}
	mgr := session.NewManager(session.Config{
		Setup:    live.NewSetup("test-model", "", "Zephyr"),
		Capture:  capture,
		Playback: play,
	}, dialer, router, session.WithLogger(logger))
	t.Cleanup(mgr.Stop)

	h := hub.New("events", logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	srv := NewServer(Options{
		Sessions:  mgr,
		Settings:  store,
		Messenger: messenger,
		Reminders: reminders,
		Hub:       h,
		Logger:    logger,
	})
	reminders.AddNotifier(srv)

	return &testEnv{
		srv:       srv,
		hub:       h,
		store:     store,
		dialer:    dialer,
		sessions:  mgr,
		reminders: reminders,
		sent:      sent,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestServer_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp, data := env.do(t, http.MethodGet, "/api/status", nil)
	var st Status
	json.Unmarshal(data, &st)
	if resp.StatusCode != http.StatusOK || st.State != "idle" || st.Session != nil {
		t.Fatalf("initial status %d %s", resp.StatusCode, data)
	}

	resp, data = env.do(t, http.MethodPost, "/api/session", StartSessionRequest{UserID: "u1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start = %d %s", resp.StatusCode, data)
	}
	var info SessionInfo
	json.Unmarshal(data, &info)
	if info.ID == "" || info.UserID != "u1" || info.State != "active" {
		t.Errorf("session info = %+v", info)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/session", StartSessionRequest{UserID: "u1"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second start = %d, want 409", resp.StatusCode)
	}
	if env.dialer.Dials() != 1 {
		t.Errorf("Dials = %d, want 1", env.dialer.Dials())
	}

	_, data = env.do(t, http.MethodGet, "/api/status", nil)
	json.Unmarshal(data, &st)
	if st.State != "active" || st.Session == nil || st.Session.ID != info.ID {
		t.Errorf("active status = %s", data)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/session", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("stop = %d", resp.StatusCode)
	}
	// Stopping twice is harmless.
	resp, _ = env.do(t, http.MethodDelete, "/api/session", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("second stop = %d", resp.StatusCode)
	}
	if env.sessions.State() != session.StateIdle {
		t.Errorf("state after stop = %s", env.sessions.State())
	}
}

func TestServer_StartChannelFailure(t *testing.T) {
	env := newTestEnv(t)
	env.dialer.DialErr = errors.New("rejected")

	resp, _ := env.do(t, http.MethodPost, "/api/session", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if env.sessions.Current() != nil {
		t.Error("failed session still current")
	}
}

func TestStartError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already active", session.ErrAlreadyActive, fiber.StatusConflict},
		{"stopped", session.ErrStopped, fiber.StatusConflict},
		{"permission", &session.Error{Kind: session.KindPermissionDenied, Cause: audioio.ErrPermissionDenied}, fiber.StatusForbidden},
		{"channel", &session.Error{Kind: session.KindChannelOpen, Cause: errors.New("x")}, fiber.StatusBadGateway},
		{"device", &session.Error{Kind: session.KindDevice, Cause: audioio.ErrDeviceUnavailable}, fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fe *fiber.Error
			if !errors.As(startError(tt.err), &fe) {
				t.Fatalf("not a fiber error")
			}
			if fe.Code != tt.want {
				t.Errorf("code = %d, want %d", fe.Code, tt.want)
			}
		})
	}

	plain := errors.New("boom")
	if startError(plain) != plain {
		t.Error("unclassified errors should pass through")
	}
}

func TestServer_TelegramSettings(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/users/u1/telegram", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unset = %d, want 404", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPut, "/api/users/u1/telegram", TelegramSetting{TelegramID: "42"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set = %d", resp.StatusCode)
	}

	resp, data := env.do(t, http.MethodGet, "/api/users/u1/telegram", nil)
	var got TelegramSetting
	json.Unmarshal(data, &got)
	if resp.StatusCode != http.StatusOK || got.TelegramID != "42" {
		t.Errorf("get = %d %s", resp.StatusCode, data)
	}

	env.do(t, http.MethodPut, "/api/users/u1/telegram", TelegramSetting{})
	resp, _ = env.do(t, http.MethodGet, "/api/users/u1/telegram", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cleared = %d, want 404", resp.StatusCode)
	}
}

func TestServer_SendTelegram(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetTelegramID(context.Background(), "u1", "42")

	_, data := env.do(t, http.MethodPost, "/api/telegram", SendTelegramRequest{UserID: "u1", Message: "hi"})
	var out telegram.Outcome
	json.Unmarshal(data, &out)
	if !out.OK || out.Message != telegram.MsgSent {
		t.Errorf("outcome = %+v", out)
	}
	select {
	case got := <-env.sent:
		if got != "42:hi" {
			t.Errorf("bot got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("bot not called")
	}

	_, data = env.do(t, http.MethodPost, "/api/telegram", SendTelegramRequest{UserID: "nobody", Message: "hi"})
	json.Unmarshal(data, &out)
	if out.OK || out.Message != telegram.MsgMissingFields {
		t.Errorf("missing recipient outcome = %+v", out)
	}
}

func TestServer_Reminders(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/reminders", CreateReminderRequest{UserID: "u1", Message: "stretch", DelaySeconds: 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero delay = %d, want 400", resp.StatusCode)
	}

	resp, data := env.do(t, http.MethodPost, "/api/reminders", CreateReminderRequest{UserID: "u1", Message: "stretch", DelaySeconds: 3600})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d %s", resp.StatusCode, data)
	}
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(data, &created)

	_, data = env.do(t, http.MethodGet, "/api/reminders?user_id=u1", nil)
	var list []settings.Reminder
	json.Unmarshal(data, &list)
	if len(list) != 1 || list[0].ID != created.ID || list[0].Message != "stretch" {
		t.Fatalf("list = %s", data)
	}

	_, data = env.do(t, http.MethodGet, "/api/reminders?user_id=u2", nil)
	json.Unmarshal(data, &list)
	if len(list) != 0 {
		t.Errorf("other user's list = %s", data)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/reminders/"+created.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("cancel = %d", resp.StatusCode)
	}
	if env.reminders.Pending() != 0 {
		t.Errorf("Pending = %d after cancel", env.reminders.Pending())
	}
}

func TestServer_EventsWebSocket(t *testing.T) {
	env := newTestEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go env.srv.Serve(ln)
	t.Cleanup(func() { env.srv.Shutdown(context.Background()) })

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var evt struct {
		Type hub.EventType  `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if evt.Type != hub.EventStatus || evt.Data["state"] != "idle" {
		t.Errorf("snapshot = %+v", evt)
	}

	deadline := time.Now().Add(time.Second)
	for env.hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	// Fired reminders reach connected clients.
	env.srv.Notify(reminder.NotificationTitle, settings.Reminder{ID: "r1", UserID: "u1", Message: "stretch"})
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read reminder: %v", err)
	}
	if evt.Type != hub.EventReminder || evt.Data["message"] != "stretch" || evt.Data["title"] != reminder.NotificationTitle {
		t.Errorf("reminder event = %+v", evt)
	}
}

func TestServer_WebSocketRequiresUpgrade(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/ws/events", nil)
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}
