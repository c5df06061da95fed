package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-pixel/pkg/hub"
	"github.com/teslashibe/go-pixel/pkg/session"
	"github.com/teslashibe/go-pixel/pkg/settings"
	"github.com/teslashibe/go-pixel/pkg/tools"
)

// SessionInfo describes the current session.
type SessionInfo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
}

// Status is the body of GET /api/status.
type Status struct {
	State     string       `json:"state"`
	Session   *SessionInfo `json:"session,omitempty"`
	Clients   int          `json:"clients"`
	LastUser  string       `json:"last_user_transcript,omitempty"`
	LastModel string       `json:"last_model_transcript,omitempty"`
}

func sessionInfo(s *session.Session) *SessionInfo {
	if s == nil {
		return nil
	}
	return &SessionInfo{
		ID:        s.ID,
		UserID:    s.UserID,
		State:     s.State().String(),
		StartedAt: s.StartedAt,
	}
}

func (s *Server) status() Status {
	st := Status{State: session.StateIdle.String(), Clients: s.opts.Hub.ClientCount()}
	if s.opts.Sessions != nil {
		st.State = s.opts.Sessions.State().String()
		st.Session = sessionInfo(s.opts.Sessions.Current())
	}
	s.mu.RLock()
	st.LastUser, st.LastModel = s.lastUser, s.lastModel
	s.mu.RUnlock()
	return st
}

func unavailable(what string) error {
	return fiber.NewError(fiber.StatusServiceUnavailable, what+" not configured")
}

// handleStatus returns the session state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// StartSessionRequest is the body of POST /api/session.
type StartSessionRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleStartSession(c *fiber.Ctx) error {
	if s.opts.Sessions == nil {
		return unavailable("sessions")
	}
	var req StartSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
	}

	s.mu.Lock()
	s.lastUser, s.lastModel = "", ""
	s.mu.Unlock()

	// The session outlives this request.
	sess, err := s.opts.Sessions.Start(c.UserContext(), s.callbacks(), req.UserID)
	if err != nil {
		return startError(err)
	}

	info := sessionInfo(sess)
	if err := s.opts.Hub.Publish(hub.EventSessionStart, info); err != nil {
		s.log.Warn("publish session start failed", "error", err)
	}
	return c.Status(fiber.StatusCreated).JSON(info)
}

func startError(err error) error {
	switch {
	case errors.Is(err, session.ErrAlreadyActive), errors.Is(err, session.ErrStopped):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	switch session.KindOf(err) {
	case session.KindPermissionDenied:
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case session.KindChannelOpen:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case session.KindDevice:
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return err
}

func (s *Server) handleStopSession(c *fiber.Ctx) error {
	if s.opts.Sessions == nil {
		return unavailable("sessions")
	}
	s.opts.Sessions.Stop()
	return c.SendStatus(fiber.StatusNoContent)
}

// TelegramSetting is the body of the telegram settings routes.
type TelegramSetting struct {
	TelegramID string `json:"telegram_id"`
}

func (s *Server) handleGetTelegram(c *fiber.Ctx) error {
	if s.opts.Settings == nil {
		return unavailable("settings")
	}
	id, err := s.opts.Settings.TelegramID(c.UserContext(), c.Params("id"))
	if errors.Is(err, settings.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "telegram id not set")
	}
	if err != nil {
		return err
	}
	return c.JSON(TelegramSetting{TelegramID: id})
}

func (s *Server) handleSetTelegram(c *fiber.Ctx) error {
	if s.opts.Settings == nil {
		return unavailable("settings")
	}
	var req TelegramSetting
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := s.opts.Settings.SetTelegramID(c.UserContext(), c.Params("id"), req.TelegramID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SendTelegramRequest is the body of POST /api/telegram. ChatID wins over
// the chat configured for UserID.
type SendTelegramRequest struct {
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

// handleSendTelegram always answers 200 with the delivery outcome; the
// outcome itself says whether the message went out.
func (s *Server) handleSendTelegram(c *fiber.Ctx) error {
	if s.opts.Messenger == nil {
		return unavailable("telegram")
	}
	var req SendTelegramRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	chatID := req.ChatID
	if chatID == "" && req.UserID != "" && s.opts.Settings != nil {
		chatID, _ = s.opts.Settings.TelegramID(c.UserContext(), req.UserID)
	}
	return c.JSON(s.opts.Messenger.Deliver(c.UserContext(), chatID, req.Message))
}

// CreateReminderRequest is the body of POST /api/reminders.
type CreateReminderRequest struct {
	UserID       string  `json:"user_id"`
	Message      string  `json:"message"`
	DelaySeconds float64 `json:"delay_seconds"`
}

func (s *Server) handleCreateReminder(c *fiber.Ctx) error {
	if s.opts.Reminders == nil {
		return unavailable("reminders")
	}
	var req CreateReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	// Same validation the model's reminder calls get.
	action, err := tools.Parse(tools.Call{
		Name: tools.NameScheduleReminder,
		Args: map[string]any{"message": req.Message, "delayInSeconds": req.DelaySeconds},
	})
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	r := action.(tools.ScheduleReminder)

	id, err := s.opts.Reminders.Schedule(c.UserContext(), req.UserID, r.Message, r.Delay)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     id,
		"due_at": time.Now().Add(r.Delay).UTC(),
	})
}

func (s *Server) handleListReminders(c *fiber.Ctx) error {
	if s.opts.Settings == nil {
		return unavailable("settings")
	}
	all, err := s.opts.Settings.Reminders(c.UserContext())
	if err != nil {
		return err
	}
	userID := c.Query("user_id")
	out := make([]settings.Reminder, 0, len(all))
	for _, r := range all {
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	return c.JSON(out)
}

func (s *Server) handleCancelReminder(c *fiber.Ctx) error {
	if s.opts.Reminders == nil {
		return unavailable("reminders")
	}
	if err := s.opts.Reminders.Cancel(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleEventsWS sends a status snapshot, then streams hub events until
// the client disconnects.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	if err := c.WriteJSON(hub.NewEvent(hub.EventStatus, s.status())); err != nil {
		return
	}
	hub.NewClient(s.opts.Hub, c).Run()
}
