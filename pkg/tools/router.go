package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-pixel/pkg/telegram"
)

// Result texts reported to the model.
const (
	MsgNoRecipient      = "Failed: Telegram User ID not configured."
	MsgMissingText      = "Failed: message text is required."
	MsgReminderInvalid  = "Could not set reminder due to invalid parameters."
	MsgReminderNoUser   = "Could not set reminder due to missing user context."
	MsgReminderFailed   = "Could not set reminder due to an internal error."
	MsgFunctionNotFound = "Function not found"
)

// Messenger delivers text to an external recipient. It never fails; the
// outcome describes what happened.
type Messenger interface {
	Deliver(ctx context.Context, recipientID, text string) telegram.Outcome
}

// Reminders arranges a future notification for a user.
type Reminders interface {
	Schedule(ctx context.Context, userID, message string, delay time.Duration) (string, error)
}

// Recipients resolves a user's configured messaging recipient. A user
// without one yields an empty id or an error.
type Recipients interface {
	TelegramID(ctx context.Context, userID string) (string, error)
}

// Router dispatches calls to their actions. Each call runs its side effect
// at most once; nothing is retried.
type Router struct {
	Messenger  Messenger
	Reminders  Reminders
	Recipients Recipients
	Logger     *slog.Logger
}

func (r *Router) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Handle runs call on behalf of userID ("" when there is no user) and
// returns its result. Failures are soft: they are described in the result.
func (r *Router) Handle(ctx context.Context, call Call, userID string) Result {
	res := Result{ID: call.ID, Name: call.Name}
	log := r.logger().With("call_id", call.ID, "function", call.Name)

	kind := KindOf(call.Name)
	if kind == KindUnknown {
		log.Warn("unknown function called")
		res.Output = MsgFunctionNotFound
		return res
	}

	// A reminder without a user fails before its arguments are considered.
	if kind == KindScheduleReminder && userID == "" {
		res.Output = MsgReminderNoUser
		return res
	}

	action, err := Parse(call)
	if err != nil {
		log.Warn("invalid function arguments", "error", err)
		switch kind {
		case KindScheduleReminder:
			res.Output = MsgReminderInvalid
		default:
			res.Output = MsgMissingText
		}
		return res
	}

	res.Output, res.OK = r.dispatch(ctx, action, userID, log)
	log.Info("function handled", "ok", res.OK)
	return res
}

func (r *Router) dispatch(ctx context.Context, action Action, userID string, log *slog.Logger) (string, bool) {
	switch a := action.(type) {
	case DeliverMessage:
		recipient := a.Recipient
		if recipient == "" {
			recipient = r.resolveRecipient(ctx, userID, log)
		}
		if recipient == "" || r.Messenger == nil {
			return MsgNoRecipient, false
		}
		out := r.Messenger.Deliver(ctx, recipient, a.Text)
		return out.Message, out.OK

	case ScheduleReminder:
		if r.Reminders == nil {
			return MsgReminderFailed, false
		}
		if _, err := r.Reminders.Schedule(ctx, userID, a.Message, a.Delay); err != nil {
			log.Error("schedule reminder failed", "error", err)
			return MsgReminderFailed, false
		}
		return "Reminder set for " + a.Message, true

	default:
		// Unreachable for the closed Action set.
		return MsgFunctionNotFound, false
	}
}

func (r *Router) resolveRecipient(ctx context.Context, userID string, log *slog.Logger) string {
	if userID == "" || r.Recipients == nil {
		return ""
	}
	id, err := r.Recipients.TelegramID(ctx, userID)
	if err != nil {
		log.Debug("no recipient for user", "user_id", userID, "error", err)
		return ""
	}
	return id
}
