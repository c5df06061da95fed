package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Errors returned by Parse.
var (
	ErrUnknownTool = errors.New("tools: unknown function")
	ErrInvalidArgs = errors.New("tools: invalid arguments")
)

// Kind enumerates the action vocabulary.
//
// To add an action: declare its type implementing Action, add a Kind and its
// names, parse it in Parse, dispatch it in Router.dispatch and declare it in
// Declarations.
type Kind int

const (
	KindUnknown Kind = iota
	KindDeliverMessage
	KindScheduleReminder
)

// Function names as declared to the model.
const (
	NameDeliverMessage   = "deliver-message"
	NameScheduleReminder = "schedule-reminder"
)

// names maps accepted function names to kinds. The camel-case names are
// accepted from models configured with older declarations.
var names = map[string]Kind{
	NameDeliverMessage:      KindDeliverMessage,
	"sendMessageToTelegram": KindDeliverMessage,
	NameScheduleReminder:    KindScheduleReminder,
	"setReminder":           KindScheduleReminder,
}

func (k Kind) String() string {
	switch k {
	case KindDeliverMessage:
		return NameDeliverMessage
	case KindScheduleReminder:
		return NameScheduleReminder
	default:
		return "unknown"
	}
}

// KindOf returns the kind for a function name.
func KindOf(name string) Kind {
	return names[name]
}

// Action is a parsed, validated call. The set of implementations is closed.
type Action interface {
	Kind() Kind
	action()
}

// DeliverMessage sends Text to an external recipient. An empty Recipient
// means the caller's configured recipient.
type DeliverMessage struct {
	Recipient string
	Text      string
}

func (DeliverMessage) Kind() Kind { return KindDeliverMessage }
func (DeliverMessage) action()    {}

// ScheduleReminder arranges a notification after Delay.
type ScheduleReminder struct {
	Message string
	Delay   time.Duration
}

func (ScheduleReminder) Kind() Kind { return KindScheduleReminder }
func (ScheduleReminder) action()    {}

// Parse validates call arguments and returns the typed action.
func Parse(call Call) (Action, error) {
	switch KindOf(call.Name) {
	case KindDeliverMessage:
		text, ok := stringArg(call.Args, "message")
		if !ok || strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: message is required", ErrInvalidArgs)
		}
		recipient, _ := stringArg(call.Args, "recipientId", "userId")
		return DeliverMessage{Recipient: strings.TrimSpace(recipient), Text: text}, nil

	case KindScheduleReminder:
		msg, ok := stringArg(call.Args, "message")
		if !ok || strings.TrimSpace(msg) == "" {
			return nil, fmt.Errorf("%w: message is required", ErrInvalidArgs)
		}
		secs, ok := numberArg(call.Args, "delayInSeconds")
		if !ok {
			return nil, fmt.Errorf("%w: delayInSeconds must be a number", ErrInvalidArgs)
		}
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
			return nil, fmt.Errorf("%w: delayInSeconds must be positive, got %v", ErrInvalidArgs, secs)
		}
		if secs > math.MaxInt64/float64(time.Second) {
			return nil, fmt.Errorf("%w: delayInSeconds too large", ErrInvalidArgs)
		}
		return ScheduleReminder{
			Message: msg,
			Delay:   time.Duration(secs * float64(time.Second)),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}
}

// stringArg returns the first present key as a string. Numbers are
// formatted so numeric chat ids work.
func stringArg(args map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		v, present := args[k]
		if !present || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t, true
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		case int:
			return strconv.Itoa(t), true
		case int64:
			return strconv.FormatInt(t, 10), true
		case json.Number:
			return t.String(), true
		}
	}
	return "", false
}

func numberArg(args map[string]any, key string) (float64, bool) {
	switch t := args[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
