// Package hub fans session events out to websocket clients using the
// channel-based register/unregister/broadcast pattern.
package hub

import (
	"encoding/json"
	"time"
)

// EventType names an event pushed to clients.
type EventType string

const (
	EventAudioLevel         EventType = "audio_level"
	EventUserTranscription  EventType = "user_transcription"
	EventModelTranscription EventType = "model_transcription"
	EventSessionStart       EventType = "session_start"
	EventSessionEnd         EventType = "session_end"
	EventError              EventType = "error"
	EventReminder           EventType = "reminder"
	EventStatus             EventType = "status"
)

// Event is the JSON envelope clients receive.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Time: time.Now().UTC(), Data: data}
}

// Message is a pre-encoded frame queued for clients.
type Message struct {
	Data []byte
}

// Encode marshals e into a Message.
func (e Event) Encode() (Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}
