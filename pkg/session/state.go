package session

// State is a session lifecycle state.
//
//	Idle -> Starting -> Active -> Stopping -> Idle
//
// Starting may also go straight to Stopping on failure or stop.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Callbacks receive session events. Any of them may be nil. They are
// invoked from session goroutines and may call Session.Stop.
type Callbacks struct {
	// OnAudioLevel receives the RMS level of each captured frame.
	OnAudioLevel func(level float64)

	// OnUserTranscription receives the accumulated user transcript of the
	// current turn.
	OnUserTranscription func(text string)

	// OnModelTranscription receives the accumulated model transcript of the
	// current turn.
	OnModelTranscription func(text string)

	// OnSessionEnd is invoked exactly once per session.
	OnSessionEnd func()

	// OnError is invoked at most once, with an *Error, before teardown.
	OnError func(err error)
}

func (c Callbacks) audioLevel(level float64) {
	if c.OnAudioLevel != nil {
		c.OnAudioLevel(level)
	}
}

func (c Callbacks) userTranscription(text string) {
	if c.OnUserTranscription != nil {
		c.OnUserTranscription(text)
	}
}

func (c Callbacks) modelTranscription(text string) {
	if c.OnModelTranscription != nil {
		c.OnModelTranscription(text)
	}
}

func (c Callbacks) sessionEnd() {
	if c.OnSessionEnd != nil {
		c.OnSessionEnd()
	}
}

func (c Callbacks) reportError(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
