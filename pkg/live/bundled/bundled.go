// Package bundled provides live.Dialer implementations for the Gemini Live
// API: one on the official genai SDK and one speaking the websocket
// protocol directly.
package bundled

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-pixel/pkg/live"
)

// Transport names.
const (
	TransportSDK       = "sdk"
	TransportWebSocket = "websocket"
)

// Config selects and configures a transport.
type Config struct {
	Transport string
	APIKey    string

	// Endpoint overrides the websocket URL.
	Endpoint string

	Logger *slog.Logger
}

// New returns the dialer for cfg.Transport. An empty transport means sdk.
func New(cfg Config) (live.Dialer, error) {
	if cfg.APIKey == "" {
		return nil, live.ErrMissingAPIKey
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Transport {
	case "", TransportSDK:
		return &GenAIDialer{APIKey: cfg.APIKey, Logger: logger}, nil
	case TransportWebSocket:
		return &WebSocketDialer{APIKey: cfg.APIKey, URL: cfg.Endpoint, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("live: unsupported transport %q", cfg.Transport)
	}
}

// modelPath returns model with the "models/" prefix the protocol expects.
func modelPath(model string) string {
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "projects/") {
		return model
	}
	return "models/" + model
}
