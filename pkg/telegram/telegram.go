// Package telegram delivers text messages through the Telegram Bot API.
package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teslashibe/go-pixel/internal/httpc"
)

// DefaultAPIBase is the Bot API root.
const DefaultAPIBase = "https://api.telegram.org"

// Outcome messages.
const (
	MsgSent          = "✅ Message sent successfully."
	MsgNotConfigured = "❌ Telegram integration is not configured."
	MsgNetworkError  = "❌ An unexpected network error occurred."
	MsgMissingFields = "❌ Missing recipient or message."
	msgFailedPrefix  = "❌ Failed to send message: "
)

// Outcome is the structured result of a delivery. Deliver never returns an
// error; failures are described in Message.
type Outcome struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Client sends messages as a bot.
type Client struct {
	token   string
	apiBase string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithAPIBase overrides the Bot API root (used by tests).
func WithAPIBase(base string) Option {
	return func(cl *Client) {
		if base != "" {
			cl.apiBase = strings.TrimRight(base, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a client for the bot identified by token. An empty token
// yields a client whose deliveries report MsgNotConfigured.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		apiBase: DefaultAPIBase,
		http:    httpc.Client,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a bot token is set.
func (c *Client) Configured() bool {
	return c.token != ""
}

// Deliver sends text to chatID using Markdown formatting.
func (c *Client) Deliver(ctx context.Context, chatID, text string) Outcome {
	if !c.Configured() {
		c.logger.Error("telegram bot token is not configured")
		return Outcome{Message: MsgNotConfigured}
	}
	if strings.TrimSpace(chatID) == "" || strings.TrimSpace(text) == "" {
		return Outcome{Message: MsgMissingFields}
	}

	url := c.apiBase + "/bot" + c.token + "/sendMessage"
	var resp apiResponse
	_, err := httpc.PostJSON(ctx, c.http, url, sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	}, &resp)
	if err != nil {
		c.logger.Error("telegram request failed", "error", err)
		return Outcome{Message: MsgNetworkError}
	}

	if !resp.OK {
		c.logger.Error("telegram API error", "description", resp.Description)
		return Outcome{Message: msgFailedPrefix + resp.Description}
	}

	c.logger.Debug("telegram message sent", "chat_id", chatID)
	return Outcome{OK: true, Message: MsgSent}
}
