// Package config loads go-pixel configuration from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-pixel/pkg/audioio"
)

// Defaults.
const (
	DefaultModel       = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice       = "Zephyr"
	DefaultTransport   = "sdk"
	DefaultPort        = "8080"
	DefaultTelegramAPI = "https://api.telegram.org"
	DefaultStoreDir    = "data/pixel"
)

// Persona is the system instruction sent when a live channel opens.
const Persona = `You are a helpful AI assistant named Pixel AI.
Your identity is Pixel AI.
You were created by a team called Pixel Squad.
You have the capability to set reminders for users and send messages to their Telegram account if they have configured it.

IMPORTANT: Only reveal information about your creators if you are DIRECTLY asked about your identity, name, creators, or origin.
For simple greetings like "Hi" or "Hello", respond with a simple, friendly greeting without mentioning your creators.
For all other questions and topics, provide helpful and factual answers and do NOT mention your creators.`

// Config is the top-level configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Audio    AudioConfig    `yaml:"audio"`
	Telegram TelegramConfig `yaml:"telegram"`
	Store    StoreConfig    `yaml:"store"`
	Web      WebConfig      `yaml:"web"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// GeminiConfig configures the live model channel.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	Voice  string `yaml:"voice"`

	// Transport is "sdk" (genai client) or "websocket" (raw protocol).
	Transport string `yaml:"transport"`

	// Endpoint overrides the websocket URL. Only used by the websocket transport.
	Endpoint string `yaml:"endpoint"`

	// SystemInstruction overrides Persona when set.
	SystemInstruction string `yaml:"system_instruction"`

	GoogleSearch bool `yaml:"google_search"`
}

// Instruction returns the configured system instruction or Persona.
func (g GeminiConfig) Instruction() string {
	if g.SystemInstruction != "" {
		return g.SystemInstruction
	}
	return Persona
}

// AudioConfig holds one config per direction.
type AudioConfig struct {
	Capture  audioio.Config `yaml:"capture"`
	Playback audioio.Config `yaml:"playback"`

	// SendQueue bounds encoded frames waiting for the channel.
	SendQueue int `yaml:"send_queue"`
}

// TelegramConfig configures outbound message delivery.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	APIBase  string `yaml:"api_base"`
}

// StoreConfig configures the settings store.
type StoreConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// WebConfig configures the dashboard server.
type WebConfig struct {
	Port string `yaml:"port"`

	// StaticDir, when set, is served at / alongside the API.
	StaticDir string `yaml:"static_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Gemini: GeminiConfig{
			Model:        DefaultModel,
			Voice:        DefaultVoice,
			Transport:    DefaultTransport,
			GoogleSearch: true,
		},
		Audio: AudioConfig{
			Capture:   audioio.DefaultCaptureConfig(),
			Playback:  audioio.DefaultPlaybackConfig(),
			SendQueue: 32,
		},
		Telegram: TelegramConfig{APIBase: DefaultTelegramAPI},
		Store:    StoreConfig{Dir: DefaultStoreDir},
		Web:      WebConfig{Port: DefaultPort},
	}
}

// Load reads .env (if present), the YAML file at path (if non-empty and
// present) on top of Default, then applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	if v := firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY", "API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("PIXEL_MODEL"); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv("PIXEL_TRANSPORT"); v != "" {
		c.Gemini.Transport = v
	}
	if v := os.Getenv("PIXEL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PIXEL_PORT"); v != "" {
		c.Web.Port = v
	}
	if v := os.Getenv("PIXEL_STORE_DIR"); v != "" {
		c.Store.Dir = v
	}
	if v := os.Getenv("PIXEL_STORE_IN_MEMORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Store.InMemory = b
		}
	}
	if v := os.Getenv("PIXEL_AUDIO_BACKEND"); v != "" {
		c.Audio.Capture.Backend = audioio.Backend(v)
		c.Audio.Playback.Backend = audioio.Backend(v)
	}
	if v := os.Getenv("PIXEL_AUDIO_DEVICE"); v != "" {
		c.Audio.Capture.Device = v
		c.Audio.Playback.Device = v
	}
}

// Validate checks the configuration. A missing API key is not an error here;
// commands that open a live channel check it themselves.
func (c *Config) Validate() error {
	switch c.Gemini.Transport {
	case "sdk", "websocket":
	default:
		return fmt.Errorf("config: gemini.transport must be sdk or websocket, got %q", c.Gemini.Transport)
	}
	if c.Gemini.Model == "" {
		return errors.New("config: gemini.model is required")
	}
	if err := c.Audio.Capture.Validate(); err != nil {
		return fmt.Errorf("config: audio.capture: %w", err)
	}
	if err := c.Audio.Playback.Validate(); err != nil {
		return fmt.Errorf("config: audio.playback: %w", err)
	}
	if c.Audio.SendQueue <= 0 {
		return fmt.Errorf("config: audio.send_queue must be positive, got %d", c.Audio.SendQueue)
	}
	if !c.Store.InMemory && c.Store.Dir == "" {
		return errors.New("config: store.dir is required unless store.in_memory is set")
	}
	return nil
}

// RequireAPIKey returns an error when no Gemini API key is configured.
func (c *Config) RequireAPIKey() error {
	if c.Gemini.APIKey == "" {
		return errors.New("config: GOOGLE_API_KEY (or API_KEY) is required")
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
