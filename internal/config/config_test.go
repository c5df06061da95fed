package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-pixel/pkg/audioio"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should validate: %v", err)
	}
	if cfg.Audio.Capture.SampleRate != 16000 {
		t.Errorf("capture rate = %d, want 16000", cfg.Audio.Capture.SampleRate)
	}
	if cfg.Audio.Playback.SampleRate != 24000 {
		t.Errorf("playback rate = %d, want 24000", cfg.Audio.Playback.SampleRate)
	}
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "pixel.yaml")
	yamlDoc := `
log:
  level: debug
gemini:
  model: test-model
  transport: websocket
audio:
  capture:
    backend: mock
    sample_rate: 16000
    channels: 1
    frame_size: 1024
web:
  port: "9000"
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "key-from-env")
	t.Setenv("PIXEL_PORT", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Gemini.Model != "test-model" || cfg.Gemini.Transport != "websocket" {
		t.Errorf("gemini = %+v", cfg.Gemini)
	}
	if cfg.Gemini.APIKey != "key-from-env" {
		t.Errorf("api key = %q, want key-from-env", cfg.Gemini.APIKey)
	}
	if cfg.Telegram.BotToken != "bot-token" {
		t.Errorf("bot token = %q", cfg.Telegram.BotToken)
	}
	if cfg.Audio.Capture.Backend != audioio.BackendMock || cfg.Audio.Capture.FrameSize != 1024 {
		t.Errorf("capture = %+v", cfg.Audio.Capture)
	}
	// Unset sections keep their defaults.
	if cfg.Audio.Playback.SampleRate != 24000 {
		t.Errorf("playback rate = %d, want 24000", cfg.Audio.Playback.SampleRate)
	}
	if cfg.Web.Port != "9000" {
		t.Errorf("port = %q, want 9000", cfg.Web.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Gemini.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Gemini.Model, DefaultModel)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PIXEL_MODEL", "")
	os.Unsetenv("PIXEL_MODEL")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PIXEL_MODEL=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gemini.Model != "from-dotenv" {
		t.Errorf("model = %q, want from-dotenv", cfg.Gemini.Model)
	}
	os.Unsetenv("PIXEL_MODEL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"bad transport", func(c *Config) { c.Gemini.Transport = "grpc" }, true},
		{"empty model", func(c *Config) { c.Gemini.Model = "" }, true},
		{"bad capture", func(c *Config) { c.Audio.Capture.SampleRate = 0 }, true},
		{"bad playback", func(c *Config) { c.Audio.Playback.Channels = 0 }, true},
		{"zero queue", func(c *Config) { c.Audio.SendQueue = 0 }, true},
		{"no store dir", func(c *Config) { c.Store.Dir = "" }, true},
		{"in-memory store", func(c *Config) { c.Store.Dir = ""; c.Store.InMemory = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInstruction(t *testing.T) {
	g := GeminiConfig{}
	if g.Instruction() != Persona {
		t.Error("empty override should use Persona")
	}
	g.SystemInstruction = "custom"
	if g.Instruction() != "custom" {
		t.Errorf("Instruction() = %q, want custom", g.Instruction())
	}
}
