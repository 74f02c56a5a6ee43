package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/spelling"
)

func TestDefaultIsValid(t *testing.T) {
	if err := validate(Default()); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mudra.yaml")
	data := `
http:
  port: 9090
spelling:
  required_hands: 1
  hold_ms: 400
  allow_repeat: false
bus:
  enabled: true
  prefix: signs
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.HTTP.Bind != "127.0.0.1" {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Spelling.RequiredHands != 1 || cfg.Spelling.HoldMS != 400 || cfg.Spelling.AllowRepeat {
		t.Errorf("Spelling = %+v", cfg.Spelling)
	}
	if cfg.Spelling.MinHoldFrames != 5 {
		t.Errorf("unset keys should keep defaults, MinHoldFrames = %d", cfg.Spelling.MinHoldFrames)
	}
	if !cfg.Bus.Enabled || cfg.Bus.Prefix != "signs" {
		t.Errorf("Bus = %+v", cfg.Bus)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want not found", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MUDRA_HTTP_PORT", "7070")
	t.Setenv("MUDRA_SPELLING_MIN_CONFIDENCE", "0.85")
	t.Setenv("MUDRA_BUS_SERVERS", "nats://a:4222, nats://b:4222,")
	t.Setenv("MUDRA_SPEECH_ENABLED", "not-a-bool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 7070 {
		t.Errorf("HTTP.Port = %d, want 7070", cfg.HTTP.Port)
	}
	if cfg.Spelling.MinConfidence != 0.85 {
		t.Errorf("MinConfidence = %v, want 0.85", cfg.Spelling.MinConfidence)
	}
	if len(cfg.Bus.Servers) != 2 || cfg.Bus.Servers[1] != "nats://b:4222" {
		t.Errorf("Bus.Servers = %v", cfg.Bus.Servers)
	}
	if cfg.Speech.Enabled {
		t.Error("an unparseable bool should be ignored")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"hands", func(c *Config) { c.Spelling.RequiredHands = 3 }, "required_hands"},
		{"confidence", func(c *Config) { c.Spelling.MinConfidence = 1.5 }, "min_confidence"},
		{"frames", func(c *Config) { c.Spelling.MinHoldFrames = 0 }, "min_hold_frames"},
		{"speech command", func(c *Config) { c.Speech.Enabled = true }, "speech.command"},
		{"bus servers", func(c *Config) { c.Bus.Enabled = true; c.Bus.Servers = nil }, "bus.servers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestConfig_Session(t *testing.T) {
	sc := Default().Session()

	if sc.Stabilizer != spelling.DefaultStabilizerConfig() {
		t.Errorf("Stabilizer = %+v, want defaults", sc.Stabilizer)
	}
	if sc.Words != spelling.DefaultWordConfig() {
		t.Errorf("Words = %+v, want defaults", sc.Words)
	}
	if sc.RequiredHands != 2 {
		t.Errorf("RequiredHands = %d, want 2", sc.RequiredHands)
	}
	if sc.Words.IdleTimeout != 4*time.Second {
		t.Errorf("IdleTimeout = %v", sc.Words.IdleTimeout)
	}
}
