// Package config loads mudra's YAML configuration and MUDRA_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/spelling"
)

type HTTPConfig struct {
	Bind      string `yaml:"bind"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CameraConfig struct {
	DeviceID        int     `yaml:"device_id"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	FPS             int     `yaml:"fps"`
	MotionThreshold float64 `yaml:"motion_threshold"`
	MaxStillFrames  int     `yaml:"max_still_frames"`
}

type DetectorConfig struct {
	Python      string `yaml:"python"`
	Script      string `yaml:"script"`
	IdleTimeout int    `yaml:"idle_timeout_ms"`
}

type SpellingConfig struct {
	RequiredHands    int     `yaml:"required_hands"`
	MinConfidence    float64 `yaml:"min_confidence"`
	HoldMS           int     `yaml:"hold_ms"`
	MinHoldFrames    int     `yaml:"min_hold_frames"`
	AllowRepeat      bool    `yaml:"allow_repeat"`
	RepeatPauseMS    int     `yaml:"repeat_pause_ms"`
	HandsLostMS      int     `yaml:"hands_lost_ms"`
	MaxSuggestions   int     `yaml:"max_suggestions"`
	WordIdleMS       int     `yaml:"word_idle_ms"`
	DictionaryPath   string  `yaml:"dictionary_path"`
	DefaultTolerance float64 `yaml:"default_tolerance"`
}

type SpeechConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Command   string `yaml:"command"`
	Voice     string `yaml:"voice"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Prefix         string   `yaml:"prefix"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type Config struct {
	ServiceName string         `yaml:"service_name"`
	DataDir     string         `yaml:"data_dir"`
	Tray        bool           `yaml:"tray"`
	HTTP        HTTPConfig     `yaml:"http"`
	Log         LogConfig      `yaml:"log"`
	Camera      CameraConfig   `yaml:"camera"`
	Detector    DetectorConfig `yaml:"detector"`
	Spelling    SpellingConfig `yaml:"spelling"`
	Speech      SpeechConfig   `yaml:"speech"`
	Bus         BusConfig      `yaml:"bus"`
}

func Default() Config {
	stab := spelling.DefaultStabilizerConfig()
	words := spelling.DefaultWordConfig()
	return Config{
		ServiceName: "mudra",
		DataDir:     "~/.mudra",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Camera: CameraConfig{
			Width:           640,
			Height:          480,
			FPS:             15,
			MotionThreshold: 0.5,
			MaxStillFrames:  5,
		},
		Detector: DetectorConfig{
			IdleTimeout: 30000,
		},
		Spelling: SpellingConfig{
			RequiredHands:    2,
			MinConfidence:    stab.MinConfidence,
			HoldMS:           int(stab.HoldDuration / time.Millisecond),
			MinHoldFrames:    stab.MinHoldFrames,
			AllowRepeat:      stab.AllowRepeat,
			RepeatPauseMS:    int(stab.RepeatPause / time.Millisecond),
			HandsLostMS:      int(stab.HandsLostTimeout / time.Millisecond),
			MaxSuggestions:   words.MaxSuggestions,
			WordIdleMS:       int(words.IdleTimeout / time.Millisecond),
			DefaultTolerance: 0.25,
		},
		Speech: SpeechConfig{
			TimeoutMS: 10000,
		},
		Bus: BusConfig{
			Servers:        []string{"nats://localhost:4222"},
			Prefix:         "mudra.session",
			ConnectTimeout: 2000,
		},
	}
}

// Load reads path, if set, over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Session builds the session configuration. Source, logger and dictionary
// are wired by the caller.
func (c Config) Session() session.Config {
	s := c.Spelling
	return session.Config{
		Stabilizer: spelling.StabilizerConfig{
			MinConfidence:    s.MinConfidence,
			HoldDuration:     ms(s.HoldMS),
			MinHoldFrames:    s.MinHoldFrames,
			AllowRepeat:      s.AllowRepeat,
			RepeatPause:      ms(s.RepeatPauseMS),
			HandsLostTimeout: ms(s.HandsLostMS),
		},
		Words: spelling.WordConfig{
			MaxSuggestions: s.MaxSuggestions,
			IdleTimeout:    ms(s.WordIdleMS),
		},
		RequiredHands: s.RequiredHands,
	}
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Bind, c.HTTP.Port)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "MUDRA_SERVICE_NAME")
	overrideString(&cfg.DataDir, "MUDRA_DATA_DIR")
	overrideBool(&cfg.Tray, "MUDRA_TRAY")
	overrideString(&cfg.HTTP.Bind, "MUDRA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "MUDRA_HTTP_PORT")
	overrideString(&cfg.HTTP.StaticDir, "MUDRA_HTTP_STATIC_DIR")
	overrideString(&cfg.Log.Level, "MUDRA_LOG_LEVEL")
	overrideString(&cfg.Log.Format, "MUDRA_LOG_FORMAT")
	overrideInt(&cfg.Camera.DeviceID, "MUDRA_CAMERA_DEVICE_ID")
	overrideInt(&cfg.Camera.FPS, "MUDRA_CAMERA_FPS")
	overrideFloat(&cfg.Camera.MotionThreshold, "MUDRA_CAMERA_MOTION_THRESHOLD")
	overrideString(&cfg.Detector.Python, "MUDRA_DETECTOR_PYTHON")
	overrideString(&cfg.Detector.Script, "MUDRA_DETECTOR_SCRIPT")
	overrideInt(&cfg.Spelling.RequiredHands, "MUDRA_SPELLING_REQUIRED_HANDS")
	overrideFloat(&cfg.Spelling.MinConfidence, "MUDRA_SPELLING_MIN_CONFIDENCE")
	overrideInt(&cfg.Spelling.HoldMS, "MUDRA_SPELLING_HOLD_MS")
	overrideInt(&cfg.Spelling.MinHoldFrames, "MUDRA_SPELLING_MIN_HOLD_FRAMES")
	overrideBool(&cfg.Spelling.AllowRepeat, "MUDRA_SPELLING_ALLOW_REPEAT")
	overrideInt(&cfg.Spelling.RepeatPauseMS, "MUDRA_SPELLING_REPEAT_PAUSE_MS")
	overrideInt(&cfg.Spelling.HandsLostMS, "MUDRA_SPELLING_HANDS_LOST_MS")
	overrideInt(&cfg.Spelling.MaxSuggestions, "MUDRA_SPELLING_MAX_SUGGESTIONS")
	overrideInt(&cfg.Spelling.WordIdleMS, "MUDRA_SPELLING_WORD_IDLE_MS")
	overrideString(&cfg.Spelling.DictionaryPath, "MUDRA_SPELLING_DICTIONARY_PATH")
	overrideBool(&cfg.Speech.Enabled, "MUDRA_SPEECH_ENABLED")
	overrideString(&cfg.Speech.Command, "MUDRA_SPEECH_COMMAND")
	overrideString(&cfg.Speech.Voice, "MUDRA_SPEECH_VOICE")
	overrideInt(&cfg.Speech.TimeoutMS, "MUDRA_SPEECH_TIMEOUT_MS")
	overrideBool(&cfg.Bus.Enabled, "MUDRA_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "MUDRA_BUS_SERVERS")
	overrideString(&cfg.Bus.Prefix, "MUDRA_BUS_PREFIX")
	overrideString(&cfg.Bus.Token, "MUDRA_BUS_TOKEN")
	overrideInt(&cfg.Bus.ConnectTimeout, "MUDRA_BUS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Camera.FPS <= 0 {
		return errors.New("camera.fps must be positive")
	}
	s := cfg.Spelling
	if s.RequiredHands != 1 && s.RequiredHands != 2 {
		return errors.New("spelling.required_hands must be 1 or 2")
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return errors.New("spelling.min_confidence must be between 0 and 1")
	}
	if s.HoldMS < 0 || s.RepeatPauseMS < 0 || s.HandsLostMS < 0 || s.WordIdleMS < 0 {
		return errors.New("spelling durations must be >= 0")
	}
	if s.MinHoldFrames < 1 {
		return errors.New("spelling.min_hold_frames must be >= 1")
	}
	if s.MaxSuggestions < 0 {
		return errors.New("spelling.max_suggestions must be >= 0")
	}
	if s.DefaultTolerance <= 0 {
		return errors.New("spelling.default_tolerance must be positive")
	}
	if cfg.Speech.Enabled && strings.TrimSpace(cfg.Speech.Command) == "" {
		return errors.New("speech.command must be set when speech is enabled")
	}
	if cfg.Bus.Enabled {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when the bus is enabled")
		}
		if cfg.Bus.Prefix == "" {
			return errors.New("bus.prefix must not be empty when the bus is enabled")
		}
	}
	return nil
}
