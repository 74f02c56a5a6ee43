package speech

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// writeScript writes an executable shell script into a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}
	path := filepath.Join(t.TempDir(), "speak.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestNewExecSpeaker(t *testing.T) {
	tests := []struct {
		name    string
		command string
		wantErr bool
	}{
		{"simple", "say", false},
		{"quoted args", `espeak-wrapper --voice "en us"`, false},
		{"empty", "   ", true},
		{"unterminated quote", `say "hello`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExecSpeaker(tt.command, "", time.Second)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewExecSpeaker(%q) error = %v, wantErr %v", tt.command, err, tt.wantErr)
			}
		})
	}
}

func TestExecSpeaker_Speak(t *testing.T) {
	out := filepath.Join(t.TempDir(), "request.json")
	script := writeScript(t, `cat > "$1"
echo '{"success":true}'
`)

	s, err := NewExecSpeaker(script+" "+out, "en-IN", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Speak(context.Background(), "  HELLO WORLD "); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("request is not JSON: %v", err)
	}
	if req.Action != "speak" || req.Text != "HELLO WORLD" || req.Voice != "en-IN" {
		t.Errorf("request = %+v", req)
	}
}

func TestExecSpeaker_Errors(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		s, _ := NewExecSpeaker("true", "", time.Second)
		if err := s.Speak(context.Background(), " "); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Speak() error = %v, want ErrEmptyText", err)
		}
	})

	t.Run("reported failure", func(t *testing.T) {
		script := writeScript(t, `cat >/dev/null
echo '{"success":false,"error":"no audio device"}'
`)
		s, _ := NewExecSpeaker(script, "", 5*time.Second)
		err := s.Speak(context.Background(), "HI")
		if err == nil || !strings.Contains(err.Error(), "no audio device") {
			t.Errorf("Speak() error = %v, want reported failure", err)
		}
	})

	t.Run("exit status", func(t *testing.T) {
		script := writeScript(t, `echo "engine crashed" >&2
exit 3
`)
		s, _ := NewExecSpeaker(script, "", 5*time.Second)
		err := s.Speak(context.Background(), "HI")
		if err == nil || !strings.Contains(err.Error(), "engine crashed") {
			t.Errorf("Speak() error = %v, want stderr in error", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		script := writeScript(t, `exec sleep 5
`)
		s, _ := NewExecSpeaker(script, "", 100*time.Millisecond)
		err := s.Speak(context.Background(), "HI")
		if err == nil || !strings.Contains(err.Error(), "timeout") {
			t.Errorf("Speak() error = %v, want timeout", err)
		}
	})
}

func TestPrimer(t *testing.T) {
	var calls atomic.Int32
	p := NewPrimer(func(context.Context) error {
		calls.Add(1)
		return errors.New("audio locked")
	})

	for i := 0; i < 3; i++ {
		if err := p.Prime(context.Background()); err == nil {
			t.Error("Prime() should return the first result on every call")
		}
	}
	if calls.Load() != 1 {
		t.Errorf("priming ran %d times, want 1", calls.Load())
	}

	if err := NewPrimer(nil).Prime(context.Background()); err != nil {
		t.Errorf("nil primer error = %v", err)
	}
}

func TestMockSpeaker(t *testing.T) {
	m := NewMockSpeaker()

	if err := m.Speak(context.Background(), ""); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Speak(\"\") error = %v, want ErrEmptyText", err)
	}
	m.Speak(context.Background(), "HELLO")

	failure := errors.New("busy")
	m.SetError(failure)
	if err := m.Speak(context.Background(), "AGAIN"); !errors.Is(err, failure) {
		t.Errorf("Speak() error = %v, want %v", err, failure)
	}

	if got := m.Spoken(); len(got) != 1 || got[0] != "HELLO" {
		t.Errorf("Spoken() = %v, want [HELLO]", got)
	}
}
