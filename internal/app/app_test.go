package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/landmarks"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/spelling"
	"github.com/ayusman/mudra/internal/status"
	"github.com/ayusman/mudra/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Bus.Enabled = false
	cfg.Speech.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) (*App, *detector.MockDetector) {
	t.Helper()
	det := detector.NewMockDetector()
	a, err := New(Options{
		Config:   cfg,
		Camera:   capture.NewMockCamera(nil, false),
		Detector: det,
		Speaker:  speech.NewMockSpeaker(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, det
}

func TestNew_CreatesStore(t *testing.T) {
	cfg := testConfig(t)
	a, _ := newTestApp(t, cfg)

	if _, err := os.Stat(filepath.Join(cfg.DataDir, "mudra.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
	if got := a.Session().Status().State; got != status.ModelLoading {
		t.Errorf("initial status = %v, want model_loading", got)
	}
	if a.Bus() != nil {
		t.Error("bus should be nil when disabled")
	}
}

func TestApp_LoadModelEmptyStore(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))

	if err := a.LoadModel(context.Background()); err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	if got := a.Session().Status().State; got != status.Idle {
		t.Errorf("status = %v, want idle", got)
	}
}

func TestApp_Dictionary(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "words.txt")
	if err := os.WriteFile(path, []byte("# custom\nZYGOTE 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.Spelling.DictionaryPath = path

	a, _ := newTestApp(t, cfg)

	dict, err := a.dictionary()
	if err != nil {
		t.Fatal(err)
	}
	if !knows(dict, "ZYGOTE") {
		t.Error("dictionary file words should be merged")
	}
	if !knows(dict, "HELLO") {
		t.Error("built-in words should be kept")
	}

	if err := a.Store().Words().Add("qwxyz", 2); err != nil {
		t.Fatal(err)
	}
	if err := a.RefreshDictionary(); err != nil {
		t.Fatalf("RefreshDictionary() error = %v", err)
	}
	dict, _ = a.dictionary()
	if !knows(dict, "QWXYZ") {
		t.Error("stored custom words should be merged")
	}
}

func TestNew_MissingDictionary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Spelling.DictionaryPath = filepath.Join(t.TempDir(), "missing.txt")

	if _, err := New(Options{Config: cfg, Detector: detector.NewMockDetector()}); err == nil {
		t.Error("New() with a missing dictionary file should fail")
	}
}

func TestApp_Speak(t *testing.T) {
	cfg := testConfig(t)
	speaker := speech.NewMockSpeaker()
	a, err := New(Options{Config: cfg, Camera: capture.NewMockCamera(nil, false), Detector: detector.NewMockDetector(), Speaker: speaker})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if err := a.Speak(context.Background()); err == nil {
		t.Error("Speak() with an empty sentence should fail")
	}
}

func TestApp_Close(t *testing.T) {
	a, det := newTestApp(t, testConfig(t))

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !det.Closed() {
		t.Error("detector should be closed")
	}
	// Second close is a no-op.
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/.mudra", filepath.Join(home, ".mudra")},
		{"/var/lib/mudra", "/var/lib/mudra"},
		{"relative/~", "relative/~"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ExpandHome(tt.in); got != tt.want {
				t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestApp_TrainedLetterPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()
	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.SetFPS(50)

	det := detector.NewMockDetector()
	det.SetHands(landmarks.Pair(landmarks.ThumbsUp()))

	cfg := testConfig(t)
	cfg.Spelling.HoldMS = 100
	cfg.Spelling.MinHoldFrames = 3

	a, err := New(Options{Config: cfg, Camera: cam, Detector: det})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	letter := &store.Letter{ID: "letter-a", Symbol: "A", Hands: 2, Tolerance: 0.25}
	if err := a.Store().Letters().Create(letter); err != nil {
		t.Fatal(err)
	}
	points := landmarks.Features(landmarks.Pair(landmarks.ThumbsUp()))
	if err := a.Store().Letters().SetLandmarks(letter.ID, points); err != nil {
		t.Fatal(err)
	}
	if err := a.LoadModel(context.Background()); err != nil {
		t.Fatal(err)
	}

	confirmed := make(chan session.Event, 4)
	unsubscribe := a.Session().Subscribe(func(e session.Event) {
		if e.Kind == session.KindLetterConfirmed {
			select {
			case confirmed <- e:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case e := <-confirmed:
		if e.Letter != "A" {
			t.Errorf("confirmed letter = %q, want A", e.Letter)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no letter confirmed")
	}

	if got := a.Session().Snapshot().CurrentSpelledWord; got == "" {
		t.Error("spelled word should not be empty after a confirmation")
	}
}

// knows reports whether dict has word; an exact match always ranks first.
func knows(dict *spelling.Dictionary, word string) bool {
	sugg := dict.Suggest(word, 1)
	return len(sugg) == 1 && sugg[0] == word
}
