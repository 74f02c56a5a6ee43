// Package app wires the mudra components together: store, camera, detector,
// session, speech and the event bus.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/bus"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/spelling"
	"github.com/ayusman/mudra/internal/store"
)

// Options holds what New needs. Camera, Detector and Speaker replace the
// configured devices when set.
type Options struct {
	Config   config.Config
	Logger   *zap.Logger
	Camera   capture.Camera
	Detector detector.Detector
	Speaker  speech.Speaker
}

// App is the assembled application.
type App struct {
	config   config.Config
	log      *zap.Logger
	store    *store.Store
	detector detector.Detector
	session  *session.Session
	speaker  speech.Speaker
	primer   *speech.Primer
	bus      *bus.Publisher
	detach   func()

	// fileWords are the entries read from the configured dictionary file.
	fileWords []spelling.Entry

	closeOnce sync.Once
}

// New opens the store and builds every component. The model is not loaded
// until LoadModel is called.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	dataDir := ExpandHome(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.New(filepath.Join(dataDir, "mudra.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{config: cfg, log: log, store: st}

	if path := cfg.Spelling.DictionaryPath; path != "" {
		if a.fileWords, err = readWords(ExpandHome(path)); err != nil {
			st.Close()
			return nil, err
		}
	}

	a.detector = opts.Detector
	if a.detector == nil {
		a.detector = newDetector(cfg, log)
	}

	camera := opts.Camera
	if camera == nil {
		camera = capture.NewCamera(captureConfig(cfg.Camera))
	}
	source := capture.NewLandmarkSource(camera, a.detector, captureConfig(cfg.Camera), log)

	dict, err := a.dictionary()
	if err != nil {
		st.Close()
		return nil, err
	}

	sessionConfig := cfg.Session()
	sessionConfig.Source = source
	sessionConfig.Logger = log
	sessionConfig.Dictionary = dict
	a.session = session.New(sessionConfig)

	a.speaker = opts.Speaker
	if a.speaker == nil && cfg.Speech.Enabled {
		exec, err := speech.NewExecSpeaker(cfg.Speech.Command, cfg.Speech.Voice, time.Duration(cfg.Speech.TimeoutMS)*time.Millisecond)
		if err != nil {
			st.Close()
			return nil, err
		}
		a.speaker = exec
		a.primer = speech.NewPrimer(exec.Prime)
	}

	if cfg.Bus.Enabled {
		pub, err := bus.Connect(cfg.Bus, log)
		if err != nil {
			log.Warn("event bus unavailable, continuing without it", zap.Error(err))
		} else {
			a.bus = pub
			a.detach = pub.Attach(a.session)
		}
	}

	return a, nil
}

// newDetector tries MediaPipe first and falls back to the mock detector.
func newDetector(cfg config.Config, log *zap.Logger) detector.Detector {
	dc := detector.DefaultConfig()
	dc.MaxHands = cfg.Spelling.RequiredHands
	if dc.MaxHands < 2 {
		dc.MaxHands = 2
	}
	dc.ScriptPath = ExpandHome(cfg.Detector.Script)
	dc.PythonPath = ExpandHome(cfg.Detector.Python)
	dc.IdleTimeout = time.Duration(cfg.Detector.IdleTimeout) * time.Millisecond

	mp, err := detector.NewMediaPipeDetector(dc)
	if err != nil {
		log.Warn("MediaPipe not available, using mock detector", zap.Error(err))
		return detector.NewMockDetector()
	}
	log.Info("using MediaPipe hand detection")
	return mp
}

func captureConfig(c config.CameraConfig) capture.Config {
	return capture.Config{
		DeviceID:        c.DeviceID,
		Width:           c.Width,
		Height:          c.Height,
		FPS:             c.FPS,
		MotionThreshold: c.MotionThreshold,
		MaxStillFrames:  c.MaxStillFrames,
	}
}

func readWords(path string) ([]spelling.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	entries, err := spelling.LoadWords(f)
	if err != nil {
		return nil, fmt.Errorf("load dictionary %s: %w", path, err)
	}
	return entries, nil
}

// dictionary merges the built-in list, the dictionary file and the stored
// custom words.
func (a *App) dictionary() (*spelling.Dictionary, error) {
	words, err := a.store.Words().List()
	if err != nil {
		return nil, fmt.Errorf("list custom words: %w", err)
	}

	extra := append([]spelling.Entry(nil), a.fileWords...)
	for _, w := range words {
		extra = append(extra, spelling.Entry{Word: w.Word, Frequency: w.Frequency})
	}
	return spelling.DefaultDictionary().Merge(extra...), nil
}

// RefreshDictionary reloads custom words into the session.
func (a *App) RefreshDictionary() error {
	dict, err := a.dictionary()
	if err != nil {
		return err
	}
	a.session.SetDictionary(dict)
	a.log.Info("dictionary refreshed", zap.Int("words", dict.Len()))
	return nil
}

// LoadModel loads the trained letter templates into the session.
func (a *App) LoadModel(ctx context.Context) error {
	return a.session.LoadModel(ctx, func(ctx context.Context) (session.Classifier, error) {
		clf, err := classifier.Load(ctx, a.store.Letters(), a.config.Spelling.RequiredHands)
		if err != nil {
			return nil, err
		}
		if clf.Len() == 0 {
			a.log.Warn("no trained letters yet, nothing will be recognized")
		} else {
			a.log.Info("letter templates loaded", zap.Int("letters", clf.Len()))
		}
		return clf, nil
	})
}

// Start starts capture and primes the speech engine in the background.
func (a *App) Start() error {
	if err := a.session.Start(); err != nil {
		return err
	}
	if a.primer != nil {
		go func() {
			if err := a.primer.Prime(context.Background()); err != nil {
				a.log.Warn("speech prime failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Speak reads the assembled sentence aloud.
func (a *App) Speak(ctx context.Context) error {
	if a.speaker == nil {
		return fmt.Errorf("speech is disabled")
	}
	return a.speaker.Speak(ctx, a.session.Snapshot().FinalTranslation)
}

// Server builds the HTTP server for this app.
func (a *App) Server(staticDir string, metrics http.Handler) *server.Server {
	var busHealthy func() bool
	if a.bus != nil {
		busHealthy = a.bus.Healthy
	}
	return server.New(server.Config{
		StaticDir:        staticDir,
		Store:            a.store,
		Session:          a.session,
		Speaker:          a.speaker,
		Reload:           a.LoadModel,
		WordsChanged:     a.RefreshDictionary,
		Metrics:          metrics,
		BusHealthy:       busHealthy,
		RequiredHands:    a.config.Spelling.RequiredHands,
		DefaultTolerance: a.config.Spelling.DefaultTolerance,
		Logger:           a.log,
	})
}

// Session returns the spelling session.
func (a *App) Session() *session.Session {
	return a.session
}

// Store returns the letter store.
func (a *App) Store() *store.Store {
	return a.store
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	return a.detector
}

// Bus returns the event publisher, or nil when the bus is off.
func (a *App) Bus() *bus.Publisher {
	return a.bus
}

// Close stops capture and releases every resource.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.session.Stop()
		if a.detach != nil {
			a.detach()
		}
		a.bus.Close()
		if derr := a.detector.Close(); derr != nil {
			a.log.Warn("error closing detector", zap.Error(derr))
		}
		err = a.store.Close()
	})
	return err
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
