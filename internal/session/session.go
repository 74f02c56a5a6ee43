// Package session owns the fingerspelling state of one user and drives it
// from a frame source through a classifier, one frame pass at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/landmarks"
	"github.com/ayusman/mudra/internal/spelling"
	"github.com/ayusman/mudra/internal/status"
)

var (
	// ErrModelUnavailable is returned when no classifier is loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrCameraUnavailable is returned when the frame source cannot be opened.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrClassifierFault marks an unrecoverable classifier error.
	ErrClassifierFault = errors.New("classifier fault")
	// ErrNoSource is returned by Start when no frame source is configured.
	ErrNoSource = errors.New("no frame source configured")
)

// Frame is the hands seen in one captured frame.
type Frame struct {
	Hands     []landmarks.Hand
	Timestamp time.Time
}

// FrameSource yields frames. Next blocks until a frame is available or ctx
// is done.
type FrameSource interface {
	Open() error
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Classifier maps the hands of one frame to a letter prediction.
type Classifier interface {
	Classify(ctx context.Context, hands []landmarks.Hand) (classifier.Prediction, error)
}

// ModelLoader builds a classifier.
type ModelLoader func(ctx context.Context) (Classifier, error)

// Config configures a Session.
type Config struct {
	Stabilizer    spelling.StabilizerConfig
	Words         spelling.WordConfig
	RequiredHands int
	Dictionary    *spelling.Dictionary
	Source        FrameSource
	Logger        *zap.Logger
	// Now stamps control events. Frame events use the frame timestamp.
	Now func() time.Time
}

// DefaultConfig returns the default thresholds, two required hands and the
// built-in dictionary.
func DefaultConfig() Config {
	return Config{
		Stabilizer:    spelling.DefaultStabilizerConfig(),
		Words:         spelling.DefaultWordConfig(),
		RequiredHands: 2,
		Dictionary:    spelling.DefaultDictionary(),
	}
}

// Snapshot is a read-only copy of everything the presentation layer shows.
type Snapshot struct {
	Status             status.Status `json:"status"`
	StatusText         string        `json:"status_text"`
	Running            bool          `json:"running"`
	RawPrediction      string        `json:"raw_prediction"`
	RawConfidence      float64       `json:"raw_confidence"`
	PendingLetter      string        `json:"pending_letter"`
	CurrentSpelledWord string        `json:"current_spelled_word"`
	Suggestions        []string      `json:"suggestions"`
	SuggestionsText    string        `json:"suggestions_text"`
	BuildingSentence   string        `json:"building_sentence"`
	FinalTranslation   string        `json:"final_translation"`
}

// Session owns the stabilizer, word builder, sentence and status of one
// user. All of it is guarded by one mutex, so control operations always run
// between frame passes.
type Session struct {
	config  Config
	log     *zap.Logger
	metrics *metrics
	now     func() time.Time

	// life serializes Start and Stop.
	life sync.Mutex

	mu          sync.Mutex
	stab        *spelling.Stabilizer
	words       *spelling.WordBuilder
	sentence    spelling.Sentence
	status      *status.Reporter
	classifier  Classifier
	source      FrameSource
	raw         classifier.Prediction
	running     bool
	gen         uint64
	cancel      context.CancelFunc
	captureDone chan struct{}
	inbox       *inbox
	pending     []Event

	dispatchMu sync.Mutex
	subMu      sync.Mutex
	subs       map[int]func(Event)
	nextSub    int
}

// New creates a Session in the ModelLoading state.
func New(config Config) *Session {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if config.RequiredHands <= 0 {
		config.RequiredHands = 1
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	log = log.Named("session")
	return &Session{
		config:  config,
		log:     log,
		metrics: newMetrics(log),
		now:     now,
		stab:    spelling.NewStabilizer(config.Stabilizer),
		words:   spelling.NewWordBuilder(config.Words, config.Dictionary),
		status:  status.NewReporter(),
		source:  config.Source,
		subs:    make(map[int]func(Event)),
	}
}

// LoadModel runs loader and installs the classifier it returns. On failure
// the status becomes Error, capture stops and Start is refused until a later
// LoadModel succeeds.
func (s *Session) LoadModel(ctx context.Context, loader ModelLoader) error {
	s.mu.Lock()
	if s.status.Loading() {
		s.emitStatusLocked(s.now())
	}
	s.mu.Unlock()
	s.flush()

	clf, err := loader(ctx)
	if err == nil && clf == nil {
		err = errors.New("loader returned no classifier")
	}

	s.mu.Lock()
	if err != nil {
		s.classifier = nil
		running := s.running
		if s.status.Fail(ErrModelUnavailable.Error()) {
			s.emitStatusLocked(s.now())
		}
		s.mu.Unlock()
		s.flush()

		s.log.Error("model load failed", zap.Error(err))
		if running {
			s.Stop()
		}
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	s.classifier = clf
	if s.status.Ready() {
		s.emitStatusLocked(s.now())
	}
	s.mu.Unlock()
	s.flush()

	s.log.Info("model loaded")
	return nil
}

// Start opens the frame source and starts capture and inference. It is a
// no-op while running. A source that fails to open moves the status to
// Error and leaves the spelled text untouched.
func (s *Session) Start() error {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.classifier == nil {
		s.mu.Unlock()
		return ErrModelUnavailable
	}
	if s.source == nil {
		s.mu.Unlock()
		return ErrNoSource
	}
	source := s.source
	s.mu.Unlock()

	if err := source.Open(); err != nil {
		s.mu.Lock()
		if s.status.Fail(ErrCameraUnavailable.Error()) {
			s.emitStatusLocked(s.now())
		}
		s.mu.Unlock()
		s.flush()

		s.log.Error("failed to open frame source", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	box := newInbox()
	done := make(chan struct{})

	s.mu.Lock()
	if s.status.Recover() {
		s.emitStatusLocked(s.now())
	}
	s.gen++
	gen := s.gen
	s.running = true
	s.cancel = cancel
	s.captureDone = done
	s.inbox = box
	s.stab.Reset()
	s.mu.Unlock()
	s.flush()

	go s.captureLoop(ctx, gen, source, box, done)
	go s.inferenceLoop(ctx, gen, box)

	s.log.Info("capture started", zap.Uint64("generation", gen))
	return nil
}

// Stop cancels capture and closes the frame source. Any inference result
// that arrives afterwards is discarded. The spelled text is kept.
func (s *Session) Stop() {
	s.stop(0)
}

// stop stops the session if it is running generation gen, or any generation
// when gen is 0.
func (s *Session) stop(gen uint64) {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	if !s.running || (gen != 0 && gen != s.gen) {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.gen++
	cancel, done, box, source := s.cancel, s.captureDone, s.inbox, s.source
	s.cancel, s.captureDone, s.inbox = nil, nil, nil
	s.raw = classifier.Prediction{}
	s.stab.Reset()
	if s.status.Stopped() {
		s.emitStatusLocked(s.now())
	}
	s.mu.Unlock()
	s.flush()

	cancel()
	box.close()
	<-done
	if err := source.Close(); err != nil {
		s.log.Warn("failed to close frame source", zap.Error(err))
	}

	s.log.Info("capture stopped", zap.Uint64("coalesced", box.dropped()))
}

// Reset clears the stabilizer, spelled word, suggestions and sentence in one
// step. It never changes the status and is safe at any time.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resetLocked(s.now())
	s.mu.Unlock()
	s.flush()
}

func (s *Session) resetLocked(ts time.Time) {
	s.stab.Reset()
	s.words.Reset()
	s.sentence.Reset()
	s.raw = classifier.Prediction{}
	s.emitLocked(Event{Kind: KindReset, Time: ts})
}

// Commit ends the spelled word and appends it to the sentence. An empty word
// is a no-op.
func (s *Session) Commit() (string, bool) {
	s.mu.Lock()
	word, ok := s.words.Commit()
	if ok {
		s.commitLocked(word, s.now())
	}
	s.mu.Unlock()
	s.flush()
	return word, ok
}

// AcceptSuggestion commits suggestion i in place of the spelled word.
func (s *Session) AcceptSuggestion(i int) (string, bool) {
	s.mu.Lock()
	word, ok := s.words.Accept(i)
	if ok {
		s.commitLocked(word, s.now())
	}
	s.mu.Unlock()
	s.flush()
	return word, ok
}

func (s *Session) commitLocked(word string, ts time.Time) {
	s.stab.ForgetLast()
	if !s.sentence.Append(word) {
		return
	}
	s.metrics.inc(s.metrics.words)
	s.emitLocked(Event{Kind: KindWordCommitted, Word: word, Sentence: s.sentence.String(), Time: ts})
}

// SetDictionary replaces the suggestion dictionary.
func (s *Session) SetDictionary(dict *spelling.Dictionary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words.SetDictionary(dict)
}

// SetSource replaces the frame source. It takes effect on the next Start.
func (s *Session) SetSource(source FrameSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
}

// Status returns the current detection status.
func (s *Session) Status() status.Status {
	return s.status.Current()
}

// Snapshot returns the current state for display.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status.Current()
	suggestions := s.words.Suggestions()
	if suggestions == nil {
		suggestions = []string{}
	}
	sentence := s.sentence.String()

	return Snapshot{
		Status:             st,
		StatusText:         st.String(),
		Running:            s.running,
		RawPrediction:      string(s.raw.Label),
		RawConfidence:      s.raw.Confidence,
		PendingLetter:      string(s.stab.Pending()),
		CurrentSpelledWord: s.words.Word(),
		Suggestions:        suggestions,
		SuggestionsText:    strings.Join(suggestions, "  |  "),
		BuildingSentence:   sentence,
		FinalTranslation:   sentence,
	}
}
