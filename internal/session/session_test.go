package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/landmarks"
	"github.com/ayusman/mudra/internal/spelling"
	"github.com/ayusman/mudra/internal/status"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// fakeSource yields frames sent on its channel.
type fakeSource struct {
	mu      sync.Mutex
	frames  chan Frame
	openErr error
	opens   int
	closes  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan Frame)}
}

func (f *fakeSource) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opens++
	return nil
}

func (f *fakeSource) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame := <-f.frames:
		return frame, nil
	}
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSource) setOpenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

func (f *fakeSource) counts() (opens, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

// labelClassifier reads the label from the first hand's Handedness and the
// confidence from its Score.
type labelClassifier struct {
	calls atomic.Int64
	err   error
}

func (c *labelClassifier) Classify(ctx context.Context, hands []landmarks.Hand) (classifier.Prediction, error) {
	c.calls.Add(1)
	if c.err != nil {
		return classifier.Prediction{}, c.err
	}
	return classifier.Prediction{Label: spelling.Symbol(hands[0].Handedness), Confidence: hands[0].Score}, nil
}

func loaderFor(c Classifier) ModelLoader {
	return func(ctx context.Context) (Classifier, error) { return c, nil }
}

func testConfig() Config {
	return Config{
		Stabilizer: spelling.StabilizerConfig{
			MinConfidence:    0.7,
			HoldDuration:     100 * time.Millisecond,
			MinHoldFrames:    3,
			AllowRepeat:      true,
			RepeatPause:      150 * time.Millisecond,
			HandsLostTimeout: 200 * time.Millisecond,
		},
		Words:         spelling.WordConfig{MaxSuggestions: 5},
		RequiredHands: 1,
		Dictionary:    spelling.DefaultDictionary(),
		Now:           func() time.Time { return t0 },
	}
}

// driver runs frame passes directly against a started session, 50ms apart.
type driver struct {
	s   *Session
	gen uint64
	ts  time.Time
}

func newDriver(t *testing.T, config Config) (*driver, *fakeSource) {
	t.Helper()

	src := newFakeSource()
	config.Source = src
	s := New(config)
	if err := s.LoadModel(context.Background(), loaderFor(&labelClassifier{})); err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(s.Stop)

	return &driver{s: s, gen: s.generation(), ts: t0}, src
}

func (s *Session) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (d *driver) frame(hands int, label spelling.Symbol, conf float64) {
	d.s.handle(d.gen, Frame{Hands: make([]landmarks.Hand, hands), Timestamp: d.ts},
		classifier.Prediction{Label: label, Confidence: conf})
	d.ts = d.ts.Add(50 * time.Millisecond)
}

func (d *driver) hold(label spelling.Symbol, n int) {
	for i := 0; i < n; i++ {
		d.frame(1, label, 0.9)
	}
}

func (d *driver) blank(n int) {
	for i := 0; i < n; i++ {
		d.frame(1, "", 0)
	}
}

func (d *driver) absent(n int) {
	for i := 0; i < n; i++ {
		d.frame(0, "", 0)
	}
}

// spell confirms each letter and pauses long enough that a doubled letter
// counts twice.
func (d *driver) spell(letters ...spelling.Symbol) {
	for _, l := range letters {
		d.hold(l, 3)
		d.blank(3)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSession_NewIsModelLoading(t *testing.T) {
	s := New(testConfig())
	if got := s.Status().State; got != status.ModelLoading {
		t.Errorf("Status() = %v, want model_loading", got)
	}
	snap := s.Snapshot()
	if snap.Running || snap.CurrentSpelledWord != "" || snap.FinalTranslation != "" {
		t.Errorf("Snapshot() = %+v, want empty", snap)
	}
	if snap.Suggestions == nil {
		t.Error("Suggestions should be an empty slice, not nil")
	}
}

func TestSession_SpellHello(t *testing.T) {
	d, _ := newDriver(t, testConfig())

	d.spell("H", "E", "L", "L", "O")

	snap := d.s.Snapshot()
	if snap.CurrentSpelledWord != "HELLO" {
		t.Fatalf("CurrentSpelledWord = %q, want HELLO", snap.CurrentSpelledWord)
	}
	if snap.Status.State != status.Tracking {
		t.Errorf("Status = %v, want tracking", snap.Status)
	}

	word, ok := d.s.Commit()
	if !ok || word != "HELLO" {
		t.Fatalf("Commit() = %q, %v", word, ok)
	}

	snap = d.s.Snapshot()
	if snap.BuildingSentence != "HELLO" || snap.FinalTranslation != "HELLO" {
		t.Errorf("sentence = %q / %q, want HELLO", snap.BuildingSentence, snap.FinalTranslation)
	}
	if snap.CurrentSpelledWord != "" {
		t.Errorf("CurrentSpelledWord = %q, want empty", snap.CurrentSpelledWord)
	}
	if len(snap.Suggestions) != 0 || snap.SuggestionsText != "" {
		t.Errorf("Suggestions = %v, want none", snap.Suggestions)
	}
}

func TestSession_DeleteRecomputesSuggestions(t *testing.T) {
	d, _ := newDriver(t, testConfig())

	d.spell("C", "A", "T", spelling.Delete)

	snap := d.s.Snapshot()
	if snap.CurrentSpelledWord != "CA" {
		t.Fatalf("CurrentSpelledWord = %q, want CA", snap.CurrentSpelledWord)
	}
	if len(snap.Suggestions) == 0 {
		t.Fatal("expected suggestions for CA")
	}
	for _, s := range snap.Suggestions {
		if !strings.HasPrefix(s, "CA") {
			t.Errorf("suggestion %q does not match prefix CA", s)
		}
	}
	if want := strings.Join(snap.Suggestions, "  |  "); snap.SuggestionsText != want {
		t.Errorf("SuggestionsText = %q, want %q", snap.SuggestionsText, want)
	}
}

func TestSession_HandsLostKeepsWord(t *testing.T) {
	tests := []struct {
		name   string
		idle   time.Duration
		absent int
	}{
		{"idle timeout disabled", 0, 8},
		// 40 frames is 2s, twice the idle timeout.
		{"occlusion longer than idle timeout", time.Second, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			config.Words.IdleTimeout = tt.idle
			d, _ := newDriver(t, config)

			var lost, committed atomic.Int32
			d.s.Subscribe(func(e Event) {
				switch e.Kind {
				case KindHandsLost:
					lost.Add(1)
				case KindWordCommitted:
					committed.Add(1)
				}
			})

			d.spell("H", "E")
			d.absent(tt.absent)

			if got := d.s.Status().State; got != status.HandsNotFound {
				t.Errorf("Status() = %v, want hands_not_found", got)
			}
			if lost.Load() != 1 {
				t.Errorf("hands_lost events = %d, want 1", lost.Load())
			}
			if got := d.s.Snapshot().CurrentSpelledWord; got != "HE" {
				t.Fatalf("CurrentSpelledWord after occlusion = %q, want HE", got)
			}

			d.spell("L", "L", "O")
			if committed.Load() != 0 {
				t.Errorf("word_committed events before Commit() = %d, want 0", committed.Load())
			}
			if word, _ := d.s.Commit(); word != "HELLO" {
				t.Errorf("committed %q, want HELLO", word)
			}
			if got := d.s.Snapshot().FinalTranslation; got != "HELLO" {
				t.Errorf("FinalTranslation = %q, want HELLO", got)
			}
		})
	}
}

func TestSession_DoubleBoundary(t *testing.T) {
	t.Run("explicit commit", func(t *testing.T) {
		d, _ := newDriver(t, testConfig())
		d.spell("H", "I")

		if _, ok := d.s.Commit(); !ok {
			t.Fatal("first Commit() should commit")
		}
		if word, ok := d.s.Commit(); ok {
			t.Errorf("second Commit() = %q, want no-op", word)
		}
		if got := d.s.Snapshot().FinalTranslation; got != "HI" {
			t.Errorf("FinalTranslation = %q, want HI", got)
		}
	})

	t.Run("space gesture", func(t *testing.T) {
		d, _ := newDriver(t, testConfig())
		d.spell("H", "I", spelling.Space, spelling.Space)
		d.spell("O", "K", spelling.Space)

		if got := d.s.Snapshot().FinalTranslation; got != "HI OK" {
			t.Errorf("FinalTranslation = %q, want %q", got, "HI OK")
		}
	})
}

func TestSession_Reset(t *testing.T) {
	d, _ := newDriver(t, testConfig())

	d.spell("H", "I")
	d.s.Commit()
	d.spell("H", "E")
	d.hold("L", 2)

	d.s.Reset()
	d.s.Reset()

	snap := d.s.Snapshot()
	if snap.CurrentSpelledWord != "" || snap.BuildingSentence != "" || snap.FinalTranslation != "" {
		t.Errorf("Snapshot() after Reset = %+v", snap)
	}
	if len(snap.Suggestions) != 0 || snap.PendingLetter != "" || snap.RawPrediction != "" {
		t.Errorf("Snapshot() after Reset = %+v", snap)
	}
	if snap.Status.State != status.Tracking {
		t.Errorf("Reset changed status to %v", snap.Status)
	}
}

func TestSession_ClearGesture(t *testing.T) {
	d, _ := newDriver(t, testConfig())

	d.spell("H", "I")
	d.s.Commit()
	d.spell("A", spelling.Clear)

	snap := d.s.Snapshot()
	if snap.CurrentSpelledWord != "" || snap.FinalTranslation != "" {
		t.Errorf("Snapshot() after CLEAR = %+v", snap)
	}

	d.spell("N", "O")
	if got := d.s.Snapshot().CurrentSpelledWord; got != "NO" {
		t.Errorf("CurrentSpelledWord = %q, want NO", got)
	}
}

func TestSession_LowConfidenceIgnored(t *testing.T) {
	d, _ := newDriver(t, testConfig())

	d.hold("A", 2)
	d.frame(1, "A", 0.3)
	d.hold("A", 2)

	if got := d.s.Snapshot().CurrentSpelledWord; got != "" {
		t.Errorf("CurrentSpelledWord = %q, want no letter", got)
	}

	d.hold("A", 1)
	if got := d.s.Snapshot().CurrentSpelledWord; got != "A" {
		t.Errorf("CurrentSpelledWord = %q, want A", got)
	}
}

func TestSession_NotTrackingDropsFrames(t *testing.T) {
	config := testConfig()
	config.RequiredHands = 2
	d, _ := newDriver(t, config)

	for i := 0; i < 10; i++ {
		d.frame(1, "A", 0.9)
	}

	snap := d.s.Snapshot()
	if snap.Status.State != status.HandsNotFound {
		t.Errorf("Status = %v, want hands_not_found", snap.Status)
	}
	if snap.CurrentSpelledWord != "" || snap.PendingLetter != "" {
		t.Errorf("frames leaked into the stabilizer: %+v", snap)
	}
}

func TestSession_IdleTimeoutCommits(t *testing.T) {
	config := testConfig()
	config.Words.IdleTimeout = time.Second
	d, _ := newDriver(t, config)

	d.spell("H", "I")
	d.blank(25)

	snap := d.s.Snapshot()
	if snap.FinalTranslation != "HI" || snap.CurrentSpelledWord != "" {
		t.Errorf("Snapshot() = %+v, want HI committed", snap)
	}
}

func TestSession_AcceptSuggestion(t *testing.T) {
	d, _ := newDriver(t, testConfig())
	d.spell("H", "E", "L")

	snap := d.s.Snapshot()
	if len(snap.Suggestions) == 0 {
		t.Fatal("expected suggestions for HEL")
	}
	if _, ok := d.s.AcceptSuggestion(len(snap.Suggestions)); ok {
		t.Error("AcceptSuggestion(out of range) should be a no-op")
	}

	word, ok := d.s.AcceptSuggestion(0)
	if !ok || word != snap.Suggestions[0] {
		t.Fatalf("AcceptSuggestion(0) = %q, %v", word, ok)
	}
	if got := d.s.Snapshot().FinalTranslation; got != word {
		t.Errorf("FinalTranslation = %q, want %q", got, word)
	}
}

func TestSession_PendingAndRaw(t *testing.T) {
	d, _ := newDriver(t, testConfig())
	d.hold("B", 2)

	snap := d.s.Snapshot()
	if snap.PendingLetter != "B" {
		t.Errorf("PendingLetter = %q, want B", snap.PendingLetter)
	}
	if snap.RawPrediction != "B" || snap.RawConfidence != 0.9 {
		t.Errorf("raw = %q %.2f, want B 0.90", snap.RawPrediction, snap.RawConfidence)
	}
}

func TestSession_LateResultAfterStop(t *testing.T) {
	d, src := newDriver(t, testConfig())
	d.spell("H", "I")

	d.s.Stop()
	before := d.s.Snapshot()
	d.spell("X", "Y", "Z")

	after := d.s.Snapshot()
	if after.CurrentSpelledWord != before.CurrentSpelledWord || after.FinalTranslation != before.FinalTranslation {
		t.Errorf("late results changed state: before %+v, after %+v", before, after)
	}
	if after.CurrentSpelledWord != "HI" {
		t.Errorf("Stop should keep the spelled word, got %q", after.CurrentSpelledWord)
	}
	if after.Status.State != status.Idle || after.Running {
		t.Errorf("after Stop: status %v running %v", after.Status, after.Running)
	}
	if _, closes := src.counts(); closes != 1 {
		t.Errorf("source closed %d times, want 1", closes)
	}

	// A restart must not revive results from the old generation.
	if err := d.s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	d.spell("Q")
	if got := d.s.Snapshot().CurrentSpelledWord; got != "HI" {
		t.Errorf("old generation result applied after restart: %q", got)
	}
}

func TestSession_StartStopIdempotent(t *testing.T) {
	src := newFakeSource()
	config := testConfig()
	config.Source = src
	s := New(config)

	s.Stop()

	if err := s.LoadModel(context.Background(), loaderFor(&labelClassifier{})); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := s.Start(); err != nil {
			t.Fatalf("Start() #%d error = %v", i, err)
		}
	}
	s.Stop()
	s.Stop()

	opens, closes := src.counts()
	if opens != 1 || closes != 1 {
		t.Errorf("opens = %d, closes = %d, want 1 and 1", opens, closes)
	}
}

func TestSession_StartErrors(t *testing.T) {
	t.Run("no model", func(t *testing.T) {
		config := testConfig()
		config.Source = newFakeSource()
		s := New(config)
		if err := s.Start(); !errors.Is(err, ErrModelUnavailable) {
			t.Errorf("Start() error = %v, want ErrModelUnavailable", err)
		}
	})

	t.Run("no source", func(t *testing.T) {
		s := New(testConfig())
		s.LoadModel(context.Background(), loaderFor(&labelClassifier{}))
		if err := s.Start(); !errors.Is(err, ErrNoSource) {
			t.Errorf("Start() error = %v, want ErrNoSource", err)
		}
	})

	t.Run("camera unavailable", func(t *testing.T) {
		d, src := newDriver(t, testConfig())
		d.spell("H", "I")
		d.s.Stop()

		src.setOpenErr(errors.New("device busy"))
		err := d.s.Start()
		if !errors.Is(err, ErrCameraUnavailable) {
			t.Fatalf("Start() error = %v, want ErrCameraUnavailable", err)
		}

		snap := d.s.Snapshot()
		if snap.Status.State != status.Error || snap.Running {
			t.Errorf("status = %v running = %v, want error and stopped", snap.Status, snap.Running)
		}
		if snap.CurrentSpelledWord != "HI" {
			t.Errorf("failed Start changed the word to %q", snap.CurrentSpelledWord)
		}

		src.setOpenErr(nil)
		if err := d.s.Start(); err != nil {
			t.Fatalf("Start() after recovery error = %v", err)
		}
		if got := d.s.Status().State; got != status.Idle {
			t.Errorf("Status() after restart = %v, want idle", got)
		}
	})
}

func TestSession_LoadModelFailure(t *testing.T) {
	d, _ := newDriver(t, testConfig())

	err := d.s.LoadModel(context.Background(), func(ctx context.Context) (Classifier, error) {
		return nil, errors.New("no templates")
	})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("LoadModel() error = %v, want ErrModelUnavailable", err)
	}

	snap := d.s.Snapshot()
	if snap.Status.State != status.Error || snap.Status.Reason != ErrModelUnavailable.Error() {
		t.Errorf("Status = %+v", snap.Status)
	}
	if snap.Running {
		t.Error("failed model load should stop capture")
	}
	if err := d.s.Start(); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Start() error = %v, want ErrModelUnavailable", err)
	}
}

func TestSession_EventsInOrder(t *testing.T) {
	d, _ := newDriver(t, testConfig())

	var kinds []Kind
	var letters []spelling.Symbol
	d.s.Subscribe(func(e Event) {
		// Subscribers may call back into the session.
		_ = d.s.Snapshot()
		kinds = append(kinds, e.Kind)
		if e.Kind == KindLetterConfirmed {
			letters = append(letters, e.Letter)
		}
	})

	d.spell("H", "I")
	d.s.Commit()
	d.s.Reset()

	want := []Kind{KindStatusChanged, KindLetterConfirmed, KindLetterConfirmed, KindWordCommitted, KindReset}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
	if len(letters) != 2 || letters[0] != "H" || letters[1] != "I" {
		t.Errorf("letters = %v, want [H I]", letters)
	}
}

func TestSession_Unsubscribe(t *testing.T) {
	d, _ := newDriver(t, testConfig())

	var n atomic.Int32
	unsubscribe := d.s.Subscribe(func(Event) { n.Add(1) })
	d.s.Reset()
	unsubscribe()
	d.s.Reset()

	if n.Load() != 1 {
		t.Errorf("events after unsubscribe: got %d deliveries, want 1", n.Load())
	}
}

func TestSession_Pipeline(t *testing.T) {
	src := newFakeSource()
	clf := &labelClassifier{}
	config := testConfig()
	config.Source = src
	s := New(config)
	if err := s.LoadModel(context.Background(), loaderFor(clf)); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	ts := t0
	send := func(label string) {
		want := clf.calls.Load() + 1
		src.frames <- Frame{
			Hands:     []landmarks.Hand{{Handedness: label, Score: 0.95}},
			Timestamp: ts,
		}
		ts = ts.Add(50 * time.Millisecond)
		waitFor(t, "classification", func() bool { return clf.calls.Load() >= want })
	}

	for _, l := range []string{"O", "K"} {
		for i := 0; i < 3; i++ {
			send(l)
		}
		for i := 0; i < 3; i++ {
			send("")
		}
	}

	waitFor(t, "spelled word OK", func() bool {
		return s.Snapshot().CurrentSpelledWord == "OK"
	})
}

func TestSession_ClassifierFault(t *testing.T) {
	src := newFakeSource()
	clf := &labelClassifier{err: errors.New("tensor shape mismatch")}
	config := testConfig()
	config.Source = src
	s := New(config)
	if err := s.LoadModel(context.Background(), loaderFor(clf)); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	src.frames <- Frame{Hands: []landmarks.Hand{{Handedness: "A", Score: 0.9}}, Timestamp: t0}

	waitFor(t, "stop after fault", func() bool {
		snap := s.Snapshot()
		return !snap.Running && snap.Status.State == status.Error
	})
	if reason := s.Status().Reason; !strings.Contains(reason, ErrClassifierFault.Error()) {
		t.Errorf("Reason = %q, want classifier fault", reason)
	}
}
