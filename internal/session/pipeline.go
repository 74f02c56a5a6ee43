package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/spelling"
)

const (
	// sourceRetryDelay is the pause after a failed read from the frame source.
	sourceRetryDelay = 50 * time.Millisecond
	// maxSourceErrors consecutive read failures stop capture with
	// ErrCameraUnavailable.
	maxSourceErrors = 25
)

// captureLoop reads frames until ctx is done and hands them to the inference
// loop through box.
func (s *Session) captureLoop(ctx context.Context, gen uint64, source FrameSource, box *inbox, done chan struct{}) {
	defer close(done)

	failures := 0
	for {
		frame, err := source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			s.log.Warn("frame source error", zap.Error(err), zap.Int("consecutive", failures))
			if failures >= maxSourceErrors {
				go s.fault(gen, ErrCameraUnavailable, err)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(sourceRetryDelay):
			}
			continue
		}
		failures = 0

		if frame.Timestamp.IsZero() {
			frame.Timestamp = s.now()
		}
		if box.put(frame) {
			s.metrics.inc(s.metrics.coalesced)
		}
	}
}

// inferenceLoop classifies the latest frame, one at a time, and applies the
// result.
func (s *Session) inferenceLoop(ctx context.Context, gen uint64, box *inbox) {
	for {
		frame, ok := box.take(ctx)
		if !ok {
			return
		}

		s.mu.Lock()
		clf := s.classifier
		s.mu.Unlock()
		if clf == nil {
			s.metrics.inc(s.metrics.discarded)
			continue
		}

		var pred classifier.Prediction
		if len(frame.Hands) >= s.config.RequiredHands {
			var err error
			pred, err = clf.Classify(ctx, frame.Hands)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				s.fault(gen, ErrClassifierFault, err)
				return
			}
		}

		s.handle(gen, frame, pred)
	}
}

// fault moves the status to Error and stops capture for generation gen.
func (s *Session) fault(gen uint64, kind, err error) {
	s.mu.Lock()
	if s.gen != gen || !s.running {
		s.mu.Unlock()
		return
	}
	if s.status.Fail(fmt.Sprintf("%v: %v", kind, err)) {
		s.emitStatusLocked(s.now())
	}
	s.mu.Unlock()
	s.flush()

	s.log.Error("capture fault", zap.Error(fmt.Errorf("%w: %v", kind, err)))
	s.stop(gen)
}

// handle runs one frame pass for a result produced under generation gen.
// Results from an older generation are dropped.
func (s *Session) handle(gen uint64, frame Frame, pred classifier.Prediction) {
	s.mu.Lock()
	if gen != s.gen || !s.running {
		s.mu.Unlock()
		s.metrics.inc(s.metrics.discarded)
		return
	}
	s.processLocked(frame, pred)
	s.mu.Unlock()

	s.metrics.inc(s.metrics.processed)
	s.flush()
}

// processLocked is the frame pass: status, stabilizer, word builder and
// sentence, in that order. s.mu must be held.
func (s *Session) processLocked(frame Frame, pred classifier.Prediction) {
	ts := frame.Timestamp
	hands := len(frame.Hands)
	label := spelling.ParseSymbol(string(pred.Label))

	s.raw = classifier.Prediction{Label: label, Confidence: pred.Confidence}

	if s.status.Frame(hands, s.config.RequiredHands, label != "") {
		s.emitStatusLocked(ts)
	}

	var res spelling.Result
	if s.status.Tracking() {
		res = s.stab.Observe(spelling.FramePrediction{
			Label:        label,
			Confidence:   pred.Confidence,
			HandsVisible: hands,
			Timestamp:    ts,
		})
	} else {
		res = s.stab.Suspend(ts, hands)
	}

	switch {
	case res.HandsLost:
		s.emitLocked(Event{Kind: KindHandsLost, Time: ts})
	case res.Confirmed:
		s.confirmLocked(res.Letter, ts)
	}

	// The idle clock only runs while tracking; an occlusion is not a word
	// boundary.
	if !s.status.Tracking() {
		s.words.Touch(ts)
		return
	}
	if word, ok := s.words.Idle(ts); ok {
		s.commitLocked(word, ts)
	}
}

func (s *Session) confirmLocked(letter spelling.Symbol, ts time.Time) {
	s.metrics.inc(s.metrics.letters)
	s.emitLocked(Event{Kind: KindLetterConfirmed, Letter: letter, Time: ts})

	switch letter {
	case spelling.Space:
		if word, ok := s.words.Commit(); ok {
			s.commitLocked(word, ts)
		}
	case spelling.Clear:
		s.words.Reset()
		s.sentence.Reset()
		s.stab.ForgetLast()
		s.emitLocked(Event{Kind: KindReset, Time: ts})
	default:
		s.words.OnLetter(letter, ts)
	}
}
