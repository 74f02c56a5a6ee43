package session

import (
	"time"

	"github.com/ayusman/mudra/internal/spelling"
	"github.com/ayusman/mudra/internal/status"
)

// Kind identifies a session event.
type Kind string

const (
	KindLetterConfirmed Kind = "letter_confirmed"
	KindWordCommitted   Kind = "word_committed"
	KindStatusChanged   Kind = "status_changed"
	KindReset           Kind = "reset"
	KindHandsLost       Kind = "hands_lost"
)

// Event is pushed to subscribers after every change to session state.
type Event struct {
	Kind     Kind            `json:"kind"`
	Letter   spelling.Symbol `json:"letter,omitempty"`
	Word     string          `json:"word,omitempty"`
	Sentence string          `json:"sentence,omitempty"`
	Status   *status.Status  `json:"status,omitempty"`
	Time     time.Time       `json:"time"`
}

// Subscribe registers fn for every future event and returns a function that
// removes it. Events are delivered in order, one at a time, outside the
// session lock, so fn may call back into the session.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// emitLocked queues an event. s.mu must be held.
func (s *Session) emitLocked(e Event) {
	s.pending = append(s.pending, e)
}

func (s *Session) emitStatusLocked(ts time.Time) {
	st := s.status.Current()
	s.emitLocked(Event{Kind: KindStatusChanged, Status: &st, Time: ts})
}

// flush delivers queued events. Only one goroutine delivers at a time; a
// flush that finds another one running leaves its events to it.
func (s *Session) flush() {
	if !s.dispatchMu.TryLock() {
		return
	}
	for {
		s.mu.Lock()
		events := s.pending
		s.pending = nil
		s.mu.Unlock()

		if len(events) > 0 {
			s.deliver(events)
			continue
		}

		s.dispatchMu.Unlock()

		// An event queued between the last check and Unlock would be
		// stranded if its own flush lost the TryLock race.
		s.mu.Lock()
		empty := len(s.pending) == 0
		s.mu.Unlock()
		if empty || !s.dispatchMu.TryLock() {
			return
		}
	}
}

func (s *Session) deliver(events []Event) {
	s.subMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for id := 0; id < s.nextSub; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.subMu.Unlock()

	for _, e := range events {
		for _, fn := range subs {
			fn(e)
		}
	}
}
