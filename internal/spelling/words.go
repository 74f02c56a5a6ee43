package spelling

import (
	"strings"
	"time"
)

// WordConfig configures a WordBuilder.
type WordConfig struct {
	// MaxSuggestions caps the suggestion list.
	MaxSuggestions int
	// IdleTimeout commits a non-empty word after no letter for this long. Zero disables it.
	IdleTimeout time.Duration
}

// DefaultWordConfig returns the default word settings.
func DefaultWordConfig() WordConfig {
	return WordConfig{
		MaxSuggestions: 5,
		IdleTimeout:    4 * time.Second,
	}
}

// WordBuilder accumulates confirmed letters into the word being spelled and
// keeps its suggestion list current. It is not safe for concurrent use.
type WordBuilder struct {
	config      WordConfig
	dict        *Dictionary
	letters     []Symbol
	suggestions []string
	lastLetter  time.Time
}

// NewWordBuilder creates an empty WordBuilder. dict may be nil, in which case
// no suggestions are produced.
func NewWordBuilder(config WordConfig, dict *Dictionary) *WordBuilder {
	return &WordBuilder{config: config, dict: dict}
}

// OnLetter applies a confirmed symbol. Text symbols append, DELETE removes the
// last letter. SPACE and CLEAR are boundary controls and are ignored here.
// It reports whether the word changed.
func (w *WordBuilder) OnLetter(s Symbol, ts time.Time) bool {
	switch s {
	case "", Space, Clear:
		return false
	case Delete:
		if len(w.letters) == 0 {
			return false
		}
		w.letters = w.letters[:len(w.letters)-1]
	default:
		w.letters = append(w.letters, s)
	}
	w.lastLetter = ts
	w.suggestions = w.dict.Suggest(w.Word(), w.config.MaxSuggestions)
	return true
}

// Commit ends the current word and returns it. An empty word is not committed.
func (w *WordBuilder) Commit() (string, bool) {
	if len(w.letters) == 0 {
		return "", false
	}
	word := w.Word()
	w.Reset()
	return word, true
}

// Accept commits suggestion i in place of the spelled word.
func (w *WordBuilder) Accept(i int) (string, bool) {
	if i < 0 || i >= len(w.suggestions) {
		return "", false
	}
	word := w.suggestions[i]
	w.Reset()
	return word, true
}

// Idle commits the word once the idle timeout has passed since the last letter.
func (w *WordBuilder) Idle(now time.Time) (string, bool) {
	if w.config.IdleTimeout <= 0 || len(w.letters) == 0 {
		return "", false
	}
	if now.Sub(w.lastLetter) < w.config.IdleTimeout {
		return "", false
	}
	return w.Commit()
}

// Touch restarts the idle timer at ts without changing the word. Time spent
// with the hands out of view does not count towards the idle timeout.
func (w *WordBuilder) Touch(ts time.Time) {
	if len(w.letters) == 0 || ts.Before(w.lastLetter) {
		return
	}
	w.lastLetter = ts
}

// Reset clears the word and its suggestions.
func (w *WordBuilder) Reset() {
	w.letters = nil
	w.suggestions = nil
	w.lastLetter = time.Time{}
}

// Word returns the word spelled so far.
func (w *WordBuilder) Word() string {
	var b strings.Builder
	for _, s := range w.letters {
		b.WriteString(string(s))
	}
	return b.String()
}

// Suggestions returns a copy of the current suggestion list.
func (w *WordBuilder) Suggestions() []string {
	if len(w.suggestions) == 0 {
		return nil
	}
	out := make([]string, len(w.suggestions))
	copy(out, w.suggestions)
	return out
}

// SetDictionary swaps the dictionary and recomputes suggestions.
func (w *WordBuilder) SetDictionary(dict *Dictionary) {
	w.dict = dict
	w.suggestions = dict.Suggest(w.Word(), w.config.MaxSuggestions)
}
