package spelling

import (
	"strings"
	"unicode"
)

// Sentence is the running list of committed words.
type Sentence struct {
	words []string
}

// Append adds a committed word. Blank words are ignored and it reports
// whether the sentence changed.
func (s *Sentence) Append(word string) bool {
	word = strings.Join(strings.Fields(word), " ")
	if word == "" {
		return false
	}
	s.words = append(s.words, word)
	return true
}

// String renders the sentence with single spaces between words. Words made
// only of punctuation attach to the word before them.
func (s *Sentence) String() string {
	var b strings.Builder
	for i, w := range s.words {
		if i > 0 && !isPunctuation(w) {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String()
}

// Words returns a copy of the committed words.
func (s *Sentence) Words() []string {
	out := make([]string, len(s.words))
	copy(out, s.words)
	return out
}

// Len returns the number of committed words.
func (s *Sentence) Len() int {
	return len(s.words)
}

// Reset empties the sentence.
func (s *Sentence) Reset() {
	s.words = nil
}

func isPunctuation(word string) bool {
	for _, r := range word {
		if !unicode.IsPunct(r) {
			return false
		}
	}
	return word != ""
}
