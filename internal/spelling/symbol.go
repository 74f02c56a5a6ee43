// Package spelling turns a stream of per-frame letter predictions into
// confirmed letters, spelled words and an assembled sentence.
package spelling

import (
	"strings"
	"time"
)

// Symbol is one label of the fingerspelling alphabet.
type Symbol string

// Control symbols. Every other symbol is text.
const (
	Space  Symbol = "SPACE"
	Delete Symbol = "DELETE"
	Clear  Symbol = "CLEAR"
)

// ParseSymbol normalizes a classifier label. "DEL" is accepted as Delete.
func ParseSymbol(label string) Symbol {
	s := Symbol(strings.ToUpper(strings.TrimSpace(label)))
	if s == "DEL" {
		return Delete
	}
	return s
}

// IsControl reports whether s is SPACE, DELETE or CLEAR.
func (s Symbol) IsControl() bool {
	switch s {
	case Space, Delete, Clear:
		return true
	}
	return false
}

func (s Symbol) String() string { return string(s) }

// FramePrediction is the classifier output for one frame. An empty Label
// means no prediction.
type FramePrediction struct {
	Label        Symbol
	Confidence   float64
	HandsVisible int
	Timestamp    time.Time
}

// HasLabel reports whether the classifier produced a label for the frame.
func (p FramePrediction) HasLabel() bool {
	return p.Label != ""
}
