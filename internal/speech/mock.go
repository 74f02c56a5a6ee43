package speech

import (
	"context"
	"strings"
	"sync"
)

// MockSpeaker records what it was asked to say.
type MockSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func NewMockSpeaker() *MockSpeaker {
	return &MockSpeaker{}
}

// SetError makes Speak fail with err.
func (m *MockSpeaker) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockSpeaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.spoken = append(m.spoken, text)
	return nil
}

// Spoken returns everything spoken so far.
func (m *MockSpeaker) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}
