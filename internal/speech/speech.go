// Package speech hands the final translation to an external text-to-speech
// facility.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// ErrEmptyText is returned when there is nothing to speak.
var ErrEmptyText = errors.New("nothing to speak")

// Speaker speaks a piece of text.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Request is written as JSON to the speech command's stdin.
type Request struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
	Voice  string `json:"voice,omitempty"`
}

// Response is read as JSON from the speech command's stdout.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ExecSpeaker runs an external command once per utterance.
type ExecSpeaker struct {
	cmd     []string
	voice   string
	timeout time.Duration
	mu      sync.Mutex
}

// NewExecSpeaker parses command with shell quoting rules. A non-positive
// timeout means 10 seconds.
func NewExecSpeaker(command, voice string, timeout time.Duration) (*ExecSpeaker, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("speech command empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ExecSpeaker{cmd: args, voice: voice, timeout: timeout}, nil
}

// Speak sends text to the command. Utterances never overlap.
func (s *ExecSpeaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	return s.run(ctx, Request{Action: "speak", Text: text, Voice: s.voice})
}

// Prime asks the command to warm up its audio output without speaking.
func (s *ExecSpeaker) Prime(ctx context.Context) error {
	return s.run(ctx, Request{Action: "prime", Voice: s.voice})
}

func (s *ExecSpeaker) run(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("speech command timeout after %s", s.timeout)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("speech command failed: %w, stderr: %s", err, msg)
		}
		return fmt.Errorf("speech command failed: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return fmt.Errorf("failed to parse speech response: %w, stdout: %s", err, stdout.String())
	}
	if !resp.Success {
		return fmt.Errorf("speech command: %s", resp.Error)
	}
	return nil
}

// Primer runs a priming step at most once. Platforms that only unlock audio
// after a user gesture call Prime from that gesture's handler.
type Primer struct {
	once sync.Once
	fn   func(context.Context) error
	err  error
}

// NewPrimer wraps fn. A nil fn primes nothing.
func NewPrimer(fn func(context.Context) error) *Primer {
	return &Primer{fn: fn}
}

// Prime runs the priming step on the first call and returns its result on
// every call.
func (p *Primer) Prime(ctx context.Context) error {
	p.once.Do(func() {
		if p.fn != nil {
			p.err = p.fn(ctx)
		}
	})
	return p.err
}
