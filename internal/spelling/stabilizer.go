package spelling

import "time"

// StabilizerConfig holds the debounce thresholds.
type StabilizerConfig struct {
	// MinConfidence is the lowest confidence a frame may have to count toward a hold.
	MinConfidence float64
	// HoldDuration is how long a label must be held before it is confirmed.
	HoldDuration time.Duration
	// MinHoldFrames is how many consecutive frames a label must be held for.
	MinHoldFrames int
	// AllowRepeat lets the same letter confirm twice in a row after RepeatPause.
	AllowRepeat bool
	// RepeatPause is the gap without the label that separates two intentional holds.
	RepeatPause time.Duration
	// HandsLostTimeout is how long hands may be absent before HandsLost is reported.
	HandsLostTimeout time.Duration
}

// DefaultStabilizerConfig returns thresholds tuned for 15 to 60 fps capture.
func DefaultStabilizerConfig() StabilizerConfig {
	return StabilizerConfig{
		MinConfidence:    0.7,
		HoldDuration:     600 * time.Millisecond,
		MinHoldFrames:    5,
		AllowRepeat:      true,
		RepeatPause:      300 * time.Millisecond,
		HandsLostTimeout: 1500 * time.Millisecond,
	}
}

// Result is the outcome of one observed frame. At most one of Confirmed and
// HandsLost is set.
type Result struct {
	Letter    Symbol
	Confirmed bool
	HandsLost bool
}

type holdPhase int

const (
	unset holdPhase = iota
	holding
	confirmed
)

// Stabilizer is the per-letter hold state machine: Unset, Holding(label,
// since) and Confirmed(label). It is not safe for concurrent use.
type Stabilizer struct {
	config StabilizerConfig

	phase  holdPhase
	label  Symbol
	since  time.Time
	frames int
	// echo marks a hold of the last confirmed letter that started too soon
	// after it was last seen to count as a new letter.
	echo bool

	last     Symbol
	lastSeen time.Time

	absentSince  time.Time
	lostReported bool
}

// NewStabilizer creates a Stabilizer in the Unset state.
func NewStabilizer(config StabilizerConfig) *Stabilizer {
	return &Stabilizer{config: config}
}

// Config returns the thresholds in use.
func (s *Stabilizer) Config() StabilizerConfig {
	return s.config
}

// Observe feeds one frame prediction and reports a confirmed letter or a
// hands-lost event.
func (s *Stabilizer) Observe(p FramePrediction) Result {
	if p.HandsVisible <= 0 {
		return s.absence(p.Timestamp)
	}
	s.present()

	if !p.HasLabel() || p.Confidence < s.config.MinConfidence {
		s.release()
		return Result{}
	}

	ts := p.Timestamp
	switch {
	case s.phase == confirmed && p.Label == s.label:
		s.seen(p.Label, ts)
		return Result{}
	case s.phase == holding && p.Label == s.label:
		s.frames++
	default:
		s.hold(p.Label, ts)
	}
	s.seen(p.Label, ts)

	if s.frames < s.config.MinHoldFrames || ts.Sub(s.since) < s.config.HoldDuration {
		return Result{}
	}

	s.phase = confirmed
	if s.echo {
		return Result{}
	}
	s.last = s.label
	return Result{Letter: s.label, Confirmed: true}
}

// Suspend is fed instead of Observe while frames are not being tracked. It
// drops any hold without confirming and keeps the hands-lost timer running.
func (s *Stabilizer) Suspend(ts time.Time, handsVisible int) Result {
	if handsVisible <= 0 {
		return s.absence(ts)
	}
	s.present()
	s.release()
	return Result{}
}

// ForgetLast clears the last-confirmed memory so the next letter is never
// treated as a repeat. A label still held in Confirmed stays confirmed.
func (s *Stabilizer) ForgetLast() {
	s.last = ""
	s.lastSeen = time.Time{}
	s.echo = false
}

// Reset returns the stabilizer to its initial state.
func (s *Stabilizer) Reset() {
	*s = Stabilizer{config: s.config}
}

// Pending returns the label currently being held, or "" when nothing is.
func (s *Stabilizer) Pending() Symbol {
	if s.phase != holding {
		return ""
	}
	return s.label
}

func (s *Stabilizer) hold(label Symbol, ts time.Time) {
	s.echo = label == s.last &&
		(!s.config.AllowRepeat || ts.Sub(s.lastSeen) < s.config.RepeatPause)
	s.phase = holding
	s.label = label
	s.since = ts
	s.frames = 1
}

func (s *Stabilizer) seen(label Symbol, ts time.Time) {
	if label == s.last {
		s.lastSeen = ts
	}
}

func (s *Stabilizer) release() {
	s.phase = unset
	s.label = ""
	s.since = time.Time{}
	s.frames = 0
	s.echo = false
}

func (s *Stabilizer) present() {
	s.absentSince = time.Time{}
	s.lostReported = false
}

func (s *Stabilizer) absence(ts time.Time) Result {
	s.release()
	if s.absentSince.IsZero() {
		s.absentSince = ts
	}
	if s.lostReported || ts.Sub(s.absentSince) < s.config.HandsLostTimeout {
		return Result{}
	}
	s.lostReported = true
	s.last = ""
	s.lastSeen = time.Time{}
	return Result{HandsLost: true}
}
