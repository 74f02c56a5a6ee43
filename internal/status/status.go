// Package status derives the detection status shown to the user.
package status

import (
	"fmt"
	"sync"
)

// State is the detection state.
type State int

const (
	ModelLoading State = iota
	Idle
	HandsNotFound
	Tracking
	Error
)

var stateNames = map[State]string{
	ModelLoading:  "model_loading",
	Idle:          "idle",
	HandsNotFound: "hands_not_found",
	Tracking:      "tracking",
	Error:         "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Status is a State plus the reason for an Error.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// String returns the human readable status line.
func (s Status) String() string {
	switch s.State {
	case ModelLoading:
		return "Initializing model..."
	case Idle:
		return "Ready. Start the camera to begin."
	case HandsNotFound:
		return "Hands not found. Show both hands to the camera."
	case Tracking:
		return "Tracking hands..."
	case Error:
		if s.Reason == "" {
			return "Error"
		}
		return "Error: " + s.Reason
	}
	return s.State.String()
}

// Reporter is the status state machine:
//
//	ModelLoading -> Idle -> HandsNotFound <-> Tracking -> Error
//
// Error is left only through Recover, Loading or Ready. Reporter is safe for
// concurrent use.
type Reporter struct {
	mu     sync.RWMutex
	status Status
}

// NewReporter creates a Reporter in ModelLoading.
func NewReporter() *Reporter {
	return &Reporter{status: Status{State: ModelLoading}}
}

// Current returns the current status.
func (r *Reporter) Current() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Tracking reports whether frames should be forwarded to the stabilizer.
func (r *Reporter) Tracking() bool {
	return r.Current().State == Tracking
}

// Loading marks the model as loading.
func (r *Reporter) Loading() bool {
	return r.set(Status{State: ModelLoading})
}

// Ready marks the model as loaded.
func (r *Reporter) Ready() bool {
	return r.set(Status{State: Idle})
}

// Fail moves to Error with the given reason.
func (r *Reporter) Fail(reason string) bool {
	return r.set(Status{State: Error, Reason: reason})
}

// Stopped returns to Idle after capture stops. Loading and Error are kept.
func (r *Reporter) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status.State {
	case HandsNotFound, Tracking:
		return r.setLocked(Status{State: Idle})
	}
	return false
}

// Recover leaves Error for Idle. It is a no-op in any other state.
func (r *Reporter) Recover() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State != Error {
		return false
	}
	return r.setLocked(Status{State: Idle})
}

// Frame applies one processed frame: the visible hand count, the required
// count and whether the classifier produced a prediction. It is ignored while
// the model is loading or in Error.
func (r *Reporter) Frame(hands, required int, hasPrediction bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status.State {
	case ModelLoading, Error:
		return false
	}
	if hands < required {
		return r.setLocked(Status{State: HandsNotFound})
	}
	if hasPrediction && r.status.State != Tracking {
		return r.setLocked(Status{State: Tracking})
	}
	return false
}

func (r *Reporter) set(s Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setLocked(s)
}

func (r *Reporter) setLocked(s Status) bool {
	if r.status == s {
		return false
	}
	r.status = s
	return true
}
