// Package analysis defines the domain model shared by every ispitch component:
// the [Analysis] aggregate, its status state machine, the per-stage result
// types, and the wire format of progress events.
//
// Optional sub-results are pointers. A nil pointer means the measurement was
// not produced (the analyzer was not configured or the stage did not run) and
// must never be read as a zero measurement.
package analysis

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an [Analysis].
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusTranscribing    Status = "TRANSCRIBING"
	StatusAnalyzingSpeech Status = "ANALYZING_SPEECH"
	StatusAnalyzingAudio  Status = "ANALYZING_AUDIO"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
)

// order gives the position of each non-failed status along the happy path.
var order = map[Status]int{
	StatusPending:         0,
	StatusTranscribing:    1,
	StatusAnalyzingSpeech: 2,
	StatusAnalyzingAudio:  3,
	StatusCompleted:       4,
}

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := order[s]
	return ok
}

// IsTerminal reports whether s is COMPLETED or FAILED. Terminal analyses are
// immutable.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next respects the state
// machine: each step advances exactly one position along
// PENDING → TRANSCRIBING → ANALYZING_SPEECH → ANALYZING_AUDIO → COMPLETED,
// and FAILED may follow any non-terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() || !s.IsValid() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	cur, ok := order[s]
	if !ok {
		return false
	}
	n, ok := order[next]
	return ok && n == cur+1
}

// Analysis is the aggregate root produced by one pipeline run.
type Analysis struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Status    Status    `json:"status"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Score is derived from SpeechAnalysis and AudioAnalysis; nil until the
	// workflow computes it.
	Score *int `json:"score,omitempty"`

	Transcription  *Transcription  `json:"transcription,omitempty"`
	SpeechAnalysis *SpeechAnalysis `json:"speechAnalysis,omitempty"`
	AudioAnalysis  *AudioAnalysis  `json:"audioAnalysis,omitempty"`
}

// NewPending returns a freshly submitted analysis in the PENDING state.
func NewPending(id, userID, filename string, now time.Time) *Analysis {
	return &Analysis{
		ID:        id,
		UserID:    userID,
		Status:    StatusPending,
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewFailed returns the minimal record persisted when a run fails: identity
// fields only, status FAILED, no measurements.
func NewFailed(id, userID, filename string, now time.Time) *Analysis {
	return &Analysis{
		ID:        id,
		UserID:    userID,
		Status:    StatusFailed,
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves a to next, updating UpdatedAt. It refuses transitions the
// state machine does not allow, including any change to a terminal analysis.
func (a *Analysis) Advance(next Status, now time.Time) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("analysis %s: invalid transition %s -> %s", a.ID, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

// IntPtr returns a pointer to v. Useful for setting [Analysis.Score].
func IntPtr(v int) *int { return &v }
