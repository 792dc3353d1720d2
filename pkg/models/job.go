package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownStatus is returned when a persisted or submitted status is not one of
// the known job states.
var ErrUnknownStatus = errors.New("unknown job status")

// Status is the lifecycle state of an AnalysisJob. The set is closed: values
// outside the constants below are rejected by ParseStatus.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusProcessing   Status = "PROCESSING"
	StatusCompleted    Status = "COMPLETED"
	StatusReadyForAI   Status = "READY_FOR_AI"
	StatusAIProcessing Status = "AI_PROCESSING"
	StatusAICompleted  Status = "AI_COMPLETED"
	StatusFailed       Status = "FAILED"
)

var knownStatuses = map[Status]bool{
	StatusStarted:      true,
	StatusProcessing:   true,
	StatusCompleted:    true,
	StatusReadyForAI:   true,
	StatusAIProcessing: true,
	StatusAICompleted:  true,
	StatusFailed:       true,
}

// ParseStatus converts a raw string into a Status, failing on unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !knownStatuses[st] {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return knownStatuses[s] }

// IsTerminal reports whether an orchestrator run ends in this state.
func (s Status) IsTerminal() bool {
	return s == StatusAICompleted || s == StatusFailed
}

// FramesReady reports whether frame extraction has finished for this state.
func (s Status) FramesReady() bool {
	return s == StatusCompleted || s == StatusReadyForAI
}

// validTransitions lists the allowed status changes. FAILED -> AI_PROCESSING is
// the recovery path; COMPLETED -> FAILED covers a trigger on a job with no frames.
var validTransitions = map[Status]map[Status]bool{
	StatusStarted: {
		StatusProcessing: true,
		StatusCompleted:  true,
		StatusFailed:     true,
	},
	StatusProcessing: {
		StatusCompleted:  true,
		StatusReadyForAI: true,
		StatusFailed:     true,
	},
	StatusCompleted: {
		StatusReadyForAI:   true,
		StatusAIProcessing: true,
		StatusFailed:       true,
	},
	StatusReadyForAI: {
		StatusAIProcessing: true,
		StatusFailed:       true,
	},
	StatusAIProcessing: {
		StatusAICompleted: true,
		StatusFailed:      true,
	},
	StatusFailed: {
		StatusAIProcessing: true,
	},
}

// CanTransition reports whether moving from one status to another is allowed.
// Staying in the same status is always allowed (progress-only writes).
func CanTransition(from, to Status) bool {
	if from == to {
		return from.Valid()
	}
	return validTransitions[from][to]
}

// Frame is one extracted still image reference. Phase is the swing-phase label
// (e.g. "P1_address") used as the ordering key.
type Frame struct {
	Phase       string  `json:"phase"                  validate:"required"`
	URL         string  `json:"url"                    validate:"required,url"`
	FrameNumber int     `json:"frame_number,omitempty"`
	Timestamp   float64 `json:"timestamp,omitempty"`
	S3Key       string  `json:"s3_key,omitempty"`
}

// StateTransition records one status change in the job history.
type StateTransition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// AnalysisJob is the persisted record of one swing-video analysis.
type AnalysisJob struct {
	ID              string            `db:"id"               json:"job_id"`
	OwnerID         string            `db:"owner_id"         json:"owner_id"`
	Status          Status            `db:"status"           json:"status"`
	ProgressMessage string            `db:"progress_message" json:"progress_message"`
	Frames          []Frame           `db:"frames"           json:"frames"`
	AIResult        *AIResult         `db:"ai_analysis"      json:"ai_analysis,omitempty"`
	AICompleted     bool              `db:"ai_completed"     json:"ai_completed"`
	Transitions     []StateTransition `db:"transitions"      json:"transitions,omitempty"`
	VideoKey        string            `db:"video_key"        json:"video_key,omitempty"`
	Version         int64             `db:"version"          json:"version"`
	CreatedAt       time.Time         `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at"       json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate a response view without
// touching the stored record.
func (j *AnalysisJob) Clone() *AnalysisJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Frames = append([]Frame(nil), j.Frames...)
	c.Transitions = append([]StateTransition(nil), j.Transitions...)
	if j.AIResult != nil {
		r := *j.AIResult
		c.AIResult = &r
	}
	return &c
}
