package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventStageFailed    EventType = "stage_failed"
	EventRunCompleted   EventType = "run_completed"
	EventRunFailed      EventType = "run_failed"
)

// AllTypes lists every event a pipeline run can emit.
var AllTypes = []EventType{
	EventRunStarted, EventStageStarted, EventStageCompleted,
	EventStageFailed, EventRunCompleted, EventRunFailed,
}

// Event represents one step in the life of a pipeline run.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id"`
	TicketID  string      `json:"ticket_id"`
	Runner    string      `json:"runner"`
	Stage     string      `json:"stage,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// StageCompletedPayload payload.
type StageCompletedPayload struct {
	ElapsedMS int64 `json:"elapsed_ms"`
	Output    any   `json:"output"`
}

// FailurePayload payload for stage_failed and run_failed.
type FailurePayload struct {
	ElapsedMS int64  `json:"elapsed_ms"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

// RunCompletedPayload payload.
type RunCompletedPayload struct {
	ElapsedMS int64 `json:"elapsed_ms"`
}
