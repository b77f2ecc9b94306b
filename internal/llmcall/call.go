// Package llmcall records every backend call and every document outcome in
// a SQLite ledger so runs can be inspected after the fact.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/longform/internal/batch"
	"github.com/jackzampolin/longform/internal/providers"
)

// Call represents a recorded backend call.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int64     `json:"latency_ms"`

	// Context references
	RunID    string `json:"run_id,omitempty"`
	Document string `json:"document,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Site     string `json:"site"`

	// Model info
	Backend  string `json:"backend"`
	Model    string `json:"model"`
	Attempts int    `json:"attempts"`

	// Prompt traceability
	PromptHash    string `json:"prompt_hash"`
	ResponseChars int    `json:"response_chars"`

	// Status
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FromEvent creates a Call from an observer event.
func FromEvent(runID string, ev providers.CallEvent) *Call {
	call := &Call{
		ID:            uuid.New().String(),
		Timestamp:     ev.Time,
		LatencyMs:     ev.Latency.Milliseconds(),
		RunID:         runID,
		Document:      ev.Labels.Document,
		Unit:          ev.Labels.Unit,
		Site:          ev.Labels.Site,
		Backend:       ev.Backend,
		Model:         ev.Model,
		Attempts:      ev.Attempts,
		PromptHash:    ev.PromptHash,
		ResponseChars: ev.Response,
		Success:       ev.Err == nil,
	}
	if call.Timestamp.IsZero() {
		call.Timestamp = time.Now()
	}
	if ev.Err != nil {
		call.Error = ev.Err.Error()
	}
	return call
}

// Outcome is a recorded document disposition.
type Outcome struct {
	RunID          string    `json:"run_id"`
	Key            string    `json:"key"`
	RequestID      string    `json:"request_id,omitempty"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	Failure        string    `json:"failure,omitempty"`
	Attempts       int       `json:"attempts"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	FromCheckpoint bool      `json:"from_checkpoint"`
	Timestamp      time.Time `json:"timestamp"`
}

// FromBatchOutcome converts an orchestrator outcome.
func FromBatchOutcome(o batch.Outcome) *Outcome {
	ts := o.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Outcome{
		RunID:          o.RunID,
		Key:            o.Key,
		RequestID:      o.RequestID,
		Kind:           o.Kind.String(),
		Status:         string(o.Status),
		Failure:        o.Failure,
		Attempts:       o.Attempts,
		ElapsedSeconds: o.Elapsed,
		FromCheckpoint: o.FromCheckpoint,
		Timestamp:      ts,
	}
}
