package models

import "time"

// ExecutionStatus is the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending" // Created for a delayed or batched trigger, not yet walking
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether no further node execution may occur.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// NodeFailure records one node-level failure inside a run. Every failure is
// kept here regardless of error mode, so continue-mode runs still account
// for what went wrong.
type NodeFailure struct {
	NodeID   string    `json:"node_id"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

// Execution is one run of a workflow definition. Context is the accumulating
// variable bag visible to conditions and interpolation; it is seeded from
// the triggering event and extended by fetch_data and loop nodes. Once the
// status is terminal the record is immutable.
type Execution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	TriggerEvent string          `json:"trigger_event"`
	Status       ExecutionStatus `json:"status"`
	Context      map[string]any  `json:"context"`
	StartedAt    time.Time       `json:"started_at"`
	DurationMs   int64           `json:"duration_ms"`
	ErrorMessage string          `json:"error_message,omitempty"`
	NodeFailures []NodeFailure   `json:"node_failures,omitempty"`
}

// RecordFailure appends a node failure to the run's history.
func (e *Execution) RecordFailure(nodeID string, err error, attempts int, at time.Time) {
	e.NodeFailures = append(e.NodeFailures, NodeFailure{
		NodeID:   nodeID,
		Error:    err.Error(),
		Attempts: attempts,
		At:       at,
	})
}

// ResumeKind distinguishes the reasons a run (or run start) is parked in
// durable storage instead of memory.
type ResumeKind string

const (
	ResumeKindDelayNode     ResumeKind = "delay_node"     // Delay node inside a running execution
	ResumeKindDeferredStart ResumeKind = "deferred_start" // Trigger-level delay before the run starts
)

// PendingResume is the durable suspension record: enough state to continue a
// delayed run, or start a deferred one, after a process restart. The poller
// picks up records whose ResumeAt has passed.
type PendingResume struct {
	ID          string         `json:"id"`
	Kind        ResumeKind     `json:"kind"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id,omitempty"` // Empty for deferred starts
	NodeID      string         `json:"node_id,omitempty"`      // Delay node to resume after
	ResumeAt    time.Time      `json:"resume_at"`
	Context     map[string]any `json:"context"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Due reports whether the resume time has arrived.
func (r *PendingResume) Due(now time.Time) bool {
	return !r.ResumeAt.After(now)
}

// BatchedEvent is one buffered trigger event awaiting a batch flush. Events
// are kept in arrival order; the window start is the first event's arrival.
type BatchedEvent struct {
	WorkflowID string         `json:"workflow_id"`
	Payload    map[string]any `json:"payload"`
	ArrivedAt  time.Time      `json:"arrived_at"`
}
