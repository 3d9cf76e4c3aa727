package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Workflow is a saved workflow document. Name and Description mirror the
// document metadata so listings do not decode documents.
type Workflow struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	CurrentVersionID string           `json:"current_version_id,omitempty"`
	Document         *schema.Workflow `json:"document"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// WorkflowVersion is an immutable snapshot of a workflow document.
type WorkflowVersion struct {
	ID          string           `json:"id"`
	WorkflowID  string           `json:"workflow_id"`
	Version     int              `json:"version"`
	Description string           `json:"description,omitempty"`
	Document    *schema.Workflow `json:"document"`
	CreatedAt   time.Time        `json:"created_at"`
}

// WorkflowFilter narrows ListWorkflows. Results are ordered by most recent
// update first.
type WorkflowFilter struct {
	NameContains string `json:"name_contains,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// FromDocument builds a record for doc, copying its id and metadata.
func FromDocument(doc *schema.Workflow) *Workflow {
	return &Workflow{
		ID:          doc.ID,
		Name:        doc.Metadata.Name,
		Description: doc.Metadata.Description,
		Document:    doc,
	}
}

// Run is the summary record of one workflow execution. Per-node state is
// not stored here; it is rebuilt from the run's events with ReplayNodeStates.
type Run struct {
	ID          string           `json:"id"`
	WorkflowID  string           `json:"workflow_id"`
	SessionID   string           `json:"session_id,omitempty"`
	Status      schema.RunStatus `json:"status"`
	Progress    float64          `json:"progress"`
	CurrentNode string           `json:"current_node,omitempty"`
	NodeCount   int              `json:"node_count"`
	Error       string           `json:"error,omitempty"`
	Document    *schema.Workflow `json:"document,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     *time.Time       `json:"ended_at,omitempty"`
}

// RunEvent is one entry of a run's append-only log. Sequence is assigned on
// append and is contiguous per run starting at 1.
type RunEvent struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	NodeID    string          `json:"node_id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// NodeState is the replayed state of one node in a run.
type NodeState struct {
	NodeID      string            `json:"node_id"`
	Status      schema.NodeStatus `json:"status"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	DurationMs  int64             `json:"duration_ms,omitempty"`
	Inputs      json.RawMessage   `json:"inputs,omitempty"`
	Outputs     json.RawMessage   `json:"outputs,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// RunFilter narrows ListRuns. Results are ordered newest first.
type RunFilter struct {
	WorkflowID string           `json:"workflow_id,omitempty"`
	Status     schema.RunStatus `json:"status,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}
