package store

import (
	"context"
	"encoding/json"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// RunLog records workflow runs and their event logs.
// All implementations must be safe for concurrent use.
type RunLog interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// AppendEvent assigns event.Sequence and stores the event.
	AppendEvent(ctx context.Context, event *RunEvent) error
	// GetEvents returns events with sequence > since in sequence order.
	// A limit of zero returns all of them.
	GetEvents(ctx context.Context, runID string, since int64, limit int) ([]*RunEvent, error)
	CountEvents(ctx context.Context, runID string) (int, error)
}

// NodeEventPayload is the payload of node events. Started events carry
// Inputs, completed events Outputs and failed events Error.
type NodeEventPayload struct {
	Inputs  map[string]any `json:"inputs,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ReplayNodeStates rebuilds per-node state from a run's full event log.
// It fails when the sequence has gaps.
func ReplayNodeStates(runID string, events []*RunEvent) (map[string]*NodeState, error) {
	for i, e := range events {
		if expected := int64(i + 1); e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in run %s: expected %d, got %d", runID, expected, e.Sequence)
		}
	}

	states := make(map[string]*NodeState)
	for _, e := range events {
		if e.NodeID == "" {
			continue
		}
		ns, ok := states[e.NodeID]
		if !ok {
			ns = &NodeState{NodeID: e.NodeID, Status: schema.NodeStatusPending}
			states[e.NodeID] = ns
		}

		var p struct {
			Inputs  json.RawMessage `json:"inputs"`
			Outputs json.RawMessage `json:"outputs"`
			Error   string          `json:"error"`
		}
		if len(e.Payload) > 0 {
			_ = json.Unmarshal(e.Payload, &p)
		}

		ts := e.Timestamp
		switch e.Type {
		case schema.EventNodeStarted:
			ns.Status = schema.NodeStatusRunning
			ns.StartedAt = &ts
			ns.Inputs = p.Inputs
		case schema.EventNodeCompleted:
			ns.Status = schema.NodeStatusCompleted
			ns.CompletedAt = &ts
			ns.Outputs = p.Outputs
		case schema.EventNodeFailed:
			ns.Status = schema.NodeStatusFailed
			ns.CompletedAt = &ts
			ns.Error = p.Error
		case schema.EventNodeSkipped:
			ns.Status = schema.NodeStatusSkipped
		}
		if ns.StartedAt != nil && ns.CompletedAt != nil {
			ns.DurationMs = ns.CompletedAt.Sub(*ns.StartedAt).Milliseconds()
		}
	}
	return states, nil
}
