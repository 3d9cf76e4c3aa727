package streaming

import "context"

// StreamEvent is one editor change. Revision is the session's graph revision
// after the change, so readers can detect gaps.
type StreamEvent struct {
	SessionID string `json:"session_id"`
	NodeID    string `json:"node_id,omitempty"`
	EventType string `json:"event_type"`
	Revision  uint64 `json:"revision"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter narrows a subscription to one session, one node and/or a set
// of event types.
type EventFilter struct {
	SessionID  string   `json:"session_id,omitempty"`
	NodeID     string   `json:"node_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub is the change feed shared by the session layer and its readers
// (SSE streams, MCP notifications).
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
