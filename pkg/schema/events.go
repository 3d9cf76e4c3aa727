package schema

// Event type constants published on the change stream after each mutation.
const (
	EventNodeAdded         = "node_added"
	EventNodesChanged      = "nodes_changed"
	EventNodeConfigUpdated = "node_config_updated"
	EventEdgeConnected     = "edge_connected"
	EventEdgeRemoved       = "edge_removed"
	EventWorkflowImported  = "workflow_imported"
	EventWorkflowSaved     = "workflow_saved"

	EventGestureStarted   = "gesture_started"
	EventGestureHighlight = "gesture_highlight"
	EventGestureEnded     = "gesture_ended"
	EventGestureAborted   = "gesture_aborted"
)
