package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcanvas/internal/streaming"
)

// notificationMethod is the MCP logging notification used for graph events.
const notificationMethod = "notifications/message"

// EventNotifier pushes canvas events to the MCP clients watching the canvas.
type EventNotifier struct {
	mcpServer *server.MCPServer
	watches   *WatchRegistry
	logger    *slog.Logger
}

// NewEventNotifier creates a notifier over mcpServer's client sessions.
func NewEventNotifier(mcpServer *server.MCPServer, watches *WatchRegistry, logger *slog.Logger) *EventNotifier {
	return &EventNotifier{mcpServer: mcpServer, watches: watches, logger: logger}
}

// Notify delivers one event. Best-effort: clients that have gone away are
// dropped from the registry and are not an error.
func (n *EventNotifier) Notify(_ context.Context, ev streaming.StreamEvent) error {
	payload := map[string]any{
		"level":  "info",
		"logger": "flowcanvas",
		"data":   ev,
	}
	var errs []error
	for _, clientID := range n.watches.Watchers(ev.SessionID) {
		err := n.mcpServer.SendNotificationToSpecificClient(clientID, notificationMethod, payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.watches.Remove(clientID)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run forwards hub events until ctx is cancelled.
func (n *EventNotifier) Run(ctx context.Context, hub streaming.EventHub) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := n.Notify(ctx, ev); err != nil {
				n.logger.Warn("mcp notification failed", "session_id", ev.SessionID, "event_type", ev.EventType, "error", err)
			}
		}
	}
}
