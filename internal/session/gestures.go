package session

import (
	"context"

	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/interaction"
	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// StartGesture begins a drag from a port at a screen point. An empty
// from.Direction is taken from the node's type.
func (s *Session) StartGesture(ctx context.Context, from interaction.PortRef, screen geometry.Point, vp geometry.Viewport) (interaction.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.resolveDirection(from)
	if err != nil {
		return s.gestures.State(), err
	}
	if err := s.gestures.GestureStart(from.Node, from.Port, dir, screen, vp); err != nil {
		return s.gestures.State(), err
	}
	st := s.gestures.State()
	s.publishGesture(ctx, schema.EventGestureStarted, st.Drag.GestureID, st.Drag)
	return st, nil
}

// resolveDirection finds the side of the node carrying the port. A stated
// direction must match the node type.
func (s *Session) resolveDirection(from interaction.PortRef) (schema.PortDirection, error) {
	typeID, ok := s.graph.NodeType(from.Node)
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeUnknownNode, "node %q does not exist", from.Node).
			WithNode(from.Node)
	}
	if from.Direction == "" {
		if dir, ok := s.catalog.PortDirection(typeID, from.Port); ok {
			return dir, nil
		}
	} else if _, ok := s.catalog.Port(typeID, from.Port, from.Direction); ok {
		return from.Direction, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeUnknownPort, "type %q has no port %q", typeID, from.Port).
		WithNode(from.Node).
		WithDetails(map[string]any{"port": from.Port, "direction": string(from.Direction)})
}

// Input delivers a surface event to the active drag. Events arriving while
// idle are dropped. It returns the controller state after the event.
func (s *Session) Input(ctx context.Context, ev interaction.InputEvent) interaction.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.gestures.State()
	revision := s.graph.Revision()
	s.surface.Emit(ev)
	after := s.gestures.State()

	if before.Drag == nil {
		return after
	}
	gestureID := before.Drag.GestureID

	if after.Drag != nil {
		if !samePort(before.Drag.Highlighted, after.Drag.Highlighted) {
			s.publishGesture(ctx, schema.EventGestureHighlight, gestureID, after.Drag.Highlighted)
		}
		return after
	}

	if s.graph.Revision() != revision {
		snap := s.graph.Snapshot()
		s.publish(ctx, schema.EventEdgeConnected, "", snap.Edges[len(snap.Edges)-1])
	}
	if ev.Kind == interaction.InputPointerUp {
		s.publishGesture(ctx, schema.EventGestureEnded, gestureID, ev.Target)
	} else {
		s.publishGesture(ctx, schema.EventGestureAborted, gestureID, nil)
	}
	return after
}

// EndGesture finishes the drag on target, which may be nil.
func (s *Session) EndGesture(ctx context.Context, target *interaction.PortRef) (interaction.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var gestureID string
	if st := s.gestures.State(); st.Drag != nil {
		gestureID = st.Drag.GestureID
	}
	out, err := s.gestures.GestureEnd(target)
	if err != nil {
		return out, err
	}
	if out.Connected {
		s.publish(ctx, schema.EventEdgeConnected, "", *out.Edge)
	}
	s.publishGesture(ctx, schema.EventGestureEnded, gestureID, out)
	return out, nil
}

// AbortGesture cancels the drag, if any.
func (s *Session) AbortGesture(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.gestures.State()
	if st.Drag == nil {
		return
	}
	s.gestures.GestureAbort()
	s.publishGesture(ctx, schema.EventGestureAborted, st.Drag.GestureID, nil)
}

// Gesture returns a copy of the drag controller state.
func (s *Session) Gesture() interaction.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gestures.State()
}

// Subscribers returns the number of handlers on the session's input surface.
// It is one during a drag and zero otherwise.
func (s *Session) Subscribers() int { return s.surface.Subscribers() }

func (s *Session) publishGesture(ctx context.Context, eventType, gestureID string, payload any) {
	s.publish(logging.WithGestureID(ctx, gestureID), eventType, "", payload)
}

func samePort(a, b *interaction.PortRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

var _ interaction.Connector = (*graph.Store)(nil)
