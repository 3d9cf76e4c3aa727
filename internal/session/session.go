// Package session binds one editable graph, its drag controller and its
// document metadata behind a mutex, and publishes every change on the event
// hub. Transports (MCP, HTTP panel, autosave) talk to the graph through it.
package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/internal/interaction"
	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/registry"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Options configures a Session. Zero values select defaults.
type Options struct {
	ID        string
	Radius    float64
	Layout    Layout
	Hub       streaming.EventHub
	Evaluator *expressions.Evaluator
	Logger    *slog.Logger
	Now       func() time.Time
}

// Session is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id       string
	catalog  *registry.Registry
	graph    *graph.Store
	surface  *interaction.EventSource
	gestures *interaction.Controller
	docs     *validation.DocumentValidator
	rules    *expressions.Evaluator
	hub      streaming.EventHub
	layout   Layout
	logger   *slog.Logger
	now      func() time.Time

	meta  documentMeta
	saved uint64
}

// New creates an empty session over catalog.
func New(catalog *registry.Registry, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Layout == (Layout{}) {
		opts.Layout = DefaultLayout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rules := opts.Evaluator
	if rules == nil {
		var err error
		if rules, err = expressions.NewEvaluator(); err != nil {
			return nil, err
		}
	}
	docs, err := validation.NewDocumentValidator(catalog, rules)
	if err != nil {
		return nil, err
	}

	logger = logger.With("session_id", opts.ID)
	s := &Session{
		id:      opts.ID,
		catalog: catalog,
		graph:   graph.NewStore(catalog, logger),
		surface: interaction.NewEventSource(),
		docs:    docs,
		rules:   rules,
		hub:     opts.Hub,
		layout:  opts.Layout,
		logger:  logger,
		now:     opts.Now,
	}
	s.meta = newDocumentMeta(s.now())
	s.gestures = interaction.NewController(s.graph, portLocator{s}, s.surface,
		interaction.ControllerConfig{Radius: opts.Radius}, logger)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Catalog returns the node type registry the session edits against.
func (s *Session) Catalog() *registry.Registry { return s.catalog }

// Layout returns the port anchor layout.
func (s *Session) Layout() Layout { return s.layout }

// AddNode places a node of typeID at a canvas position.
func (s *Session) AddNode(ctx context.Context, typeID string, pos schema.Position) (graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.graph.AddNode(typeID, pos)
	if err != nil {
		return graph.Node{}, err
	}
	s.publish(ctx, schema.EventNodeAdded, n.ID, n)
	return n, nil
}

// PlaceNode adds a node at the canvas point under the centre of the visible
// surface shifted by a screen offset (geometry.SingleClickOffset or
// geometry.DoubleClickOffset).
func (s *Session) PlaceNode(ctx context.Context, typeID string, surface geometry.Size, vp geometry.Viewport, offset geometry.Point) (graph.Node, error) {
	p, err := geometry.PlacementPoint(surface, vp, offset)
	if err != nil {
		return graph.Node{}, err
	}
	return s.AddNode(ctx, typeID, p.Position())
}

// ApplyChanges applies a batch of position, remove and select changes
// atomically.
func (s *Session) ApplyChanges(ctx context.Context, batch []graph.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.graph.ApplyStructuralChange(batch); err != nil {
		return err
	}
	s.publish(ctx, schema.EventNodesChanged, "", batch)
	return nil
}

// UpdateConfig sets one configuration key of a node.
func (s *Session) UpdateConfig(ctx context.Context, nodeID, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.graph.UpdateNodeConfig(nodeID, key, value); err != nil {
		return err
	}
	s.publish(ctx, schema.EventNodeConfigUpdated, nodeID, map[string]any{"key": key, "value": value})
	return nil
}

// Connect creates an edge between two ports, optionally named and carrying
// transformation rules. Rules of a known type must compile.
func (s *Session) Connect(ctx context.Context, source, target graph.Endpoint, name string, rules []schema.TransformationRule) (graph.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range rules {
		if _, err := s.rules.CheckRule(r); err != nil {
			return graph.Edge{}, schema.NewErrorf(schema.ErrCodeExpression, "transformation rule %d (%s) does not compile", i, r.Type).
				WithCause(err)
		}
	}
	e, err := s.graph.ConnectWithRules(source, target, name, rules)
	if err != nil {
		return graph.Edge{}, err
	}
	s.publish(ctx, schema.EventEdgeConnected, "", e)
	return e, nil
}

// CheckConnection reports whether an edge from source to target would be
// accepted, without creating it.
func (s *Session) CheckConnection(source, target graph.Endpoint) graph.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Check(source, target)
}

// RemoveEdge deletes an edge. It reports false when the edge does not exist.
func (s *Session) RemoveEdge(ctx context.Context, edgeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.graph.RemoveEdge(edgeID) {
		return false
	}
	s.publish(ctx, schema.EventEdgeRemoved, "", map[string]any{"id": edgeID})
	return true
}

// Snapshot returns a deep copy of the graph.
func (s *Session) Snapshot() graph.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Snapshot()
}

// Revision returns the graph revision.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Revision()
}

// Dirty reports whether the graph changed since the last MarkSaved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Revision() != s.saved
}

// MarkSaved records that the document at revision was persisted.
func (s *Session) MarkSaved(ctx context.Context, revision uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = revision
	s.publish(ctx, schema.EventWorkflowSaved, "", map[string]any{"workflow_id": s.meta.id})
}

// PreviewEdge runs the transformation rules of an edge over payload.
func (s *Session) PreviewEdge(ctx context.Context, edgeID string, payload any) (*expressions.Preview, error) {
	s.mu.Lock()
	e, ok := s.graph.Edge(edgeID)
	s.mu.Unlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "edge %q does not exist", edgeID)
	}
	return s.rules.Apply(ctx, e.TransformationRules, payload)
}

// publish logs and broadcasts a change. The session logger already carries
// the session id.
func (s *Session) publish(ctx context.Context, eventType, nodeID string, payload any) {
	if nodeID != "" {
		ctx = logging.WithNodeID(ctx, nodeID)
	}
	s.logger.DebugContext(ctx, "graph changed", "event", eventType, "revision", s.graph.Revision())
	if s.hub == nil {
		return
	}
	err := s.hub.Publish(ctx, streaming.StreamEvent{
		SessionID: s.id,
		NodeID:    nodeID,
		EventType: eventType,
		Revision:  s.graph.Revision(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.DebugContext(ctx, "event not published", "event", eventType, "error", err)
	}
}
