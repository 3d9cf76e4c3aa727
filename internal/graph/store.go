// Package graph holds the editable node/edge state of a workflow and the
// rules that decide which connections may be made.
package graph

import (
	"log/slog"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/rendis/flowcanvas/internal/defaults"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Node is a placed instance of a node type.
type Node = schema.WorkflowNode

// Edge is a directed connection from an output port to an input port.
type Edge = schema.Connection

// Snapshot is a deep copy of the graph. Nodes and edges are in insertion order.
type Snapshot struct {
	Nodes    []Node `json:"nodes"`
	Edges    []Edge `json:"edges"`
	Selected string `json:"selected,omitempty"`
	Revision uint64 `json:"revision"`
}

// Store owns the nodes, edges and selection of one graph. It is not safe for
// concurrent use; callers serialize access.
type Store struct {
	catalog   Catalog
	validator *Validator
	logger    *slog.Logger

	nodes     *orderedmap.OrderedMap[string, *Node]
	edges     *orderedmap.OrderedMap[string, *Edge]
	selected  string
	ids       idAllocator
	revision  uint64
	newEdgeID func() string
}

// NewStore creates an empty graph over the given catalog.
func NewStore(catalog Catalog, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		catalog:   catalog,
		validator: NewValidator(catalog),
		logger:    logger,
		nodes:     orderedmap.New[string, *Node](),
		edges:     orderedmap.New[string, *Edge](),
		newEdgeID: uuid.NewString,
	}
}

// Validator returns the connection validator bound to this store's catalog.
func (s *Store) Validator() *Validator { return s.validator }

// Revision is incremented by every successful mutation.
func (s *Store) Revision() uint64 { return s.revision }

// AddNode places a new node of typeID with its default configuration.
func (s *Store) AddNode(typeID string, pos schema.Position) (Node, error) {
	if !s.catalog.Has(typeID) {
		return Node{}, schema.NewErrorf(schema.ErrCodeUnknownType, "node type %q is not in the catalog", typeID).
			WithDetails(map[string]any{"type": typeID})
	}
	cfgSchema, _ := s.catalog.ConfigSchema(typeID)

	n := &Node{
		ID:            s.ids.next(typeID, s.hasNode),
		Type:          typeID,
		Position:      pos,
		Configuration: defaults.Compute(cfgSchema),
	}
	s.nodes.Set(n.ID, n)
	s.revision++
	s.logger.Debug("node added", "node_id", n.ID, "type", typeID)
	return cloneNode(n), nil
}

// ApplyStructuralChange applies a batch of position, removal and selection
// changes. The batch is checked first; on error nothing is applied.
func (s *Store) ApplyStructuralChange(batch []Change) error {
	if len(batch) == 0 {
		return nil
	}
	if err := s.checkBatch(batch); err != nil {
		return err
	}

	for _, c := range batch {
		switch c.Kind {
		case ChangePosition:
			n, _ := s.nodes.Get(c.NodeID)
			n.Position = *c.Position
		case ChangeRemove:
			s.removeNode(c.NodeID)
		case ChangeSelect:
			if c.Selected {
				s.selected = c.NodeID
			} else if s.selected == c.NodeID {
				s.selected = ""
			}
		}
	}
	s.revision++
	return nil
}

func (s *Store) removeNode(id string) {
	var incident []string
	for pair := s.edges.Oldest(); pair != nil; pair = pair.Next() {
		if e := pair.Value; e.SourceNode == id || e.TargetNode == id {
			incident = append(incident, pair.Key)
		}
	}
	for _, eid := range incident {
		s.edges.Delete(eid)
	}
	s.nodes.Delete(id)
	if s.selected == id {
		s.selected = ""
	}
	s.logger.Debug("node removed", "node_id", id, "edges_removed", len(incident))
}

// UpdateNodeConfig sets one configuration key of a node. Values are stored as
// given.
func (s *Store) UpdateNodeConfig(nodeID, key string, value any) error {
	n, ok := s.nodes.Get(nodeID)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q does not exist", nodeID).WithNode(nodeID)
	}
	if n.Configuration == nil {
		n.Configuration = make(map[string]any)
	}
	n.Configuration[key] = schema.CloneValue(value)
	s.revision++
	return nil
}

// Check validates a prospective connection without mutating the graph.
func (s *Store) Check(source, target Endpoint) Verdict {
	return s.validator.Check(s, source, target)
}

// Connect creates an edge from an output port to an input port.
func (s *Store) Connect(sourceNode, sourcePort, targetNode, targetPort string) (Edge, error) {
	return s.ConnectWithRules(Endpoint{sourceNode, sourcePort}, Endpoint{targetNode, targetPort}, "", nil)
}

// ConnectWithRules creates a named edge carrying transformation rules.
func (s *Store) ConnectWithRules(source, target Endpoint, name string, rules []schema.TransformationRule) (Edge, error) {
	if v := s.Check(source, target); !v.Accepted {
		s.logger.Debug("connection rejected", "source", source.String(), "target", target.String(), "reason", v.Reason)
		return Edge{}, v.Err()
	}
	e := &Edge{
		ID:                  s.newEdgeID(),
		Name:                name,
		SourceNode:          source.Node,
		SourcePort:          source.Port,
		TargetNode:          target.Node,
		TargetPort:          target.Port,
		TransformationRules: schema.CloneRules(rules),
	}
	s.edges.Set(e.ID, e)
	s.revision++
	s.logger.Debug("edge connected", "edge_id", e.ID, "source", source.String(), "target", target.String())
	return cloneEdge(e), nil
}

// RemoveEdge deletes an edge. It reports whether the edge existed.
func (s *Store) RemoveEdge(edgeID string) bool {
	if _, ok := s.edges.Delete(edgeID); !ok {
		return false
	}
	s.revision++
	return true
}

// Node returns a copy of a node.
func (s *Store) Node(id string) (Node, bool) {
	n, ok := s.nodes.Get(id)
	if !ok {
		return Node{}, false
	}
	return cloneNode(n), true
}

// Edge returns a copy of an edge.
func (s *Store) Edge(id string) (Edge, bool) {
	e, ok := s.edges.Get(id)
	if !ok {
		return Edge{}, false
	}
	return cloneEdge(e), true
}

// NodeType returns the type of a node.
func (s *Store) NodeType(nodeID string) (string, bool) {
	n, ok := s.nodes.Get(nodeID)
	if !ok {
		return "", false
	}
	return n.Type, true
}

// Occupied reports whether any edge ends at target.
func (s *Store) Occupied(target Endpoint) bool {
	for pair := s.edges.Oldest(); pair != nil; pair = pair.Next() {
		if e := pair.Value; e.TargetNode == target.Node && e.TargetPort == target.Port {
			return true
		}
	}
	return false
}

// Selected returns the selected node id, or "".
func (s *Store) Selected() string { return s.selected }

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int { return s.nodes.Len() }

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int { return s.edges.Len() }

// Snapshot returns a deep copy of the graph.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Nodes:    make([]Node, 0, s.nodes.Len()),
		Edges:    make([]Edge, 0, s.edges.Len()),
		Selected: s.selected,
		Revision: s.revision,
	}
	for pair := s.nodes.Oldest(); pair != nil; pair = pair.Next() {
		snap.Nodes = append(snap.Nodes, cloneNode(pair.Value))
	}
	for pair := s.edges.Oldest(); pair != nil; pair = pair.Next() {
		snap.Edges = append(snap.Edges, cloneEdge(pair.Value))
	}
	return snap
}

// Restore replaces the whole graph. Callers validate the nodes and edges
// first. The id counter moves past every restored node id and the selection
// is cleared.
func (s *Store) Restore(nodes []Node, edges []Edge) {
	s.nodes = orderedmap.New[string, *Node](len(nodes))
	s.edges = orderedmap.New[string, *Edge](len(edges))
	s.selected = ""
	for i := range nodes {
		n := cloneNode(&nodes[i])
		if n.Configuration == nil {
			n.Configuration = make(map[string]any)
		}
		s.nodes.Set(n.ID, &n)
		s.ids.observe(n.ID)
	}
	for i := range edges {
		e := cloneEdge(&edges[i])
		s.edges.Set(e.ID, &e)
	}
	s.revision++
	s.logger.Debug("graph restored", "nodes", len(nodes), "edges", len(edges))
}

func (s *Store) hasNode(id string) bool {
	_, ok := s.nodes.Get(id)
	return ok
}

func cloneNode(n *Node) Node {
	c := *n
	c.Configuration = schema.CloneMap(n.Configuration)
	return c
}

func cloneEdge(e *Edge) Edge {
	c := *e
	c.TransformationRules = schema.CloneRules(e.TransformationRules)
	return c
}
