// Package engine executes exported workflows: nodes run in dependency order,
// each by the runner registered for its type, with payloads flowing along
// connections through their transformation rules.
package engine

import (
	"fmt"
	"sort"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Catalog resolves node types.
type Catalog interface {
	Get(typeID string) (schema.NodeType, error)
}

// DAG is the executable form of a workflow document.
type DAG struct {
	Nodes      map[string]*schema.WorkflowNode // node ID → node
	Types      map[string]schema.NodeType      // node ID → resolved type
	Upstream   map[string][]string             // node ID → source nodes feeding it
	Downstream map[string][]string             // node ID → nodes it feeds
	Incoming   map[string][]schema.Connection  // node ID → connections targeting it
	Sorted     []string                        // topological order
	Roots      []string                        // nodes without upstream nodes
	Levels     [][]string                      // nodes runnable together
	order      map[string]int                  // node ID → document index
}

// ParseDAG resolves every node type and connection endpoint of doc and
// orders the nodes with Kahn's algorithm. Ties are broken by document order,
// so the same document always yields the same order.
func ParseDAG(doc *schema.Workflow, catalog Catalog) (*DAG, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow document is nil")
	}
	if len(doc.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow has no nodes")
	}

	dag := &DAG{
		Nodes:      make(map[string]*schema.WorkflowNode, len(doc.Nodes)),
		Types:      make(map[string]schema.NodeType, len(doc.Nodes)),
		Upstream:   make(map[string][]string, len(doc.Nodes)),
		Downstream: make(map[string][]string, len(doc.Nodes)),
		Incoming:   make(map[string][]schema.Connection, len(doc.Nodes)),
		order:      make(map[string]int, len(doc.Nodes)),
	}

	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		if n.ID == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node at index %d has empty ID", i)
		}
		if _, dup := dag.Nodes[n.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node ID: %s", n.ID)
		}
		nt, err := catalog.Get(n.Type)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeUnknownType, "node %s has unknown type %q", n.ID, n.Type).
				WithNode(n.ID).WithCause(err)
		}
		dag.Nodes[n.ID] = n
		dag.Types[n.ID] = nt
		dag.order[n.ID] = i
	}

	linked := make(map[[2]string]bool)
	for _, c := range doc.Connections {
		for _, end := range []string{c.SourceNode, c.TargetNode} {
			if _, ok := dag.Nodes[end]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodeUnknownNode, "connection %s references missing node %q", c.ID, end).
					WithNode(end)
			}
		}
		if c.SourceNode == c.TargetNode {
			return nil, schema.NewErrorf(schema.ErrCodeCycleDetected, "connection %s links node %s to itself", c.ID, c.SourceNode).
				WithNode(c.SourceNode)
		}
		dag.Incoming[c.TargetNode] = append(dag.Incoming[c.TargetNode], c)
		key := [2]string{c.SourceNode, c.TargetNode}
		if linked[key] {
			continue
		}
		linked[key] = true
		dag.Upstream[c.TargetNode] = append(dag.Upstream[c.TargetNode], c.SourceNode)
		dag.Downstream[c.SourceNode] = append(dag.Downstream[c.SourceNode], c.TargetNode)
	}

	inDegree := make(map[string]int, len(dag.Nodes))
	queue := make([]string, 0)
	for _, n := range doc.Nodes {
		inDegree[n.ID] = len(dag.Upstream[n.ID])
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	dag.Roots = append([]string(nil), queue...)

	sorted := make([]string, 0, len(dag.Nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		next := append([]string(nil), dag.Downstream[node]...)
		dag.byDocument(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if len(sorted) != len(dag.Nodes) {
		return nil, schema.NewError(schema.ErrCodeCycleDetected, "workflow contains a cycle")
	}
	dag.Sorted = sorted
	dag.Levels = computeLevels(dag)
	return dag, nil
}

// computeLevels groups nodes by depth: every node's upstream nodes sit on
// earlier levels.
func computeLevels(dag *DAG) [][]string {
	depth := make(map[string]int, len(dag.Nodes))
	maxLevel := 0
	for _, id := range dag.Sorted {
		d := 0
		for _, up := range dag.Upstream[id] {
			d = max(d, depth[up]+1)
		}
		depth[id] = d
		maxLevel = max(maxLevel, d)
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range dag.Sorted {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	for _, level := range levels {
		dag.byDocument(level)
	}
	return levels
}

func (d *DAG) byDocument(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return d.order[ids[i]] < d.order[ids[j]] })
}

// IncomingOn returns the connections targeting port of node, in document order.
func (d *DAG) IncomingOn(node, port string) []schema.Connection {
	var out []schema.Connection
	for _, c := range d.Incoming[node] {
		if c.TargetPort == port {
			out = append(out, c)
		}
	}
	return out
}

// String renders the levels, e.g. "[a] -> [b c]".
func (d *DAG) String() string {
	s := ""
	for i, level := range d.Levels {
		if i > 0 {
			s += " -> "
		}
		s += fmt.Sprint(level)
	}
	return s
}
