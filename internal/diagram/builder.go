package diagram

import (
	"fmt"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// TypeLookup resolves node types for labels. Satisfied by *registry.Registry.
type TypeLookup interface {
	Get(typeID string) (schema.NodeType, error)
}

// Build constructs a Model from a workflow document. types may be nil, in
// which case nodes are labelled by their type id.
func Build(doc *schema.Workflow, types TypeLookup) *Model {
	m := &Model{Title: doc.Metadata.Name}

	for _, n := range doc.Nodes {
		node := &Node{ID: n.ID, TypeID: n.Type, Label: n.Type}
		if types != nil {
			if nt, err := types.Get(n.Type); err == nil {
				node.Category = nt.Category
				if nt.Name != "" {
					node.Label = nt.Name
				}
			}
		}
		node.Label = fmt.Sprintf("%s\n%s", node.Label, n.ID)
		m.Nodes = append(m.Nodes, node)
	}

	for _, c := range doc.Connections {
		label := c.Name
		if label == "" {
			label = c.SourcePort + " → " + c.TargetPort
		}
		m.Edges = append(m.Edges, Edge{ID: c.ID, From: c.SourceNode, To: c.TargetNode, Label: label})
	}

	m.Levels = buildLevels(m)
	return m
}

// buildLevels layers nodes by longest path from a node with no incoming
// edge, in node order within a level. Nodes on a cycle go to a final level.
func buildLevels(m *Model) [][]string {
	inDegree := make(map[string]int, len(m.Nodes))
	next := make(map[string][]string, len(m.Nodes))
	seen := make(map[[2]string]bool, len(m.Edges))
	for _, n := range m.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range m.Edges {
		_, fromOK := inDegree[e.From]
		_, toOK := inDegree[e.To]
		pair := [2]string{e.From, e.To}
		if !fromOK || !toOK || seen[pair] {
			continue
		}
		seen[pair] = true
		next[e.From] = append(next[e.From], e.To)
		inDegree[e.To]++
	}

	depth := make(map[string]int, len(m.Nodes))
	var queue []string
	for _, n := range m.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	placed := make(map[string]bool, len(m.Nodes))
	maxDepth := -1
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		placed[id] = true
		maxDepth = max(maxDepth, depth[id])
		for _, to := range next[id] {
			depth[to] = max(depth[to], depth[id]+1)
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	levels := make([][]string, maxDepth+1)
	var cyclic []string
	for _, n := range m.Nodes {
		if !placed[n.ID] {
			cyclic = append(cyclic, n.ID)
			continue
		}
		levels[depth[n.ID]] = append(levels[depth[n.ID]], n.ID)
	}
	if len(cyclic) > 0 {
		levels = append(levels, cyclic)
	}
	return levels
}
