package validation

import (
	"sort"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// validateDAG warns when the connections form a cycle (Kahn's algorithm) and
// when nodes are isolated. Neither blocks import; an editor may hold a graph
// mid-construction.
func validateDAG(doc *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		nodeIDs[n.ID] = true
	}

	// successors[id] = nodes fed by id.
	successors := make(map[string][]string, len(doc.Nodes))
	inDegree := make(map[string]int, len(doc.Nodes))
	linked := make(map[string]bool, len(doc.Nodes))
	for id := range nodeIDs {
		inDegree[id] = 0
	}
	seen := make(map[[2]string]bool, len(doc.Connections))
	for _, c := range doc.Connections {
		if !nodeIDs[c.SourceNode] || !nodeIDs[c.TargetNode] {
			continue
		}
		linked[c.SourceNode] = true
		linked[c.TargetNode] = true
		pair := [2]string{c.SourceNode, c.TargetNode}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		successors[c.SourceNode] = append(successors[c.SourceNode], c.TargetNode)
		inDegree[c.TargetNode]++
	}

	queue := make([]string, 0, len(nodeIDs))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range successors[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(nodeIDs) {
		result.AddWarning("connections", schema.ErrCodeValidation, "workflow contains a cycle")
	}

	if len(doc.Nodes) > 1 {
		for i, n := range doc.Nodes {
			if !linked[n.ID] {
				result.AddWarning(nodePath(i), schema.ErrCodeValidation, "node "+n.ID+" has no connections")
			}
		}
	}
	return result
}
