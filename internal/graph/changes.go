package graph

import (
	"fmt"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// ChangeKind identifies a structural change.
type ChangeKind string

const (
	ChangePosition ChangeKind = "position"
	ChangeRemove   ChangeKind = "remove"
	ChangeSelect   ChangeKind = "select"
)

// Change is one entry of a structural batch.
type Change struct {
	Kind     ChangeKind       `json:"type"`
	NodeID   string           `json:"id"`
	Position *schema.Position `json:"position,omitempty"`
	Selected bool             `json:"selected,omitempty"`
}

// MoveTo is a position change.
func MoveTo(nodeID string, pos schema.Position) Change {
	return Change{Kind: ChangePosition, NodeID: nodeID, Position: &pos}
}

// Remove is a removal change.
func Remove(nodeID string) Change {
	return Change{Kind: ChangeRemove, NodeID: nodeID}
}

// Select is a selection change; selected=false deselects the node.
func Select(nodeID string, selected bool) Change {
	return Change{Kind: ChangeSelect, NodeID: nodeID, Selected: selected}
}

// checkBatch validates a batch against the current nodes, tracking removals
// made earlier in the same batch.
func (s *Store) checkBatch(batch []Change) error {
	removed := make(map[string]bool)
	for i, c := range batch {
		_, exists := s.nodes.Get(c.NodeID)
		if !exists || removed[c.NodeID] {
			return schema.NewErrorf(schema.ErrCodeNotFound, "change %d: node %q does not exist", i, c.NodeID).
				WithNode(c.NodeID).
				WithDetails(map[string]any{"index": i, "type": string(c.Kind)})
		}
		switch c.Kind {
		case ChangePosition:
			if c.Position == nil {
				return schema.NewErrorf(schema.ErrCodeValidation, "change %d: position change without a position", i).
					WithNode(c.NodeID)
			}
		case ChangeRemove:
			removed[c.NodeID] = true
		case ChangeSelect:
		default:
			return schema.NewError(schema.ErrCodeValidation, fmt.Sprintf("change %d: unknown change type %q", i, c.Kind)).
				WithNode(c.NodeID)
		}
	}
	return nil
}
