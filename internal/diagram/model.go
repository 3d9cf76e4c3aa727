// Package diagram renders workflow documents as Mermaid text, ASCII boxes
// or graphviz images.
package diagram

import "github.com/rendis/flowcanvas/pkg/schema"

// Model is the intermediate representation used by all renderers.
type Model struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string // node ids grouped by longest distance from a source node
}

// Node is one placed node.
type Node struct {
	ID       string
	Label    string
	TypeID   string
	Category schema.NodeCategory
	Selected bool
}

// Edge connects two nodes. Label names the port pair or the connection.
type Edge struct {
	ID    string
	From  string
	To    string
	Label string
}

// Node returns the node with the given id, or nil.
func (m *Model) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Select marks one node as selected and clears the rest.
func (m *Model) Select(id string) {
	for _, n := range m.Nodes {
		n.Selected = n.ID == id
	}
}
