package session

import (
	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/interaction"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Layout is the canvas footprint used to place port anchors: input ports on
// the left edge, output ports on the right, spread evenly top to bottom.
type Layout struct {
	NodeWidth  float64 `json:"nodeWidth"`
	NodeHeight float64 `json:"nodeHeight"`
}

// DefaultLayout matches the rendered size of a node card.
var DefaultLayout = Layout{NodeWidth: 240, NodeHeight: 120}

// Anchor returns the canvas point of port index (0-based) out of count on a
// node whose top-left corner is at pos.
func (l Layout) Anchor(pos schema.Position, dir schema.PortDirection, index, count int) geometry.Point {
	x := pos.X
	if dir == schema.DirectionOutput {
		x += l.NodeWidth
	}
	y := pos.Y + l.NodeHeight*float64(index+1)/float64(count+1)
	return geometry.Pt(x, y)
}

// portLocator lists the anchors of every port on the session's graph. It is
// only called by the controller, with the session lock held.
type portLocator struct {
	s *Session
}

func (p portLocator) Anchors() []interaction.PortAnchor {
	snap := p.s.graph.Snapshot()
	var out []interaction.PortAnchor
	for _, n := range snap.Nodes {
		nt, err := p.s.catalog.Get(n.Type)
		if err != nil {
			continue
		}
		out = appendAnchors(out, p.s.layout, n, nt.InputPorts, schema.DirectionInput)
		out = appendAnchors(out, p.s.layout, n, nt.OutputPorts, schema.DirectionOutput)
	}
	return out
}

func appendAnchors(out []interaction.PortAnchor, l Layout, n schema.WorkflowNode, ports []schema.PortDefinition, dir schema.PortDirection) []interaction.PortAnchor {
	for i, port := range ports {
		out = append(out, interaction.PortAnchor{
			PortRef: interaction.PortRef{Node: n.ID, Port: port.ID, Direction: dir},
			Point:   l.Anchor(n.Position, dir, i, len(ports)),
		})
	}
	return out
}
