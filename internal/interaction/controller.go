// Package interaction implements the drag-to-connect gesture: a two-state
// machine that follows the pointer, highlights the nearest compatible port
// and asks the graph for an edge when the drag ends.
package interaction

import (
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// DefaultRadius is the distance, in canvas units, within which a port is
// considered under the pointer.
const DefaultRadius = 50.0

// Phase is the controller state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseDragging Phase = "dragging"
)

// PortRef addresses a port of a node.
type PortRef struct {
	Node      string               `json:"node"`
	Port      string               `json:"port"`
	Direction schema.PortDirection `json:"direction,omitempty"`
}

func (p PortRef) endpoint() graph.Endpoint { return graph.Endpoint{Node: p.Node, Port: p.Port} }

// PortAnchor is a port and its position in canvas space.
type PortAnchor struct {
	PortRef
	Point geometry.Point `json:"point"`
}

// PortLocator lists the ports that may be highlighted during a drag.
type PortLocator interface {
	Anchors() []PortAnchor
}

// Connector validates and creates edges. Satisfied by *graph.Store.
type Connector interface {
	Check(source, target graph.Endpoint) graph.Verdict
	Connect(sourceNode, sourcePort, targetNode, targetPort string) (graph.Edge, error)
}

// Drag is the state of an active gesture.
type Drag struct {
	GestureID      string               `json:"gestureId"`
	StartNode      string               `json:"startNode"`
	StartPort      string               `json:"startPort"`
	StartDirection schema.PortDirection `json:"startDirection"`
	StartCanvas    geometry.Point       `json:"startCanvas"`
	CurrentCanvas  geometry.Point       `json:"currentCanvas"`
	Highlighted    *PortRef             `json:"highlighted,omitempty"`
	LastSeq        uint64               `json:"lastSeq"`
	SeqApplied     bool                 `json:"seqApplied"`
	Curve          geometry.Cubic       `json:"curve"`
}

// NextSeq returns the lowest sequence number the next move may carry.
func (d *Drag) NextSeq() uint64 {
	if !d.SeqApplied {
		return 0
	}
	return d.LastSeq + 1
}

// State is a copy of the controller state.
type State struct {
	Phase Phase `json:"phase"`
	Drag  *Drag `json:"drag,omitempty"`
}

// Outcome reports how a gesture ended.
type Outcome struct {
	Connected bool           `json:"connected"`
	Edge      *graph.Edge    `json:"edge,omitempty"`
	Verdict   *graph.Verdict `json:"verdict,omitempty"`
}

// ControllerConfig tunes the controller.
type ControllerConfig struct {
	// Radius is the highlight distance in canvas units; <= 0 uses DefaultRadius.
	Radius float64
}

// Controller drives one drag-to-connect gesture at a time. It is not safe
// for concurrent use; callers serialize access.
type Controller struct {
	connector Connector
	locator   PortLocator
	surface   Surface
	radius    float64
	logger    *slog.Logger

	drag        *Drag
	unsubscribe func()
}

// NewController creates an idle controller.
func NewController(connector Connector, locator PortLocator, surface Surface, cfg ControllerConfig, logger *slog.Logger) *Controller {
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultRadius
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		connector: connector,
		locator:   locator,
		surface:   surface,
		radius:    cfg.Radius,
		logger:    logger,
	}
}

// GestureStart begins a drag from a port. It fails with INVALID_TRANSITION
// while another drag is active, leaving that drag untouched.
func (c *Controller) GestureStart(nodeID, portID string, dir schema.PortDirection, screen geometry.Point, vp geometry.Viewport) error {
	if c.drag != nil {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "invalid gesture transition: %s -> %s", PhaseDragging, PhaseDragging).
			WithDetails(map[string]any{"gesture_id": c.drag.GestureID})
	}
	if !dir.Valid() {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown port direction %q", dir)
	}
	start, err := geometry.ScreenToCanvas(screen, vp)
	if err != nil {
		return err
	}

	c.drag = &Drag{
		GestureID:      uuid.NewString(),
		StartNode:      nodeID,
		StartPort:      portID,
		StartDirection: dir,
		StartCanvas:    start,
		CurrentCanvas:  start,
		Curve:          geometry.ConnectionCurve(start, start),
	}
	if c.surface != nil {
		c.unsubscribe = c.surface.Subscribe(c.Handle)
	}
	c.logger.Debug("gesture started", "gesture_id", c.drag.GestureID, "node_id", nodeID, "port", portID, "direction", dir)
	return nil
}

// PointerMove follows the pointer. It returns false, changing nothing, when
// idle, when seq is not newer than the last applied move, or when the
// viewport cannot be inverted. The first move of a drag accepts any seq.
func (c *Controller) PointerMove(screen geometry.Point, vp geometry.Viewport, seq uint64) bool {
	d := c.drag
	if d == nil || (d.SeqApplied && seq <= d.LastSeq) {
		return false
	}
	current, err := geometry.ScreenToCanvas(screen, vp)
	if err != nil {
		return false
	}

	d.LastSeq = seq
	d.SeqApplied = true
	d.CurrentCanvas = current
	d.Curve = geometry.ConnectionCurve(d.StartCanvas, current)
	d.Highlighted = c.nearest(d, current)
	return true
}

// nearest returns the closest direction-compatible port within the radius,
// excluding the port the drag started from.
func (c *Controller) nearest(d *Drag, p geometry.Point) *PortRef {
	if c.locator == nil {
		return nil
	}
	var (
		best     *PortRef
		bestDist = math.Inf(1)
	)
	for _, a := range c.locator.Anchors() {
		if !graph.DirectionCompatible(d.StartDirection, a.Direction) {
			continue
		}
		if a.Node == d.StartNode && a.Port == d.StartPort {
			continue
		}
		dist := a.Point.Dist(p)
		if dist > c.radius || dist >= bestDist {
			continue
		}
		ref := a.PortRef
		best, bestDist = &ref, dist
	}
	return best
}

// GestureEnd finishes the drag. With a target the connection is validated
// and, if accepted, created; an input-side start is connected in reverse so
// edges always run output to input. The controller is idle afterwards.
func (c *Controller) GestureEnd(target *PortRef) (Outcome, error) {
	d := c.drag
	if d == nil {
		return Outcome{}, schema.NewErrorf(schema.ErrCodeInvalidTransition, "invalid gesture transition: %s -> %s", PhaseIdle, PhaseIdle)
	}
	defer c.finish()

	if target == nil {
		c.logger.Debug("gesture ended without target", "gesture_id", d.GestureID)
		return Outcome{}, nil
	}

	start := graph.Endpoint{Node: d.StartNode, Port: d.StartPort}
	source, dest := start, target.endpoint()
	if d.StartDirection == schema.DirectionInput {
		source, dest = dest, source
	}

	if v := c.connector.Check(source, dest); !v.Accepted {
		c.logger.Debug("gesture connection rejected", "gesture_id", d.GestureID, "reason", v.Reason)
		return Outcome{Verdict: &v}, nil
	}
	e, err := c.connector.Connect(source.Node, source.Port, dest.Node, dest.Port)
	if err != nil {
		return Outcome{}, err
	}
	accepted := graph.Verdict{Accepted: true}
	c.logger.Debug("gesture connected", "gesture_id", d.GestureID, "edge_id", e.ID)
	return Outcome{Connected: true, Edge: &e, Verdict: &accepted}, nil
}

// GestureAbort returns to idle without touching the graph. It is a no-op
// when idle.
func (c *Controller) GestureAbort() {
	if c.drag == nil {
		return
	}
	c.logger.Debug("gesture aborted", "gesture_id", c.drag.GestureID)
	c.finish()
}

// Handle dispatches a surface event to the matching transition.
func (c *Controller) Handle(ev InputEvent) {
	switch ev.Kind {
	case InputPointerMove:
		c.PointerMove(ev.Point, ev.Viewport, ev.Seq)
	case InputPointerUp:
		if c.drag != nil {
			if _, err := c.GestureEnd(ev.Target); err != nil {
				c.logger.Warn("gesture end failed", "error", err)
			}
		}
	case InputPointerLeave, InputCancel:
		c.GestureAbort()
	}
}

func (c *Controller) finish() {
	c.drag = nil
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// Dragging reports whether a gesture is active.
func (c *Controller) Dragging() bool { return c.drag != nil }

// State returns a copy of the current state.
func (c *Controller) State() State {
	if c.drag == nil {
		return State{Phase: PhaseIdle}
	}
	d := *c.drag
	if d.Highlighted != nil {
		h := *d.Highlighted
		d.Highlighted = &h
	}
	return State{Phase: PhaseDragging, Drag: &d}
}

// Curve returns the live connection curve, if dragging.
func (c *Controller) Curve() (geometry.Cubic, bool) {
	if c.drag == nil {
		return geometry.Cubic{}, false
	}
	return c.drag.Curve, true
}
