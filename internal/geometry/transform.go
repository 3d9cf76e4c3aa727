// Package geometry maps points between screen space and canvas space and
// builds the connection curves drawn while dragging.
package geometry

import (
	"math"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Zoom bounds applied by ClampZoom callers and ZoomAt.
const (
	MinZoom     = 0.1
	MaxZoom     = 4.0
	DefaultZoom = 0.5
)

// ErrInvalidZoom is returned when a viewport cannot be inverted.
var ErrInvalidZoom = schema.NewError(schema.ErrCodeInvalidZoom, "viewport zoom must be a finite value greater than zero")

// Point is a 2D coordinate, in screen or canvas space depending on context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{x, y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// FromPosition converts a node position.
func FromPosition(p schema.Position) Point { return Point{X: p.X, Y: p.Y} }

// Position converts p to a node position.
func (p Point) Position() schema.Position { return schema.Position{X: p.X, Y: p.Y} }

// Add returns the component-wise sum p+q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns the component-wise difference p-q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale multiplies both coordinates by f.
func (p Point) Scale(f float64) Point { return Point{p.X * f, p.Y * f} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

func (p Point) finite() bool  { return isFinite(p.X) && isFinite(p.Y) }
func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Size is the extent of the interactive surface in screen pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport is the pan offset and zoom factor between screen and canvas:
// screen = canvas*zoom + pan.
type Viewport struct {
	Pan  Point   `json:"pan"`
	Zoom float64 `json:"zoom"`
}

// DefaultViewport is the viewport of a fresh editor.
func DefaultViewport() Viewport { return Viewport{Zoom: DefaultZoom} }

// Valid reports whether the viewport can be inverted.
func (vp Viewport) Valid() bool {
	return vp.Zoom > 0 && isFinite(vp.Zoom) && vp.Pan.finite()
}

// ScreenToCanvas converts a screen point to canvas space.
func ScreenToCanvas(p Point, vp Viewport) (Point, error) {
	if !vp.Valid() {
		return Point{}, ErrInvalidZoom
	}
	return Point{
		X: (p.X - vp.Pan.X) / vp.Zoom,
		Y: (p.Y - vp.Pan.Y) / vp.Zoom,
	}, nil
}

// CanvasToScreen converts a canvas point to screen space.
func CanvasToScreen(p Point, vp Viewport) Point {
	return Point{
		X: p.X*vp.Zoom + vp.Pan.X,
		Y: p.Y*vp.Zoom + vp.Pan.Y,
	}
}

// ClampZoom returns vp with its zoom limited to [lo, hi].
func (vp Viewport) ClampZoom(lo, hi float64) Viewport {
	vp.Zoom = math.Max(lo, math.Min(hi, vp.Zoom))
	return vp
}

// ZoomAt scales the viewport by factor around a screen anchor, keeping the
// canvas point under the anchor fixed. The result is clamped to
// [MinZoom, MaxZoom].
func (vp Viewport) ZoomAt(anchor Point, factor float64) (Viewport, error) {
	world, err := ScreenToCanvas(anchor, vp)
	if err != nil {
		return vp, err
	}
	if factor <= 0 || !isFinite(factor) {
		return vp, schema.NewErrorf(schema.ErrCodeInvalidZoom, "zoom factor %v must be a finite value greater than zero", factor)
	}
	next := Viewport{Zoom: vp.Zoom * factor}.ClampZoom(MinZoom, MaxZoom)
	next.Pan = Point{
		X: anchor.X - world.X*next.Zoom,
		Y: anchor.Y - world.Y*next.Zoom,
	}
	return next, nil
}

// Placement offsets used when adding nodes from the toolbar.
var (
	SingleClickOffset = Point{}
	DoubleClickOffset = Point{X: 0, Y: 100}
)

// PlacementPoint returns the canvas position for a new node: the centre of
// the visible surface shifted by a screen-space offset.
func PlacementPoint(surface Size, vp Viewport, offset Point) (Point, error) {
	centre := Point{X: surface.Width / 2, Y: surface.Height / 2}
	return ScreenToCanvas(centre.Add(offset), vp)
}
