package geometry

import (
	"math"
	"strconv"
	"strings"
)

// Cubic is a cubic Bezier curve in canvas space.
type Cubic struct {
	Start Point `json:"start"`
	C1    Point `json:"c1"`
	C2    Point `json:"c2"`
	End   Point `json:"end"`
}

// ConnectionCurve builds the S-shaped curve drawn between two ports: both
// control points sit half the horizontal distance inward from their ends.
func ConnectionCurve(start, end Point) Cubic {
	dx := math.Abs(end.X-start.X) / 2
	return Cubic{
		Start: start,
		C1:    Point{X: start.X + dx, Y: start.Y},
		C2:    Point{X: end.X - dx, Y: end.Y},
		End:   end,
	}
}

// At evaluates the curve at t in [0, 1].
func (c Cubic) At(t float64) Point {
	u := 1 - t
	a := u * u * u
	b := 3 * u * u * t
	d := 3 * u * t * t
	e := t * t * t
	return Point{
		X: a*c.Start.X + b*c.C1.X + d*c.C2.X + e*c.End.X,
		Y: a*c.Start.Y + b*c.C1.Y + d*c.C2.Y + e*c.End.Y,
	}
}

// Path renders the curve as an SVG path.
func (c Cubic) Path() string {
	var sb strings.Builder
	sb.WriteString("M ")
	writePair(&sb, c.Start)
	sb.WriteString(" C ")
	writePair(&sb, c.C1)
	sb.WriteByte(' ')
	writePair(&sb, c.C2)
	sb.WriteByte(' ')
	writePair(&sb, c.End)
	return sb.String()
}

// Screen maps every point of the curve to screen space.
func (c Cubic) Screen(vp Viewport) Cubic {
	return Cubic{
		Start: CanvasToScreen(c.Start, vp),
		C1:    CanvasToScreen(c.C1, vp),
		C2:    CanvasToScreen(c.C2, vp),
		End:   CanvasToScreen(c.End, vp),
	}
}

func writePair(sb *strings.Builder, p Point) {
	sb.WriteString(strconv.FormatFloat(p.X, 'f', -1, 64))
	sb.WriteByte(',')
	sb.WriteString(strconv.FormatFloat(p.Y, 'f', -1, 64))
}
