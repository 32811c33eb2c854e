// Package geometry provides the coordinate primitives shared by every
// component that touches pixels: bounding boxes in inference space and the
// transforms between inference, native-screenshot, and physical-screen
// coordinates.
//
// All units are pixels. Inference space is the downscaled coordinate system
// detectors and the vision model operate in; native space is the unscaled
// captured screenshot; screen space is where OS-level input events land.
package geometry

import (
	"fmt"
	"math"
)

// Point is a coordinate pair in inference space.
type Point struct {
	X float64
	Y float64
}

// ScreenPoint is a coordinate pair in physical screen space, ready for
// pointer input. It is produced only by Viewport.ToScreen.
type ScreenPoint struct {
	X float64
	Y float64
}

// Box is an axis-aligned bounding box in inference space.
// A valid box has X1 < X2 and Y1 < Y2; zero-area boxes are rejected.
type Box struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// NewBox builds a box and validates its invariants. The box must have
// positive area, non-negative bounds, and fit within the given frame
// dimensions (pass zero width/height to skip the bounds check).
func NewBox(x1, y1, x2, y2 float64, frameWidth, frameHeight int) (Box, error) {
	b := Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
	if x1 < 0 || y1 < 0 {
		return Box{}, fmt.Errorf("box has negative bounds: %v", b)
	}
	if x2 <= x1 || y2 <= y1 {
		return Box{}, fmt.Errorf("box has zero or negative area: %v", b)
	}
	if frameWidth > 0 && frameHeight > 0 {
		if x2 > float64(frameWidth) || y2 > float64(frameHeight) {
			return Box{}, fmt.Errorf("box %v exceeds frame bounds %dx%d", b, frameWidth, frameHeight)
		}
	}
	return b, nil
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the area of the box in square pixels.
func (b Box) Area() float64 { return b.Width() * b.Height() }

// IoU computes the intersection-over-union overlap ratio between two boxes.
// Returns 0 when the boxes do not overlap or either has no area.
func (b Box) IoU(other Box) float64 {
	ix1 := math.Max(b.X1, other.X1)
	iy1 := math.Max(b.Y1, other.Y1)
	ix2 := math.Min(b.X2, other.X2)
	iy2 := math.Min(b.Y2, other.Y2)

	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}

	intersection := (ix2 - ix1) * (iy2 - iy1)
	union := b.Area() + other.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Contains reports whether the point lies inside the box (inclusive).
func (b Box) Contains(p Point) bool {
	return p.X >= b.X1 && p.X <= b.X2 && p.Y >= b.Y1 && p.Y <= b.Y2
}

func (b Box) String() string {
	return fmt.Sprintf("(%.0f,%.0f,%.0f,%.0f)", b.X1, b.Y1, b.X2, b.Y2)
}

// Distance returns the euclidean distance between two points.
func (p Point) Distance(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}
