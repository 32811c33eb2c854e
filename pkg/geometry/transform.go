package geometry

import (
	"errors"
	"fmt"
)

// ErrInvalidViewport indicates malformed viewport dimensions. This is a
// programming or configuration error, not a runtime condition: callers
// should abort the current cycle rather than retry.
var ErrInvalidViewport = errors.New("invalid viewport")

// Viewport describes one capture's coordinate context: the native screenshot
// dimensions, the inference-space dimensions the screenshot was resized to,
// the window's top-left offset on the physical screen, and the DPI scale
// factor. Supplied per capture and never mutated.
type Viewport struct {
	NativeWidth     int
	NativeHeight    int
	InferenceWidth  int
	InferenceHeight int
	OffsetX         float64
	OffsetY         float64
	DPIScale        float64
}

// Validate checks the viewport dimensions. Any dimension or DPI scale that
// is not strictly positive makes every derived coordinate meaningless.
func (v Viewport) Validate() error {
	if v.NativeWidth <= 0 || v.NativeHeight <= 0 {
		return fmt.Errorf("%w: native %dx%d", ErrInvalidViewport, v.NativeWidth, v.NativeHeight)
	}
	if v.InferenceWidth <= 0 || v.InferenceHeight <= 0 {
		return fmt.Errorf("%w: inference %dx%d", ErrInvalidViewport, v.InferenceWidth, v.InferenceHeight)
	}
	if v.DPIScale <= 0 {
		return fmt.Errorf("%w: dpi scale %v", ErrInvalidViewport, v.DPIScale)
	}
	return nil
}

// ToScreen maps an inference-space point to a physical screen coordinate.
// The point is first scaled back to native screenshot pixels, then to
// physical pixels through the DPI scale, then offset by the window origin.
func (v Viewport) ToScreen(p Point) (ScreenPoint, error) {
	if err := v.Validate(); err != nil {
		return ScreenPoint{}, err
	}

	scaleX := float64(v.NativeWidth) / float64(v.InferenceWidth)
	scaleY := float64(v.NativeHeight) / float64(v.InferenceHeight)

	return ScreenPoint{
		X: p.X*scaleX*v.DPIScale + v.OffsetX,
		Y: p.Y*scaleY*v.DPIScale + v.OffsetY,
	}, nil
}

// ToInference is the inverse of ToScreen: it maps a physical screen
// coordinate back into inference space, for re-checking a known screen
// location against a freshly captured frame.
func (v Viewport) ToInference(p ScreenPoint) (Point, error) {
	if err := v.Validate(); err != nil {
		return Point{}, err
	}

	scaleX := float64(v.NativeWidth) / float64(v.InferenceWidth)
	scaleY := float64(v.NativeHeight) / float64(v.InferenceHeight)

	return Point{
		X: (p.X - v.OffsetX) / (scaleX * v.DPIScale),
		Y: (p.Y - v.OffsetY) / (scaleY * v.DPIScale),
	}, nil
}
