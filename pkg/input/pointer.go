// Package input issues human-like pointer events. The click executor never
// teleports the cursor: every click travels a curved approach path with
// natural timing, because the detectability of the click method is part of
// what the system is for.
package input

import (
	"context"

	"github.com/pagepilot/pagepilot/pkg/geometry"
)

// Device dispatches raw pointer events at physical screen coordinates.
// Implementations bridge to the actual event source (a browser page, an OS
// input driver).
type Device interface {
	Move(ctx context.Context, x, y float64) error
	Press(ctx context.Context, x, y float64) error
	Release(ctx context.Context, x, y float64) error
}

// Pointer is the human-input capability the click executor consumes.
type Pointer interface {
	MoveAndClick(ctx context.Context, point geometry.ScreenPoint) error
}
