package input

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pagepilot/pagepilot/pkg/geometry"
	"github.com/pagepilot/pagepilot/pkg/logging"
)

const (
	// landingJitterPx is the maximum random offset applied to the final
	// click position.
	landingJitterPx = 3

	// approachRadiusPx bounds the random start offset of the approach path.
	approachRadiusPx = 150

	minSteps = 5
	maxSteps = 30
)

// HumanPointer moves along a cubic bezier path with per-step noise and
// randomized press/release timing, then clicks with a small landing jitter.
type HumanPointer struct {
	device Device
	rng    *rand.Rand
	sleep  func(time.Duration)
	log    *logging.Logger
}

// NewHumanPointer creates a pointer over a raw event device.
func NewHumanPointer(device Device) *HumanPointer {
	log, _ := logging.New("input")
	return &HumanPointer{
		device: device,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  time.Sleep,
		log:    log,
	}
}

// MoveAndClick approaches the point along a curved path and clicks it.
// The whole gesture completes or errors; it is never silently skipped.
func (h *HumanPointer) MoveAndClick(ctx context.Context, point geometry.ScreenPoint) error {
	target := geometry.ScreenPoint{
		X: point.X + float64(h.rng.Intn(2*landingJitterPx+1)-landingJitterPx),
		Y: point.Y + float64(h.rng.Intn(2*landingJitterPx+1)-landingJitterPx),
	}

	start := geometry.ScreenPoint{
		X: target.X + (h.rng.Float64()-0.5)*2*approachRadiusPx,
		Y: target.Y + (h.rng.Float64()-0.5)*2*approachRadiusPx,
	}

	if err := h.device.Move(ctx, start.X, start.Y); err != nil {
		return err
	}
	if err := h.curveTo(ctx, start, target); err != nil {
		return err
	}

	h.sleep(time.Duration(50+h.rng.Intn(150)) * time.Millisecond)
	if err := h.device.Press(ctx, target.X, target.Y); err != nil {
		return err
	}

	h.sleep(time.Duration(30+h.rng.Intn(90)) * time.Millisecond)
	releaseX := target.X + (h.rng.Float64()-0.5)*2
	releaseY := target.Y + (h.rng.Float64()-0.5)*2
	if err := h.device.Release(ctx, releaseX, releaseY); err != nil {
		return err
	}

	h.log.Debugf("clicked (%.0f,%.0f) via approach from (%.0f,%.0f)", target.X, target.Y, start.X, start.Y)
	return nil
}

// curveTo walks a cubic bezier from start to end with noisy control points
// and per-step tremor.
func (h *HumanPointer) curveTo(ctx context.Context, from, to geometry.ScreenPoint) error {
	distance := math.Hypot(to.X-from.X, to.Y-from.Y)
	duration := 100 + (distance/2000)*200 + float64(h.rng.Intn(100))

	steps := int(duration / 20)
	if steps < minSteps {
		steps = minSteps
	}
	if steps > maxSteps {
		steps = maxSteps
	}

	cp1X := from.X + (to.X-from.X)*0.25 + (h.rng.Float64()-0.5)*50
	cp1Y := from.Y + (to.Y-from.Y)*0.25 + (h.rng.Float64()-0.5)*50
	cp2X := from.X + (to.X-from.X)*0.75 + (h.rng.Float64()-0.5)*50
	cp2Y := from.Y + (to.Y-from.Y)*0.75 + (h.rng.Float64()-0.5)*50

	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		mt := 1 - t

		x := mt*mt*mt*from.X + 3*mt*mt*t*cp1X + 3*mt*t*t*cp2X + t*t*t*to.X
		y := mt*mt*mt*from.Y + 3*mt*mt*t*cp1Y + 3*mt*t*t*cp2Y + t*t*t*to.Y

		// Tremor everywhere except the landing step.
		if i < steps {
			x += (h.rng.Float64() - 0.5) * 2
			y += (h.rng.Float64() - 0.5) * 2
		}

		if err := h.device.Move(ctx, x, y); err != nil {
			return err
		}
		h.sleep(time.Duration(16+h.rng.Intn(8)) * time.Millisecond)
	}
	return nil
}
