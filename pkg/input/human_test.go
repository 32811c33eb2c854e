package input

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepilot/pagepilot/pkg/geometry"
)

type event struct {
	kind string
	x, y float64
}

type recordingDevice struct {
	events  []event
	failOn  string
	failErr error
}

func (d *recordingDevice) record(kind string, x, y float64) error {
	if d.failOn == kind {
		return d.failErr
	}
	d.events = append(d.events, event{kind: kind, x: x, y: y})
	return nil
}

func (d *recordingDevice) Move(_ context.Context, x, y float64) error {
	return d.record("move", x, y)
}

func (d *recordingDevice) Press(_ context.Context, x, y float64) error {
	return d.record("press", x, y)
}

func (d *recordingDevice) Release(_ context.Context, x, y float64) error {
	return d.record("release", x, y)
}

func testPointer(device Device) *HumanPointer {
	p := NewHumanPointer(device)
	p.rng = rand.New(rand.NewSource(42))
	p.sleep = func(time.Duration) {}
	return p
}

func TestMoveAndClickGesture(t *testing.T) {
	device := &recordingDevice{}
	p := testPointer(device)

	target := geometry.ScreenPoint{X: 1472, Y: 710}
	require.NoError(t, p.MoveAndClick(context.Background(), target))

	require.GreaterOrEqual(t, len(device.events), minSteps+3, "approach start, curve steps, press, release")

	// The gesture ends with exactly one press then one release.
	press := device.events[len(device.events)-2]
	release := device.events[len(device.events)-1]
	assert.Equal(t, "press", press.kind)
	assert.Equal(t, "release", release.kind)
	for _, e := range device.events[:len(device.events)-2] {
		assert.Equal(t, "move", e.kind)
	}

	// Press lands within the jitter budget of the requested point.
	assert.LessOrEqual(t, math.Abs(press.x-target.X), float64(landingJitterPx))
	assert.LessOrEqual(t, math.Abs(press.y-target.Y), float64(landingJitterPx))

	// Release stays within a pixel of the press.
	assert.LessOrEqual(t, math.Abs(release.x-press.x), 1.0)
	assert.LessOrEqual(t, math.Abs(release.y-press.y), 1.0)

	// The approach starts away from the target, not on it.
	first := device.events[0]
	assert.Equal(t, "move", first.kind)

	// The final curve step converges on the press position.
	lastMove := device.events[len(device.events)-3]
	assert.InDelta(t, press.x, lastMove.x, 0.001)
	assert.InDelta(t, press.y, lastMove.y, 0.001)
}

func TestMoveAndClickNoTeleport(t *testing.T) {
	device := &recordingDevice{}
	p := testPointer(device)

	require.NoError(t, p.MoveAndClick(context.Background(), geometry.ScreenPoint{X: 500, Y: 500}))

	moves := 0
	for _, e := range device.events {
		if e.kind == "move" {
			moves++
		}
	}
	assert.GreaterOrEqual(t, moves, minSteps+1, "a click is never a single positioned event")
}

func TestMoveAndClickPropagatesDeviceError(t *testing.T) {
	deviceErr := errors.New("device gone")
	device := &recordingDevice{failOn: "press", failErr: deviceErr}
	p := testPointer(device)

	err := p.MoveAndClick(context.Background(), geometry.ScreenPoint{X: 10, Y: 10})
	assert.ErrorIs(t, err, deviceErr)
}
