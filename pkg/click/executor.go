package click

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/geometry"
	"github.com/pagepilot/pagepilot/pkg/input"
	"github.com/pagepilot/pagepilot/pkg/locator"
	"github.com/pagepilot/pagepilot/pkg/logging"
)

// ErrUnverified is returned when every attempt was physically delivered
// but none could be confirmed.
var ErrUnverified = errors.New("click could not be verified")

// DefaultMaxAttempts bounds physical clicks per detection, first attempt
// included.
const DefaultMaxAttempts = 3

// DefaultSettleDelay is how long the page gets to react before the
// post-click observation is taken.
const DefaultSettleDelay = 500 * time.Millisecond

// defaultPerturbations are the screen-space nudges applied on retries,
// cycled in order.
var defaultPerturbations = []geometry.Point{
	{X: 10, Y: 0},
	{X: -10, Y: 0},
	{X: 0, Y: 10},
	{X: 0, Y: -10},
}

// verifier is the slice of Verifier the executor consumes.
type verifier interface {
	Verify(ctx context.Context, obs Observation) Outcome
}

// Result summarizes one Execute call. History holds every attempt's
// outcome in order, so a success still shows the failures before it.
type Result struct {
	Success  bool
	Attempts int
	Method   Method
	History  []Outcome
}

// Executor turns a detection into a verified physical click, retrying
// with small perturbations when verification fails.
type Executor struct {
	pointer       input.Pointer
	verify        verifier
	source        capture.Source
	maxAttempts   int
	settle        time.Duration
	perturbations []geometry.Point
	sleep         func(context.Context, time.Duration) error
	log           *logging.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxAttempts bounds physical clicks per Execute call.
func WithMaxAttempts(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithSettleDelay sets the wait between click and post-click observation.
func WithSettleDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d >= 0 {
			e.settle = d
		}
	}
}

// WithPerturbations replaces the retry offset sequence.
func WithPerturbations(offsets []geometry.Point) ExecutorOption {
	return func(e *Executor) {
		if len(offsets) > 0 {
			e.perturbations = offsets
		}
	}
}

// NewExecutor wires a pointer, a verifier and a capture source into an
// executor. The source supplies the pre and post click observations.
func NewExecutor(pointer input.Pointer, v *Verifier, source capture.Source, opts ...ExecutorOption) *Executor {
	log, _ := logging.New("click")
	e := &Executor{
		pointer:       pointer,
		verify:        v,
		source:        source,
		maxAttempts:   DefaultMaxAttempts,
		settle:        DefaultSettleDelay,
		perturbations: defaultPerturbations,
		sleep:         sleepCtx,
		log:           log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute clicks the detection and verifies the page reacted. The base
// screen point is computed once from the detection center; retries nudge
// that point in screen space, never re-resolving the element. The frame
// is the one the detection came from and anchors the before side of each
// observation.
func (e *Executor) Execute(ctx context.Context, target locator.Target, det *locator.Detection, frame *capture.Frame, vp geometry.Viewport) (*Result, error) {
	if det == nil {
		return nil, errors.New("nil detection")
	}
	base, err := vp.ToScreen(det.Center)
	if err != nil {
		return nil, err
	}
	res := &Result{}

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		point := base
		if attempt > 0 {
			off := e.perturbations[(attempt-1)%len(e.perturbations)]
			point.X += off.X
			point.Y += off.Y
		}

		beforeURL := e.source.URL()
		e.log.Infof("attempt %d/%d at screen (%.0f, %.0f)", attempt+1, e.maxAttempts, point.X, point.Y)

		if err := e.pointer.MoveAndClick(ctx, point); err != nil {
			return res, fmt.Errorf("click delivery failed: %w", err)
		}
		res.Attempts++

		if err := e.sleep(ctx, e.settle); err != nil {
			return res, err
		}

		obs := Observation{
			BeforeURL:   beforeURL,
			AfterURL:    e.source.URL(),
			Before:      frame,
			Target:      target,
			OriginalBox: det.Box,
			ClickPoint:  det.Center,
		}
		if after, _, err := e.source.Capture(ctx); err != nil {
			e.log.Warnf("post-click capture failed: %v", err)
		} else {
			obs.After = after
		}

		outcome := e.verify.Verify(ctx, obs)
		res.History = append(res.History, outcome)
		if outcome.Succeeded() {
			res.Success = true
			res.Method = outcome.Method
			e.log.Infof("click verified via %s after %d attempt(s)", outcome.Method, res.Attempts)
			return res, nil
		}
		e.log.Warnf("attempt %d unverified (%s)", attempt+1, outcome.Status)

		if err := ctx.Err(); err != nil {
			return res, err
		}
	}

	return res, ErrUnverified
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
