// Package session drives the capture, resolve, click, verify loop over a
// scripted list of targets.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/click"
	"github.com/pagepilot/pagepilot/pkg/geometry"
	"github.com/pagepilot/pagepilot/pkg/locator"
	"github.com/pagepilot/pagepilot/pkg/logging"
)

// ErrFailureBudget is returned when too many steps fail in a row.
var ErrFailureBudget = errors.New("consecutive failure budget exhausted")

// DefaultMaxConsecutiveFailures stops a run after this many failed steps
// in a row.
const DefaultMaxConsecutiveFailures = 3

// Resolver maps a target on a frame to a detection. Satisfied by
// locator.Cascade.
type Resolver interface {
	Resolve(ctx context.Context, target locator.Target, frame *capture.Frame) (*locator.Detection, error)
}

// Clicker delivers and verifies a click. Satisfied by click.Executor.
type Clicker interface {
	Execute(ctx context.Context, target locator.Target, det *locator.Detection, frame *capture.Frame, vp geometry.Viewport) (*click.Result, error)
}

// TargetSource hands out targets one at a time until exhausted.
type TargetSource interface {
	Next() (locator.Target, bool)
}

// Script is a fixed target list consumed in order.
type Script struct {
	targets []locator.Target
	pos     int
}

// NewScript builds a target source over a fixed list.
func NewScript(targets []locator.Target) *Script {
	return &Script{targets: targets}
}

// Next returns the next scripted target.
func (s *Script) Next() (locator.Target, bool) {
	if s.pos >= len(s.targets) {
		return locator.Target{}, false
	}
	t := s.targets[s.pos]
	s.pos++
	return t, true
}

// StepOutcome records one loop iteration.
type StepOutcome struct {
	Target   locator.Target
	Found    bool
	Success  bool
	Method   click.Method
	Attempts int
	Err      string
}

// Stats accumulates over a run.
type Stats struct {
	Steps      int
	Succeeded  int
	Failed     int
	NotFound   int
	Unverified int
	Outcomes   []StepOutcome
}

// Summary renders the one-line run report.
func (s *Stats) Summary() string {
	return fmt.Sprintf("steps=%d succeeded=%d failed=%d not_found=%d unverified=%d",
		s.Steps, s.Succeeded, s.Failed, s.NotFound, s.Unverified)
}

// Runner executes the session loop. Cancellation is cooperative: the
// context is checked between stages, and an in-flight click attempt always
// completes its verification.
type Runner struct {
	source      capture.Source
	resolver    Resolver
	clicker     Clicker
	maxFailures int
	stepDelay   time.Duration
	sleep       func(context.Context, time.Duration) error
	log         *logging.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxConsecutiveFailures sets the failure budget.
func WithMaxConsecutiveFailures(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxFailures = n
		}
	}
}

// WithStepDelay sets the pause between steps.
func WithStepDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.stepDelay = d
		}
	}
}

// NewRunner wires the loop collaborators together.
func NewRunner(source capture.Source, resolver Resolver, clicker Clicker, opts ...RunnerOption) *Runner {
	log, _ := logging.New("session")
	r := &Runner{
		source:      source,
		resolver:    resolver,
		clicker:     clicker,
		maxFailures: DefaultMaxConsecutiveFailures,
		stepDelay:   time.Second,
		sleep:       sleepCtx,
		log:         log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes targets until the source is exhausted, the failure budget
// trips, or the context is cancelled. Per-step failures (capture errors,
// unresolved targets, unverified clicks) spend the budget; anything else
// aborts the run.
func (r *Runner) Run(ctx context.Context, targets TargetSource) (*Stats, error) {
	stats := &Stats{}
	consecutive := 0

	for {
		if err := ctx.Err(); err != nil {
			r.log.Infof("run cancelled: %s", stats.Summary())
			return stats, err
		}

		target, ok := targets.Next()
		if !ok {
			break
		}
		stats.Steps++

		outcome, err := r.step(ctx, target)
		stats.Outcomes = append(stats.Outcomes, outcome)

		if outcome.Success {
			stats.Succeeded++
			consecutive = 0
		} else {
			stats.Failed++
			consecutive++
			if errors.Is(err, locator.ErrNotFound) {
				stats.NotFound++
			}
			if errors.Is(err, click.ErrUnverified) {
				stats.Unverified++
			}
			if err != nil && !recoverable(err) {
				r.log.Errorf("aborting run: %v", err)
				return stats, err
			}
			if consecutive >= r.maxFailures {
				r.log.Errorf("%d consecutive failures, stopping: %s", consecutive, stats.Summary())
				return stats, ErrFailureBudget
			}
		}

		if err := r.sleep(ctx, r.stepDelay); err != nil {
			r.log.Infof("run cancelled: %s", stats.Summary())
			return stats, err
		}
	}

	r.log.Infof("run complete: %s", stats.Summary())
	return stats, nil
}

func (r *Runner) step(ctx context.Context, target locator.Target) (StepOutcome, error) {
	outcome := StepOutcome{Target: target}
	r.log.Infof("step: click %q", target)

	frame, vp, err := r.source.Capture(ctx)
	if err != nil {
		r.log.Warnf("capture failed: %v", err)
		outcome.Err = err.Error()
		return outcome, err
	}

	if err := ctx.Err(); err != nil {
		outcome.Err = err.Error()
		return outcome, err
	}

	det, err := r.resolver.Resolve(ctx, target, frame)
	if err != nil {
		r.log.Warnf("resolve failed for %q: %v", target, err)
		outcome.Err = err.Error()
		return outcome, err
	}
	outcome.Found = true

	if err := ctx.Err(); err != nil {
		outcome.Err = err.Error()
		return outcome, err
	}

	res, err := r.clicker.Execute(ctx, target, det, frame, vp)
	if res != nil {
		outcome.Attempts = res.Attempts
		outcome.Method = res.Method
		outcome.Success = res.Success
	}
	if err != nil {
		outcome.Err = err.Error()
		return outcome, err
	}
	return outcome, nil
}

// recoverable classifies step errors that spend the failure budget rather
// than aborting the run. Capture hiccups recover on the next step.
func recoverable(err error) bool {
	if errors.Is(err, locator.ErrNotFound) || errors.Is(err, click.ErrUnverified) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, geometry.ErrInvalidViewport) {
		return false
	}
	// Capture and delivery errors. Transient until the budget says
	// otherwise.
	return true
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
