package locator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/logging"
)

// Mode selects the cascade's side effects. The resolution order never
// changes between modes; only which tiers execute and whether agreement
// records are emitted.
type Mode string

const (
	// ModeProduction short-circuits: only tiers up to the first hit run.
	ModeProduction Mode = "production"

	// ModeShadow runs every tier and emits one agreement record per
	// invocation, while still returning the tier-order-selected result.
	ModeShadow Mode = "shadow"
)

// TierResult is one provider's raw outcome inside a record.
type TierResult struct {
	Detection *Detection
	Err       string
	Elapsed   time.Duration
}

// Agreement compares two providers that both produced a detection.
type Agreement struct {
	A              Source
	B              Source
	IoU            float64
	CenterDistance float64
}

// Record is the structured result of one shadow-mode cascade invocation:
// every provider's raw result, pairwise agreement, and which tier was
// selected as the answer.
type Record struct {
	ID        string
	Target    string
	PageURL   string
	Selected  Source
	Found     bool
	Results   map[Source]TierResult
	Agreement []Agreement
}

// Sink consumes shadow-mode records.
type Sink interface {
	Observe(Record)
}

// Cascade resolves targets through the fixed tier order.
type Cascade struct {
	tiers []Provider
	mode  Mode
	sink  Sink
	log   *logging.Logger
}

// CascadeOption configures a Cascade.
type CascadeOption func(*Cascade)

// WithMode sets the execution mode. Default is production.
func WithMode(mode Mode) CascadeOption {
	return func(c *Cascade) {
		if mode == ModeShadow || mode == ModeProduction {
			c.mode = mode
		}
	}
}

// WithSink attaches a shadow-record sink.
func WithSink(sink Sink) CascadeOption {
	return func(c *Cascade) { c.sink = sink }
}

// NewCascade builds a cascade over providers in the given fixed order.
// The last tier is the guaranteed fallback and should be the vision
// matcher.
func NewCascade(tiers []Provider, opts ...CascadeOption) (*Cascade, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("cascade requires at least one tier")
	}
	log, _ := logging.New("cascade")
	c := &Cascade{
		tiers: tiers,
		mode:  ModeProduction,
		log:   log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mode returns the configured execution mode.
func (c *Cascade) Mode() Mode { return c.mode }

// Resolve maps a target on a frame to exactly one detection, or ErrNotFound
// when the final tier declines. Provider errors and timeouts are tier
// misses, never cascade failures.
func (c *Cascade) Resolve(ctx context.Context, target Target, frame *capture.Frame) (*Detection, error) {
	if c.mode == ModeShadow {
		return c.resolveShadow(ctx, target, frame)
	}
	return c.resolveProduction(ctx, target, frame)
}

func (c *Cascade) resolveProduction(ctx context.Context, target Target, frame *capture.Frame) (*Detection, error) {
	for _, tier := range c.tiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := c.runTier(ctx, tier, target, frame)
		if result.Detection != nil {
			c.log.Infof("resolved %q via %s in %s", target, tier.Source(), result.Elapsed.Round(time.Millisecond))
			return result.Detection, nil
		}
	}
	c.log.Warnf("all tiers declined %q", target)
	return nil, fmt.Errorf("resolving %q: %w", target.Query(), ErrNotFound)
}

// resolveShadow runs every tier concurrently against the immutable frame.
// The answer is still chosen by tier order; the caller only waits for the
// tiers ahead of (and including) the selected one, and the agreement
// record is emitted once the stragglers finish.
func (c *Cascade) resolveShadow(ctx context.Context, target Target, frame *capture.Frame) (*Detection, error) {
	results := make([]TierResult, len(c.tiers))
	done := make([]chan struct{}, len(c.tiers))

	var g errgroup.Group
	for i, tier := range c.tiers {
		done[i] = make(chan struct{})
		g.Go(func() error {
			results[i] = c.runTier(ctx, tier, target, frame)
			close(done[i])
			return nil
		})
	}

	selected := -1
	for i := range c.tiers {
		select {
		case <-done[i]:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if results[i].Detection != nil {
			selected = i
			break
		}
	}

	go func() {
		_ = g.Wait()
		c.emit(target, frame, results, selected)
	}()

	if selected < 0 {
		return nil, fmt.Errorf("resolving %q: %w", target.Query(), ErrNotFound)
	}
	return results[selected].Detection, nil
}

func (c *Cascade) runTier(ctx context.Context, tier Provider, target Target, frame *capture.Frame) TierResult {
	start := time.Now()
	det, err := tier.Locate(ctx, target, frame)
	result := TierResult{Detection: det, Elapsed: time.Since(start)}
	if err != nil {
		c.log.Warnf("tier %s failed for %q: %v", tier.Source(), target, err)
		result.Detection = nil
		result.Err = err.Error()
	}
	return result
}

func (c *Cascade) emit(target Target, frame *capture.Frame, results []TierResult, selected int) {
	if c.sink == nil {
		return
	}

	rec := Record{
		ID:      uuid.New().String(),
		Target:  target.Query(),
		PageURL: frame.PageURL,
		Found:   selected >= 0,
		Results: make(map[Source]TierResult, len(c.tiers)),
	}
	if selected >= 0 {
		rec.Selected = c.tiers[selected].Source()
	}
	for i, tier := range c.tiers {
		rec.Results[tier.Source()] = results[i]
	}

	for i := 0; i < len(c.tiers); i++ {
		for j := i + 1; j < len(c.tiers); j++ {
			a, b := results[i].Detection, results[j].Detection
			if a == nil || b == nil {
				continue
			}
			rec.Agreement = append(rec.Agreement, Agreement{
				A:              c.tiers[i].Source(),
				B:              c.tiers[j].Source(),
				IoU:            a.Box.IoU(b.Box),
				CenterDistance: a.Center.Distance(b.Center),
			})
		}
	}

	c.sink.Observe(rec)
}
