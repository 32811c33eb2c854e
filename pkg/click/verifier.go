package click

import (
	"context"

	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/geometry"
	"github.com/pagepilot/pagepilot/pkg/locator"
	"github.com/pagepilot/pagepilot/pkg/logging"
)

// Method records which check confirmed a click.
type Method string

const (
	// MethodURLChange means the page URL changed after the click.
	MethodURLChange Method = "url-change"

	// MethodElementVanished means the clicked element is gone or moved.
	MethodElementVanished Method = "element-vanished"

	// MethodVisualDiff means the page changed visually around the click.
	MethodVisualDiff Method = "visual-diff"
)

// Status classifies a verification outcome.
type Status string

const (
	// StatusSucceeded means one check confirmed the click.
	StatusSucceeded Status = "succeeded"

	// StatusFailed means every check ran and none saw a change.
	StatusFailed Status = "failed"

	// StatusInconclusive means a required observation was unavailable.
	// Retried like a failure, logged apart.
	StatusInconclusive Status = "inconclusive"
)

// Outcome is the verdict for one click attempt. Exactly one is produced
// per attempt.
type Outcome struct {
	Status    Status
	Method    Method
	Detail    string
	DiffScore float64
}

// Succeeded reports whether the click was confirmed.
func (o Outcome) Succeeded() bool { return o.Status == StatusSucceeded }

// Observation bundles the pre/post page state one verification needs. The
// capture collaborator supplies both sides; the verifier never captures.
type Observation struct {
	BeforeURL string
	AfterURL  string
	Before    *capture.Frame
	After     *capture.Frame

	// Target and OriginalBox describe what was clicked, for the
	// element-gone check.
	Target      locator.Target
	OriginalBox geometry.Box

	// ClickPoint is the click position in inference space, centering the
	// visual diff neighborhood.
	ClickPoint geometry.Point
}

const (
	// DefaultOverlapIoU is the overlap below which a re-found element
	// counts as moved, and therefore as evidence the click did something.
	DefaultOverlapIoU = 0.5

	// DefaultDiffThreshold is the changed-pixel fraction above which the
	// visual diff counts as a page change.
	DefaultDiffThreshold = 0.05
)

// Verifier is the three-check state machine: URL change, element gone,
// visual diff, in that order, cheapest first, each terminal on a definite
// signal.
type Verifier struct {
	text          locator.Provider
	overlapIoU    float64
	diffThreshold float64
	diffRadius    int
	log           *logging.Logger
}

// NewVerifier creates a verifier. The text provider is the same fast
// matcher the cascade uses, re-run against post-click frames for the
// element-gone check.
func NewVerifier(text locator.Provider) *Verifier {
	log, _ := logging.New("verify")
	return &Verifier{
		text:          text,
		overlapIoU:    DefaultOverlapIoU,
		diffThreshold: DefaultDiffThreshold,
		diffRadius:    DefaultDiffRadius,
		log:           log,
	}
}

// SetThresholds overrides the overlap and diff thresholds. Non-positive
// values keep the current setting.
func (v *Verifier) SetThresholds(overlapIoU, diffThreshold float64) {
	if overlapIoU > 0 && overlapIoU <= 1 {
		v.overlapIoU = overlapIoU
	}
	if diffThreshold > 0 && diffThreshold <= 1 {
		v.diffThreshold = diffThreshold
	}
}

// Verify classifies one executed click. Checks run in fixed order and are
// never re-entered; the first definitive signal wins.
func (v *Verifier) Verify(ctx context.Context, obs Observation) Outcome {
	// CheckUrl. A missing URL is not fatal to the chain; the remaining
	// checks can still conclude.
	if obs.BeforeURL != "" && obs.AfterURL != "" && obs.BeforeURL != obs.AfterURL {
		v.log.Infof("url changed: %s -> %s", obs.BeforeURL, obs.AfterURL)
		return Outcome{Status: StatusSucceeded, Method: MethodURLChange, Detail: obs.AfterURL}
	}

	// Everything past this point needs the post-click frame.
	if obs.After == nil {
		v.log.Warnf("no post-click frame, verification inconclusive")
		return Outcome{Status: StatusInconclusive, Detail: "post-click frame unavailable"}
	}

	// CheckElementGone. Only meaningful for targets the text matcher can
	// find; a recognizer failure advances rather than concluding.
	if obs.Target.Textual() {
		found, err := v.text.Locate(ctx, obs.Target, obs.After)
		if err == nil {
			if found == nil {
				v.log.Infof("element %q no longer visible", obs.Target)
				return Outcome{Status: StatusSucceeded, Method: MethodElementVanished, Detail: "element not re-found"}
			}
			if iou := found.Box.IoU(obs.OriginalBox); iou < v.overlapIoU {
				v.log.Infof("element %q moved, iou=%.2f", obs.Target, iou)
				return Outcome{Status: StatusSucceeded, Method: MethodElementVanished, Detail: "element moved"}
			}
		} else {
			v.log.Warnf("element-gone check errored, advancing: %v", err)
		}
	}

	// CheckVisualDiff, terminal either way.
	if obs.Before == nil {
		v.log.Warnf("no pre-click frame, verification inconclusive")
		return Outcome{Status: StatusInconclusive, Detail: "pre-click frame unavailable"}
	}
	score := DiffScore(obs.Before.Image, obs.After.Image, obs.ClickPoint, v.diffRadius)
	if score > v.diffThreshold {
		v.log.Infof("visual diff %.3f above threshold %.3f", score, v.diffThreshold)
		return Outcome{Status: StatusSucceeded, Method: MethodVisualDiff, DiffScore: score}
	}
	v.log.Infof("no change detected, diff=%.3f", score)
	return Outcome{Status: StatusFailed, DiffScore: score}
}
