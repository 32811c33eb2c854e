// Package locator resolves a semantic target description ("Add to Cart",
// "search box") to an inference-space detection on a captured frame.
//
// Three providers implement the same capability at different cost and
// universality: a DOM text matcher (fast, text-only), a static site-pattern
// matcher (instant, pre-registered layouts only), and a vision-model
// matcher (slow, universal). The cascade runs them in that fixed order and
// short-circuits on the first hit; the vision tier is the guaranteed
// fallback.
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/geometry"
)

// ErrNotFound indicates every tier declined the target. Non-fatal: the
// caller picks an alternative target or gives up on this step.
var ErrNotFound = errors.New("target not found")

// Source identifies which provider produced a detection.
type Source string

const (
	// SourceText is the DOM text matcher.
	SourceText Source = "text"

	// SourcePattern is the static site-pattern matcher.
	SourcePattern Source = "pattern"

	// SourceVision is the vision-model matcher.
	SourceVision Source = "vision"
)

// Target describes what to find. Exactly one of the two fields is set:
// Text for literal on-screen labels, Description for semantic targets
// (icons, inputs) that carry no matchable text.
type Target struct {
	Text        string
	Description string
}

// TextTarget builds a target for a literal text label.
func TextTarget(text string) Target {
	return Target{Text: text}
}

// DescribedTarget builds a target for a non-textual element.
func DescribedTarget(description string) Target {
	return Target{Description: description}
}

// Textual reports whether the target can be matched against rendered text.
func (t Target) Textual() bool { return t.Text != "" }

// Query returns the description handed to providers that accept either
// form, such as the vision model.
func (t Target) Query() string {
	if t.Text != "" {
		return t.Text
	}
	return t.Description
}

func (t Target) String() string { return t.Query() }

// Detection is one provider's answer: a bounding box in inference space,
// its midpoint, a confidence in [0,1], and the provider that produced it.
// Immutable once returned.
type Detection struct {
	Box        geometry.Box
	Center     geometry.Point
	Confidence float64
	Source     Source
}

// NewDetection validates the box against the frame and derives the center.
// Providers funnel every candidate through here so that malformed responses
// are rejected at the boundary instead of propagating partial data.
func NewDetection(box geometry.Box, confidence float64, source Source, frame *capture.Frame) (*Detection, error) {
	validated, err := geometry.NewBox(box.X1, box.Y1, box.X2, box.Y2, frame.InferenceWidth, frame.InferenceHeight)
	if err != nil {
		return nil, err
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence %v outside [0,1]", confidence)
	}
	return &Detection{
		Box:        validated,
		Center:     validated.Center(),
		Confidence: confidence,
		Source:     source,
	}, nil
}

// Provider is the localization capability. A (nil, nil) return is a clean
// miss; an error is a provider failure. The cascade treats both as "this
// tier declined" and moves on.
type Provider interface {
	Source() Source
	Locate(ctx context.Context, target Target, frame *capture.Frame) (*Detection, error)
}
