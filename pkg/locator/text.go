package locator

import (
	"context"
	"strings"

	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/logging"
)

// DefaultTextConfidence is the minimum recognizer confidence for a text
// region to count as a match.
const DefaultTextConfidence = 0.8

// Recognizer supplies the rendered text regions of a frame. The DOM text
// index is the production implementation; an OCR engine would satisfy the
// same contract.
type Recognizer interface {
	Recognize(ctx context.Context, frame *capture.Frame) ([]capture.TextRegion, error)
}

// TextMatcher is the fastest localization tier. It matches the target's
// literal text against recognized regions, case-insensitively, and cannot
// find non-textual targets.
type TextMatcher struct {
	recognizer Recognizer
	threshold  float64
	log        *logging.Logger
}

// NewTextMatcher creates the text tier with the default confidence
// threshold.
func NewTextMatcher(recognizer Recognizer) *TextMatcher {
	log, _ := logging.New("locator.text")
	return &TextMatcher{
		recognizer: recognizer,
		threshold:  DefaultTextConfidence,
		log:        log,
	}
}

// SetThreshold overrides the confidence threshold.
func (m *TextMatcher) SetThreshold(threshold float64) {
	if threshold > 0 && threshold <= 1 {
		m.threshold = threshold
	}
}

// Source identifies this provider.
func (m *TextMatcher) Source() Source { return SourceText }

// Locate finds the tightest region whose text contains the target text.
// Non-textual targets miss immediately: this tier has nothing to match
// them against.
func (m *TextMatcher) Locate(ctx context.Context, target Target, frame *capture.Frame) (*Detection, error) {
	if !target.Textual() {
		return nil, nil
	}

	regions, err := m.recognizer.Recognize(ctx, frame)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(target.Text)
	var best *capture.TextRegion
	for i := range regions {
		r := &regions[i]
		if r.Confidence < m.threshold {
			continue
		}
		if !strings.Contains(strings.ToLower(r.Text), needle) {
			continue
		}
		// Prefer the tightest box: "Add to Cart" inside a button beats a
		// paragraph that merely mentions it.
		if best == nil || r.Box.Area() < best.Box.Area() {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}

	det, err := NewDetection(best.Box, best.Confidence, SourceText, frame)
	if err != nil {
		m.log.Warnf("rejecting text region for %q: %v", target.Text, err)
		return nil, nil
	}
	m.log.Debugf("matched %q at %s conf=%.2f", target.Text, det.Box, det.Confidence)
	return det, nil
}
