package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/pagepilot/pagepilot/pkg/geometry"
)

// TextRegion is one piece of rendered text with its inference-space box.
type TextRegion struct {
	Text       string
	Box        geometry.Box
	Confidence float64
}

// visibleTextScript walks the DOM and reports every visible text node with
// its client rect in CSS pixels.
const visibleTextScript = `() => {
	const out = [];
	if (!document.body) return out;
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
	while (walker.nextNode()) {
		const node = walker.currentNode;
		const text = node.textContent.trim();
		if (!text) continue;
		const range = document.createRange();
		range.selectNodeContents(node);
		const r = range.getBoundingClientRect();
		if (r.width <= 0 || r.height <= 0) continue;
		if (r.bottom < 0 || r.right < 0) continue;
		if (r.top > window.innerHeight || r.left > window.innerWidth) continue;
		out.push({ text: text, x: r.left, y: r.top, w: r.width, h: r.height });
	}
	return out;
}`

// evaluator is the slice of the browser session the text index needs.
type evaluator interface {
	Evaluate(expression string) (interface{}, error)
}

// DOMTextIndex recognizes rendered text by evaluating JavaScript against
// the live page, filling the role an OCR engine plays against raw pixels.
// Regions are reported in the inference space of the frame being matched.
type DOMTextIndex struct {
	page evaluator
}

// NewDOMTextIndex creates a text recognizer over a live page.
func NewDOMTextIndex(page evaluator) *DOMTextIndex {
	return &DOMTextIndex{page: page}
}

// Recognize returns the visible text regions of the page, scaled into the
// frame's inference space. Regions that fall partly outside the viewport
// are clipped; regions that cannot form a valid box are dropped.
func (d *DOMTextIndex) Recognize(ctx context.Context, frame *Frame) ([]TextRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := d.page.Evaluate(visibleTextScript)
	if err != nil {
		return nil, fmt.Errorf("indexing page text: %w", err)
	}

	entries, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected text index payload %T", raw)
	}

	// CSS pixels match the native screenshot space, so only the
	// native-to-inference scale applies.
	scale := float64(frame.InferenceHeight) / float64(frame.NativeHeight)

	regions := make([]TextRegion, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		text, _ := m["text"].(string)
		if strings.TrimSpace(text) == "" {
			continue
		}

		x1 := clamp(num(m["x"])*scale, 0, float64(frame.InferenceWidth))
		y1 := clamp(num(m["y"])*scale, 0, float64(frame.InferenceHeight))
		x2 := clamp((num(m["x"])+num(m["w"]))*scale, 0, float64(frame.InferenceWidth))
		y2 := clamp((num(m["y"])+num(m["h"]))*scale, 0, float64(frame.InferenceHeight))

		box, err := geometry.NewBox(x1, y1, x2, y2, frame.InferenceWidth, frame.InferenceHeight)
		if err != nil {
			continue
		}
		regions = append(regions, TextRegion{
			Text:       text,
			Box:        box,
			Confidence: 1.0,
		})
	}
	return regions, nil
}

func num(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
