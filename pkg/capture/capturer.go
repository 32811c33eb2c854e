package capture

import (
	"context"
	"fmt"

	"github.com/pagepilot/pagepilot/pkg/browser"
	"github.com/pagepilot/pagepilot/pkg/geometry"
	"github.com/pagepilot/pagepilot/pkg/logging"
)

// Source supplies frames and their viewport context on demand. The click
// verifier uses the same source for post-click observations.
type Source interface {
	Capture(ctx context.Context) (*Frame, geometry.Viewport, error)
	URL() string
}

// PageCapturer captures frames from a live browser session.
type PageCapturer struct {
	session         *browser.Session
	inferenceHeight int
	log             *logging.Logger
}

// NewPageCapturer creates a capturer over a browser session. A non-positive
// inferenceHeight selects the default.
func NewPageCapturer(session *browser.Session, inferenceHeight int) *PageCapturer {
	if inferenceHeight <= 0 {
		inferenceHeight = DefaultInferenceHeight
	}
	log, _ := logging.New("capture")
	return &PageCapturer{
		session:         session,
		inferenceHeight: inferenceHeight,
		log:             log,
	}
}

// Capture takes a screenshot, resizes it into inference space, and builds
// the viewport context from the window's current placement.
func (c *PageCapturer) Capture(ctx context.Context) (*Frame, geometry.Viewport, error) {
	if err := ctx.Err(); err != nil {
		return nil, geometry.Viewport{}, err
	}

	data, err := c.session.Screenshot()
	if err != nil {
		return nil, geometry.Viewport{}, fmt.Errorf("capturing frame: %w", err)
	}

	frame, err := DecodeFrame(data, c.inferenceHeight, c.session.URL())
	if err != nil {
		return nil, geometry.Viewport{}, err
	}

	metrics, err := c.session.Metrics()
	if err != nil {
		return nil, geometry.Viewport{}, err
	}

	// Screenshots come back in CSS pixels; the OS injects pointer events in
	// physical pixels, so the window origin is scaled by the DPI ratio and
	// the remaining CSS-to-physical scaling rides on Viewport.DPIScale.
	vp := geometry.Viewport{
		NativeWidth:     frame.NativeWidth,
		NativeHeight:    frame.NativeHeight,
		InferenceWidth:  frame.InferenceWidth,
		InferenceHeight: frame.InferenceHeight,
		OffsetX:         metrics.ScreenX * metrics.DevicePixelRatio,
		OffsetY:         (metrics.ScreenY + metrics.ChromeHeight) * metrics.DevicePixelRatio,
		DPIScale:        metrics.DevicePixelRatio,
	}
	if err := vp.Validate(); err != nil {
		return nil, geometry.Viewport{}, err
	}

	c.log.Debugf("captured %dx%d -> %dx%d offset=(%.0f,%.0f) dpi=%.2f url=%s",
		frame.NativeWidth, frame.NativeHeight,
		frame.InferenceWidth, frame.InferenceHeight,
		vp.OffsetX, vp.OffsetY, vp.DPIScale, frame.PageURL)

	return frame, vp, nil
}

// URL returns the current page URL without capturing a frame.
func (c *PageCapturer) URL() string {
	return c.session.URL()
}
