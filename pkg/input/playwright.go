package input

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pagepilot/pagepilot/pkg/browser"
)

// metricsTTL bounds how long cached window metrics stay trusted. The
// window can move between clicks; it does not move within one gesture.
const metricsTTL = 2 * time.Second

// PlaywrightDevice dispatches pointer events through the page's mouse.
// Physical screen coordinates are mapped back into page CSS coordinates
// using the session's window metrics.
type PlaywrightDevice struct {
	session *browser.Session
	metrics browser.WindowMetrics
	fetched time.Time
}

// NewPlaywrightDevice creates a device over a browser session.
func NewPlaywrightDevice(session *browser.Session) *PlaywrightDevice {
	return &PlaywrightDevice{session: session}
}

func (d *PlaywrightDevice) toPage(x, y float64) (float64, float64, error) {
	if time.Since(d.fetched) > metricsTTL {
		m, err := d.session.Metrics()
		if err != nil {
			return 0, 0, err
		}
		d.metrics = m
		d.fetched = time.Now()
	}
	dpi := d.metrics.DevicePixelRatio
	pageX := x/dpi - d.metrics.ScreenX
	pageY := y/dpi - d.metrics.ScreenY - d.metrics.ChromeHeight
	return pageX, pageY, nil
}

// Move dispatches a mouse move.
func (d *PlaywrightDevice) Move(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	px, py, err := d.toPage(x, y)
	if err != nil {
		return err
	}
	return d.session.Mouse().Move(px, py)
}

// Press dispatches a left-button press at the given position.
func (d *PlaywrightDevice) Press(ctx context.Context, x, y float64) error {
	if err := d.Move(ctx, x, y); err != nil {
		return err
	}
	return d.session.Mouse().Down(playwright.MouseDownOptions{
		Button: playwright.MouseButtonLeft,
	})
}

// Release dispatches a left-button release at the given position.
func (d *PlaywrightDevice) Release(ctx context.Context, x, y float64) error {
	if err := d.Move(ctx, x, y); err != nil {
		return err
	}
	return d.session.Mouse().Up(playwright.MouseUpOptions{
		Button: playwright.MouseButtonLeft,
	})
}
