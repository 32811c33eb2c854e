// Package browser manages the Playwright browser instance that pagepilot
// drives. It owns the browser lifecycle (install, launch, navigate, close)
// and exposes the raw observations the capture layer needs: screenshots,
// the current URL, and window placement metrics.
package browser

import (
	"fmt"
	"io"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pagepilot/pagepilot/pkg/logging"
)

const (
	// DefaultViewportWidth is the viewport width for new sessions.
	DefaultViewportWidth = 1280

	// DefaultViewportHeight is the viewport height for new sessions.
	DefaultViewportHeight = 720

	// DefaultTimeout is the default operation timeout in milliseconds.
	DefaultTimeout = 30000
)

// Options configures a browser session.
type Options struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool

	// ViewportWidth and ViewportHeight set the page viewport in CSS pixels.
	ViewportWidth  int
	ViewportHeight int

	// Timeout is the default timeout for page operations in milliseconds.
	Timeout float64
}

// Session is a single live browser with one page. pagepilot drives exactly
// one session at a time; concurrent clicks against the same page would
// corrupt the before/after state the verifier depends on.
type Session struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	context  playwright.BrowserContext
	page     playwright.Page
	headless bool
	started  time.Time
	log      *logging.Logger
}

// WindowMetrics describes where the page content sits on the physical
// screen, queried from the live page. All values are in CSS pixels except
// DevicePixelRatio.
type WindowMetrics struct {
	DevicePixelRatio float64
	ScreenX          float64
	ScreenY          float64
	ChromeHeight     float64
	InnerWidth       float64
	InnerHeight      float64
}

// Launch installs Playwright if needed, starts it, and opens a browser
// session with one page.
func Launch(opts Options) (*Session, error) {
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = DefaultViewportWidth
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = DefaultViewportHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	log, _ := logging.New("browser")

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("installing playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	ctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	})
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}

	page, err := ctx.NewPage()
	if err != nil {
		ctx.Close()
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("creating page: %w", err)
	}
	page.SetDefaultTimeout(opts.Timeout)

	log.Infof("browser launched headless=%v viewport=%dx%d", opts.Headless, opts.ViewportWidth, opts.ViewportHeight)

	return &Session{
		pw:       pw,
		browser:  b,
		context:  ctx,
		page:     page,
		headless: opts.Headless,
		started:  time.Now(),
		log:      log,
	}, nil
}

// Navigate loads a URL and waits for the requested lifecycle state
// ("load", "domcontentloaded", or "networkidle"; empty means "load").
func (s *Session) Navigate(url, waitUntil string) error {
	opts := playwright.PageGotoOptions{}
	if waitUntil != "" {
		state := playwright.WaitUntilState(waitUntil)
		opts.WaitUntil = &state
	}
	if _, err := s.page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	s.log.Infof("navigated to %s", s.page.URL())
	return nil
}

// URL returns the current page URL.
func (s *Session) URL() string {
	return s.page.URL()
}

// Screenshot captures the current viewport as PNG bytes.
func (s *Session) Screenshot() ([]byte, error) {
	data, err := s.page.Screenshot(playwright.PageScreenshotOptions{})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// Metrics queries window placement and DPI from the live page. These feed
// the viewport context used for coordinate transforms: a headless browser
// reports a zero screen offset, a headed one reports where the content
// area actually sits.
func (s *Session) Metrics() (WindowMetrics, error) {
	raw, err := s.page.Evaluate(`() => ({
		dpr: window.devicePixelRatio,
		screenX: window.screenX,
		screenY: window.screenY,
		chromeHeight: window.outerHeight - window.innerHeight,
		innerWidth: window.innerWidth,
		innerHeight: window.innerHeight,
	})`)
	if err != nil {
		return WindowMetrics{}, fmt.Errorf("querying window metrics: %w", err)
	}

	values, ok := raw.(map[string]interface{})
	if !ok {
		return WindowMetrics{}, fmt.Errorf("unexpected metrics payload %T", raw)
	}

	m := WindowMetrics{
		DevicePixelRatio: jsNumber(values["dpr"], 1),
		ScreenX:          jsNumber(values["screenX"], 0),
		ScreenY:          jsNumber(values["screenY"], 0),
		ChromeHeight:     jsNumber(values["chromeHeight"], 0),
		InnerWidth:       jsNumber(values["innerWidth"], 0),
		InnerHeight:      jsNumber(values["innerHeight"], 0),
	}
	if m.DevicePixelRatio <= 0 {
		m.DevicePixelRatio = 1
	}
	if m.ChromeHeight < 0 {
		m.ChromeHeight = 0
	}
	return m, nil
}

// Evaluate runs a JavaScript expression against the page and returns its
// result. Used by the DOM text index.
func (s *Session) Evaluate(expression string) (interface{}, error) {
	return s.page.Evaluate(expression)
}

// Mouse returns the page's mouse for low-level pointer event dispatch.
func (s *Session) Mouse() playwright.Mouse {
	return s.page.Mouse()
}

// Headless reports whether the session runs without a visible window.
func (s *Session) Headless() bool {
	return s.headless
}

// Close shuts down the page, context, browser, and Playwright driver.
func (s *Session) Close() error {
	_ = s.page.Close()
	_ = s.context.Close()
	_ = s.browser.Close()
	if err := s.pw.Stop(); err != nil {
		return fmt.Errorf("stopping playwright: %w", err)
	}
	s.log.Infof("browser closed after %s", time.Since(s.started).Round(time.Second))
	return s.log.Close()
}

func jsNumber(v interface{}, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return fallback
	}
}
