package click

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/geometry"
	"github.com/pagepilot/pagepilot/pkg/locator"
)

type stubTextProvider struct {
	detection *locator.Detection
	err       error
}

func (s *stubTextProvider) Source() locator.Source { return locator.SourceText }

func (s *stubTextProvider) Locate(_ context.Context, _ locator.Target, _ *capture.Frame) (*locator.Detection, error) {
	return s.detection, s.err
}

func testFrame(t *testing.T, url string, c color.RGBA) *capture.Frame {
	t.Helper()
	frame, err := capture.NewFrame(solidImage(1280, 720, c), 720, url)
	require.NoError(t, err)
	return frame
}

func testBox(t *testing.T, x1, y1, x2, y2 float64) geometry.Box {
	t.Helper()
	box, err := geometry.NewBox(x1, y1, x2, y2, 1280, 720)
	require.NoError(t, err)
	return box
}

func detectionAt(t *testing.T, frame *capture.Frame, box geometry.Box) *locator.Detection {
	t.Helper()
	det, err := locator.NewDetection(box, 1.0, locator.SourceText, frame)
	require.NoError(t, err)
	return det
}

func TestVerifyURLChange(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	v := NewVerifier(&stubTextProvider{})

	outcome := v.Verify(context.Background(), Observation{
		BeforeURL: "https://shop.example.com/cart",
		AfterURL:  "https://shop.example.com/checkout",
		Before:    testFrame(t, "https://shop.example.com/cart", white),
		After:     testFrame(t, "https://shop.example.com/checkout", white),
		Target:    locator.TextTarget("Checkout"),
	})

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, MethodURLChange, outcome.Method)
}

func TestVerifyMissingAfterFrameInconclusive(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	v := NewVerifier(&stubTextProvider{})

	outcome := v.Verify(context.Background(), Observation{
		BeforeURL: "https://example.com",
		AfterURL:  "https://example.com",
		Before:    testFrame(t, "https://example.com", white),
		Target:    locator.TextTarget("Submit"),
	})

	assert.Equal(t, StatusInconclusive, outcome.Status)
	assert.False(t, outcome.Succeeded())
}

func TestVerifyElementVanished(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	// Element no longer found after the click.
	v := NewVerifier(&stubTextProvider{detection: nil})

	outcome := v.Verify(context.Background(), Observation{
		BeforeURL:   "https://example.com",
		AfterURL:    "https://example.com",
		Before:      testFrame(t, "https://example.com", white),
		After:       testFrame(t, "https://example.com", white),
		Target:      locator.TextTarget("Accept Cookies"),
		OriginalBox: testBox(t, 500, 600, 700, 660),
	})

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, MethodElementVanished, outcome.Method)
}

func TestVerifyElementMoved(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	after := testFrame(t, "https://example.com", white)

	// Re-found far from the original position.
	moved := detectionAt(t, after, testBox(t, 100, 100, 300, 160))
	v := NewVerifier(&stubTextProvider{detection: moved})

	outcome := v.Verify(context.Background(), Observation{
		BeforeURL:   "https://example.com",
		AfterURL:    "https://example.com",
		Before:      testFrame(t, "https://example.com", white),
		After:       after,
		Target:      locator.TextTarget("Next"),
		OriginalBox: testBox(t, 500, 600, 700, 660),
	})

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, MethodElementVanished, outcome.Method)
}

func TestVerifyElementStillPresentFallsToDiff(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	black := color.RGBA{0, 0, 0, 255}

	before := testFrame(t, "https://example.com", white)
	after := testFrame(t, "https://example.com", white)
	paintRect(after.Image, image.Rect(550, 300, 750, 500), black)

	box := testBox(t, 600, 350, 700, 410)
	still := detectionAt(t, after, box)
	v := NewVerifier(&stubTextProvider{detection: still})

	outcome := v.Verify(context.Background(), Observation{
		BeforeURL:   "https://example.com",
		AfterURL:    "https://example.com",
		Before:      before,
		After:       after,
		Target:      locator.TextTarget("Expand"),
		OriginalBox: box,
		ClickPoint:  box.Center(),
	})

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, MethodVisualDiff, outcome.Method)
	assert.Greater(t, outcome.DiffScore, DefaultDiffThreshold)
}

func TestVerifyNoChangeFails(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	after := testFrame(t, "https://example.com", white)

	box := testBox(t, 600, 350, 700, 410)
	still := detectionAt(t, after, box)
	v := NewVerifier(&stubTextProvider{detection: still})

	outcome := v.Verify(context.Background(), Observation{
		BeforeURL:   "https://example.com",
		AfterURL:    "https://example.com",
		Before:      testFrame(t, "https://example.com", white),
		After:       after,
		Target:      locator.TextTarget("Submit"),
		OriginalBox: box,
		ClickPoint:  box.Center(),
	})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.False(t, outcome.Succeeded())
}

func TestVerifyNonTextualTargetSkipsElementCheck(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	black := color.RGBA{0, 0, 0, 255}

	before := testFrame(t, "https://example.com", white)
	after := testFrame(t, "https://example.com", white)
	paintRect(after.Image, image.Rect(100, 100, 300, 300), black)

	// Provider would report vanished, but a described target never reaches
	// the element check.
	v := NewVerifier(&stubTextProvider{detection: nil})

	outcome := v.Verify(context.Background(), Observation{
		BeforeURL:  "https://example.com",
		AfterURL:   "https://example.com",
		Before:     before,
		After:      after,
		Target:     locator.DescribedTarget("gear icon in the toolbar"),
		ClickPoint: geometry.Point{X: 200, Y: 200},
	})

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, MethodVisualDiff, outcome.Method)
}

func TestVerifyProviderErrorAdvancesToDiff(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	after := testFrame(t, "https://example.com", white)

	box := testBox(t, 600, 350, 700, 410)
	v := NewVerifier(&stubTextProvider{err: errors.New("index stale")})

	outcome := v.Verify(context.Background(), Observation{
		BeforeURL:   "https://example.com",
		AfterURL:    "https://example.com",
		Before:      testFrame(t, "https://example.com", white),
		After:       after,
		Target:      locator.TextTarget("Save"),
		OriginalBox: box,
		ClickPoint:  box.Center(),
	})

	// The check errored out, so only the diff can decide. No change here.
	assert.Equal(t, StatusFailed, outcome.Status)
}
