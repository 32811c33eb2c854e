// Package capture produces the immutable frames the localization providers
// consume: a screenshot resized into inference space plus the viewport
// context needed to map detections back to physical screen coordinates.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"time"

	xdraw "golang.org/x/image/draw"
)

// DefaultInferenceHeight is the inference-space height frames are resized
// to. Width follows the source aspect ratio.
const DefaultInferenceHeight = 720

// Frame is one captured page image prepared for localization. It is
// immutable: created once per capture, read by every provider against the
// same instance, and discarded once the cascade resolves.
type Frame struct {
	// Image is the inference-space image.
	Image *image.RGBA

	// NativeWidth and NativeHeight are the screenshot dimensions before
	// the inference resize.
	NativeWidth  int
	NativeHeight int

	// InferenceWidth and InferenceHeight are the dimensions of Image.
	InferenceWidth  int
	InferenceHeight int

	// PageURL is the page address at capture time, used for site-identity
	// lookups and URL-change verification.
	PageURL string

	// CapturedAt records when the screenshot was taken.
	CapturedAt time.Time
}

// NewFrame resizes a captured screenshot to the given inference height,
// preserving aspect ratio, and records the dimensions of both spaces.
func NewFrame(src image.Image, inferenceHeight int, pageURL string) (*Frame, error) {
	bounds := src.Bounds()
	nativeW, nativeH := bounds.Dx(), bounds.Dy()
	if nativeW <= 0 || nativeH <= 0 {
		return nil, fmt.Errorf("empty source image %dx%d", nativeW, nativeH)
	}
	if inferenceHeight <= 0 {
		inferenceHeight = DefaultInferenceHeight
	}

	scale := float64(inferenceHeight) / float64(nativeH)
	inferenceW := int(math.Round(float64(nativeW) * scale))
	if inferenceW < 1 {
		inferenceW = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, inferenceW, inferenceHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)

	return &Frame{
		Image:           dst,
		NativeWidth:     nativeW,
		NativeHeight:    nativeH,
		InferenceWidth:  inferenceW,
		InferenceHeight: inferenceHeight,
		PageURL:         pageURL,
		CapturedAt:      time.Now(),
	}, nil
}

// DecodeFrame builds a frame from PNG screenshot bytes.
func DecodeFrame(pngBytes []byte, inferenceHeight int, pageURL string) (*Frame, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}
	return NewFrame(img, inferenceHeight, pageURL)
}

// PNG encodes the inference-space image, the representation sent to the
// vision model.
func (f *Frame) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}
