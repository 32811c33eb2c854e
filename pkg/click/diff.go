// Package click converts a detection into a verified physical click. The
// executor issues the click through the human-input capability and the
// verifier decides, from imperfect page-state signals, whether it worked.
package click

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"github.com/pagepilot/pagepilot/pkg/geometry"
)

const (
	// DefaultDiffRadius is the half-size in inference pixels of the
	// neighborhood compared around the click point.
	DefaultDiffRadius = 150

	// perPixelThreshold is the YIQ distance above which a pixel counts as
	// changed, as a fraction of the maximum possible distance.
	perPixelThreshold = 0.1
)

// maxYIQDelta is the largest possible weighted YIQ difference for 8-bit
// channels.
const maxYIQDelta = 35215.0

// DiffScore computes the fraction of changed pixels between two frames,
// restricted to a square neighborhood of the click point. Pixels differ
// when their weighted YIQ distance exceeds a perceptual threshold, so
// anti-aliasing wiggle and compression noise do not count as change.
func DiffScore(before, after *image.RGBA, clickPoint geometry.Point, radius int) float64 {
	if before == nil || after == nil {
		return 0
	}
	if radius <= 0 {
		radius = DefaultDiffRadius
	}

	if !before.Bounds().Eq(after.Bounds()) {
		scaled := image.NewRGBA(before.Bounds())
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), after, after.Bounds(), xdraw.Src, nil)
		after = scaled
	}

	bounds := before.Bounds()
	region := image.Rect(
		int(clickPoint.X)-radius, int(clickPoint.Y)-radius,
		int(clickPoint.X)+radius, int(clickPoint.Y)+radius,
	).Intersect(bounds)
	if region.Empty() {
		region = bounds
	}

	threshold := maxYIQDelta * perPixelThreshold * perPixelThreshold

	changed, total := 0, 0
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			total++
			if yiqDelta(before.RGBAAt(x, y), after.RGBAAt(x, y)) > threshold {
				changed++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(changed) / float64(total)
}

// yiqDelta is the pixelmatch color metric: a weighted squared distance in
// YIQ space that tracks perceived difference better than raw RGB.
func yiqDelta(a, b color.RGBA) float64 {
	dy := luma(a) - luma(b)
	di := chromaI(a) - chromaI(b)
	dq := chromaQ(a) - chromaQ(b)
	return 0.5053*dy*dy + 0.299*di*di + 0.1957*dq*dq
}

func luma(c color.RGBA) float64 {
	return float64(c.R)*0.29889531 + float64(c.G)*0.58662247 + float64(c.B)*0.11448223
}

func chromaI(c color.RGBA) float64 {
	return float64(c.R)*0.59597799 - float64(c.G)*0.27417610 - float64(c.B)*0.32180189
}

func chromaQ(c color.RGBA) float64 {
	return float64(c.R)*0.21147017 - float64(c.G)*0.52261711 + float64(c.B)*0.31114694
}
