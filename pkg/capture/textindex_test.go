package capture

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	result interface{}
	err    error
}

func (f *fakePage) Evaluate(string) (interface{}, error) {
	return f.result, f.err
}

func testFrame(t *testing.T, nativeW, nativeH, inferenceH int) *Frame {
	t.Helper()
	frame, err := NewFrame(image.NewRGBA(image.Rect(0, 0, nativeW, nativeH)), inferenceH, "https://shop.example.com/cart")
	require.NoError(t, err)
	return frame
}

func TestDOMTextIndexRecognize(t *testing.T) {
	page := &fakePage{
		result: []interface{}{
			map[string]interface{}{
				"text": "Add to Cart",
				"x":    float64(1275), "y": float64(630),
				"w": float64(195), "h": float64(60),
			},
			map[string]interface{}{
				"text": "   ",
				"x":    float64(10), "y": float64(10),
				"w": float64(40), "h": float64(12),
			},
			map[string]interface{}{
				"text": "degenerate",
				"x":    float64(50), "y": float64(50),
				"w": float64(0), "h": float64(0),
			},
		},
	}

	// 1920x1080 native, 720 inference: every CSS coordinate scales by 2/3.
	frame := testFrame(t, 1920, 1080, 720)

	regions, err := NewDOMTextIndex(page).Recognize(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, regions, 1, "blank and zero-area regions are dropped")

	r := regions[0]
	assert.Equal(t, "Add to Cart", r.Text)
	assert.InDelta(t, 850, r.Box.X1, 0.5)
	assert.InDelta(t, 420, r.Box.Y1, 0.5)
	assert.InDelta(t, 980, r.Box.X2, 0.5)
	assert.InDelta(t, 460, r.Box.Y2, 0.5)
	assert.Equal(t, 1.0, r.Confidence)
}

func TestDOMTextIndexClipsToFrame(t *testing.T) {
	page := &fakePage{
		result: []interface{}{
			map[string]interface{}{
				"text": "Footer",
				"x":    float64(1200), "y": float64(700),
				"w": float64(400), "h": float64(60),
			},
		},
	}
	frame := testFrame(t, 1280, 720, 720)

	regions, err := NewDOMTextIndex(page).Recognize(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.LessOrEqual(t, regions[0].Box.X2, float64(frame.InferenceWidth))
	assert.LessOrEqual(t, regions[0].Box.Y2, float64(frame.InferenceHeight))
}

func TestDOMTextIndexCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDOMTextIndex(&fakePage{}).Recognize(ctx, testFrame(t, 1280, 720, 720))
	assert.ErrorIs(t, err, context.Canceled)
}
