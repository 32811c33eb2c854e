package locator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVision struct {
	content string
	err     error
	delay   time.Duration
	prompt  string
}

func (s *stubVision) Ask(ctx context.Context, prompt string, imagePNG []byte) (string, error) {
	s.prompt = prompt
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.content, s.err
}

func TestVisionMatcherParsesDetection(t *testing.T) {
	client := &stubVision{content: `{"found": true, "bbox": {"x1": 850, "y1": 420, "x2": 980, "y2": 460}, "confidence": 0.87}`}
	m := NewVisionMatcher(client)

	det, err := m.Locate(context.Background(), TextTarget("Add to Cart"), newTestFrame(t, ""))
	require.NoError(t, err)
	require.NotNil(t, det)

	assert.Equal(t, SourceVision, det.Source)
	assert.InDelta(t, 0.87, det.Confidence, 1e-9)
	assert.Equal(t, 915.0, det.Center.X)
	assert.Equal(t, 440.0, det.Center.Y)

	assert.Contains(t, client.prompt, `"Add to Cart"`)
	assert.Contains(t, client.prompt, "1280x720")
}

func TestVisionMatcherNotFound(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "explicit not found", content: `{"found": false, "bbox": null, "confidence": 0.0}`},
		{name: "found without box", content: `{"found": true, "confidence": 0.9}`},
		{name: "malformed json", content: `I think it is around the top right`},
		{name: "zero-area box", content: `{"found": true, "bbox": {"x1": 100, "y1": 100, "x2": 100, "y2": 100}, "confidence": 0.9}`},
		{name: "box outside frame", content: `{"found": true, "bbox": {"x1": 100, "y1": 100, "x2": 5000, "y2": 200}, "confidence": 0.9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewVisionMatcher(&stubVision{content: tt.content})
			det, err := m.Locate(context.Background(), TextTarget("Add to Cart"), newTestFrame(t, ""))
			assert.NoError(t, err)
			assert.Nil(t, det)
		})
	}
}

func TestVisionMatcherClampsConfidence(t *testing.T) {
	m := NewVisionMatcher(&stubVision{content: `{"found": true, "bbox": {"x1": 10, "y1": 10, "x2": 50, "y2": 30}, "confidence": 1.7}`})

	det, err := m.Locate(context.Background(), TextTarget("x"), newTestFrame(t, ""))
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, 1.0, det.Confidence)
}

func TestVisionMatcherTimeoutIsNotFound(t *testing.T) {
	client := &stubVision{
		content: `{"found": true, "bbox": {"x1": 10, "y1": 10, "x2": 50, "y2": 30}, "confidence": 0.9}`,
		delay:   200 * time.Millisecond,
	}
	m := NewVisionMatcher(client)
	m.SetTimeout(20 * time.Millisecond)

	det, err := m.Locate(context.Background(), TextTarget("Add to Cart"), newTestFrame(t, ""))
	assert.NoError(t, err, "a timeout is a miss, not an error")
	assert.Nil(t, det)
}
