package locator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/geometry"
)

type fakeProvider struct {
	source Source
	det    *Detection
	err    error
	calls  atomic.Int32
}

func (f *fakeProvider) Source() Source { return f.source }

func (f *fakeProvider) Locate(ctx context.Context, target Target, frame *capture.Frame) (*Detection, error) {
	f.calls.Add(1)
	return f.det, f.err
}

type recordingSink struct {
	records chan Record
}

func newRecordingSink() *recordingSink {
	return &recordingSink{records: make(chan Record, 8)}
}

func (s *recordingSink) Observe(r Record) { s.records <- r }

func (s *recordingSink) wait(t *testing.T) Record {
	t.Helper()
	select {
	case r := <-s.records:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no record emitted")
		return Record{}
	}
}

func detAt(t *testing.T, frame *capture.Frame, source Source, x1, y1, x2, y2, conf float64) *Detection {
	t.Helper()
	d, err := NewDetection(geometry.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, conf, source, frame)
	require.NoError(t, err)
	return d
}

func TestCascadeTierPrecedence(t *testing.T) {
	frame := newTestFrame(t, "https://shop.example.com")
	textDet := detAt(t, frame, SourceText, 850, 420, 980, 460, 0.92)
	visionDet := detAt(t, frame, SourceVision, 100, 100, 200, 200, 0.99)

	text := &fakeProvider{source: SourceText, det: textDet}
	pattern := &fakeProvider{source: SourcePattern}
	vision := &fakeProvider{source: SourceVision, det: visionDet}

	c, err := NewCascade([]Provider{text, pattern, vision})
	require.NoError(t, err)

	det, err := c.Resolve(context.Background(), TextTarget("Add to Cart"), frame)
	require.NoError(t, err)

	assert.Equal(t, textDet, det)
	assert.Equal(t, int32(1), text.calls.Load())
	assert.Equal(t, int32(0), pattern.calls.Load(), "later tiers are skipped in production mode")
	assert.Equal(t, int32(0), vision.calls.Load())
}

func TestCascadeFallbackTotality(t *testing.T) {
	frame := newTestFrame(t, "")
	visionDet := detAt(t, frame, SourceVision, 100, 100, 200, 200, 0.7)

	text := &fakeProvider{source: SourceText}
	pattern := &fakeProvider{source: SourcePattern}
	vision := &fakeProvider{source: SourceVision, det: visionDet}

	c, err := NewCascade([]Provider{text, pattern, vision})
	require.NoError(t, err)

	det, err := c.Resolve(context.Background(), DescribedTarget("cart icon"), frame)
	require.NoError(t, err)
	assert.Equal(t, visionDet, det)
}

func TestCascadeNotFound(t *testing.T) {
	frame := newTestFrame(t, "")
	c, err := NewCascade([]Provider{
		&fakeProvider{source: SourceText},
		&fakeProvider{source: SourcePattern},
		&fakeProvider{source: SourceVision},
	})
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), TextTarget("ghost"), frame)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCascadeTierErrorIsMiss(t *testing.T) {
	frame := newTestFrame(t, "")
	visionDet := detAt(t, frame, SourceVision, 10, 10, 50, 50, 0.9)

	c, err := NewCascade([]Provider{
		&fakeProvider{source: SourceText, err: errors.New("recognizer exploded")},
		&fakeProvider{source: SourceVision, det: visionDet},
	})
	require.NoError(t, err)

	det, err := c.Resolve(context.Background(), TextTarget("Add to Cart"), frame)
	require.NoError(t, err, "tier failures never abort the cascade")
	assert.Equal(t, visionDet, det)
}

func TestCascadeShadowRunsAllTiersAndEmitsRecord(t *testing.T) {
	frame := newTestFrame(t, "https://shop.example.com/item")
	textDet := detAt(t, frame, SourceText, 850, 420, 980, 460, 0.92)
	patternDet := detAt(t, frame, SourcePattern, 840, 415, 985, 465, 1.0)
	visionDet := detAt(t, frame, SourceVision, 855, 425, 975, 455, 0.88)

	text := &fakeProvider{source: SourceText, det: textDet}
	pattern := &fakeProvider{source: SourcePattern, det: patternDet}
	vision := &fakeProvider{source: SourceVision, det: visionDet}
	sink := newRecordingSink()

	c, err := NewCascade([]Provider{text, pattern, vision}, WithMode(ModeShadow), WithSink(sink))
	require.NoError(t, err)

	det, err := c.Resolve(context.Background(), TextTarget("Add to Cart"), frame)
	require.NoError(t, err)
	assert.Equal(t, textDet, det, "shadow mode still answers with the tier-order result")

	rec := sink.wait(t)
	assert.Equal(t, int32(1), text.calls.Load())
	assert.Equal(t, int32(1), pattern.calls.Load(), "shadow mode runs every tier")
	assert.Equal(t, int32(1), vision.calls.Load())

	assert.NotEmpty(t, rec.ID)
	assert.True(t, rec.Found)
	assert.Equal(t, SourceText, rec.Selected)
	assert.Equal(t, "Add to Cart", rec.Target)
	require.Len(t, rec.Results, 3)
	require.Len(t, rec.Agreement, 3, "three providers give three pairs")

	for _, a := range rec.Agreement {
		assert.Greater(t, a.IoU, 0.5, "overlapping detections agree: %v vs %v", a.A, a.B)
		assert.Less(t, a.CenterDistance, 15.0)
	}
}

func TestCascadeShadowNotFoundStillEmits(t *testing.T) {
	frame := newTestFrame(t, "")
	sink := newRecordingSink()

	c, err := NewCascade([]Provider{
		&fakeProvider{source: SourceText},
		&fakeProvider{source: SourceVision},
	}, WithMode(ModeShadow), WithSink(sink))
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), TextTarget("ghost"), frame)
	assert.ErrorIs(t, err, ErrNotFound)

	rec := sink.wait(t)
	assert.False(t, rec.Found)
	assert.Empty(t, rec.Selected)
	assert.Empty(t, rec.Agreement)
}

func TestNewCascadeRequiresTiers(t *testing.T) {
	_, err := NewCascade(nil)
	assert.Error(t, err)
}
