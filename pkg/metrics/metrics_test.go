package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/pagepilot/pagepilot/pkg/geometry"
	"github.com/pagepilot/pagepilot/pkg/locator"
)

func sampleRecord() locator.Record {
	det := &locator.Detection{
		Box:        geometry.Box{X1: 850, Y1: 420, X2: 980, Y2: 460},
		Center:     geometry.Point{X: 915, Y: 440},
		Confidence: 0.92,
		Source:     locator.SourceText,
	}
	return locator.Record{
		ID:       "rec-1",
		Target:   "Add to Cart",
		PageURL:  "https://shop.example.com",
		Selected: locator.SourceText,
		Found:    true,
		Results: map[locator.Source]locator.TierResult{
			locator.SourceText:    {Detection: det, Elapsed: 12 * time.Millisecond},
			locator.SourcePattern: {Elapsed: time.Millisecond},
			locator.SourceVision:  {Err: "timeout", Elapsed: 30 * time.Second},
		},
		Agreement: []locator.Agreement{
			{A: locator.SourceText, B: locator.SourceVision, IoU: 0.81, CenterDistance: 4.2},
		},
	}
}

func TestPromSinkObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPromSink("pagepilot", reg)

	sink.Observe(sampleRecord())
	sink.Observe(sampleRecord())

	hits := sink.resolutions.WithLabelValues("text", "hit")
	assert.Equal(t, 2.0, testutil.ToFloat64(hits))

	misses := sink.resolutions.WithLabelValues("pattern", "miss")
	assert.Equal(t, 2.0, testutil.ToFloat64(misses))

	errors := sink.resolutions.WithLabelValues("vision", "error")
	assert.Equal(t, 2.0, testutil.ToFloat64(errors))

	count, err := testutil.GatherAndCount(reg,
		"pagepilot_cascade_tier_results_total",
		"pagepilot_cascade_tier_latency_seconds",
		"pagepilot_cascade_pair_agreement_iou",
		"pagepilot_cascade_pair_center_distance_px",
	)
	assert.NoError(t, err)
	assert.Equal(t, 8, count)
}

func TestLogSinkObserveDoesNotPanic(t *testing.T) {
	sink := NewLogSink()
	sink.Observe(sampleRecord())
	sink.Observe(locator.Record{ID: "empty"})
}

func TestMultiSinkFansOut(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPromSink("pagepilot", reg)
	multi := MultiSink{prom, NewLogSink()}

	multi.Observe(sampleRecord())

	hits := prom.resolutions.WithLabelValues("text", "hit")
	assert.Equal(t, 1.0, testutil.ToFloat64(hits))
}
