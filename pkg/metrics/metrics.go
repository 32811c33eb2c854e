// Package metrics exports shadow-mode cascade records: Prometheus series
// for aggregate tier agreement and a structured log sink for per-invocation
// records. Production mode emits nothing; these sinks exist to gate
// promoting a fast tier by measuring how often it agrees with the vision
// baseline.
package metrics

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pagepilot/pagepilot/pkg/locator"
	"github.com/pagepilot/pagepilot/pkg/logging"
)

// PromSink aggregates cascade records into Prometheus series.
type PromSink struct {
	resolutions    *prometheus.CounterVec
	tierLatency    *prometheus.HistogramVec
	agreementIoU   *prometheus.HistogramVec
	centerDistance *prometheus.HistogramVec
}

// NewPromSink registers the cascade metrics on the given registerer.
func NewPromSink(namespace string, reg prometheus.Registerer) *PromSink {
	factory := promauto.With(reg)
	return &PromSink{
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cascade_tier_results_total",
				Help:      "Per-tier localization outcomes in shadow mode",
			},
			[]string{"tier", "outcome"},
		),
		tierLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cascade_tier_latency_seconds",
				Help:      "Per-tier localization latency",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"tier"},
		),
		agreementIoU: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cascade_pair_agreement_iou",
				Help:      "IoU between detections of two tiers on the same frame",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"pair"},
		),
		centerDistance: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cascade_pair_center_distance_px",
				Help:      "Center distance in inference pixels between two tiers",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"pair"},
		),
	}
}

// Observe folds one cascade record into the aggregate series.
func (s *PromSink) Observe(rec locator.Record) {
	for source, result := range rec.Results {
		outcome := "miss"
		switch {
		case result.Err != "":
			outcome = "error"
		case result.Detection != nil:
			outcome = "hit"
		}
		s.resolutions.WithLabelValues(string(source), outcome).Inc()
		s.tierLatency.WithLabelValues(string(source)).Observe(result.Elapsed.Seconds())
	}
	for _, a := range rec.Agreement {
		pair := fmt.Sprintf("%s/%s", a.A, a.B)
		s.agreementIoU.WithLabelValues(pair).Observe(a.IoU)
		s.centerDistance.WithLabelValues(pair).Observe(a.CenterDistance)
	}
}

// LogSink writes each record as one JSON line to the session log, keeping
// the raw per-invocation data the aggregates lose.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a record logger.
func NewLogSink() *LogSink {
	log, _ := logging.New("shadow")
	return &LogSink{log: log}
}

// Observe writes the record.
func (s *LogSink) Observe(rec locator.Record) {
	type tierLine struct {
		Hit       bool    `json:"hit"`
		Err       string  `json:"err,omitempty"`
		ElapsedMs float64 `json:"elapsed_ms"`
		Box       string  `json:"box,omitempty"`
		Conf      float64 `json:"conf,omitempty"`
	}
	line := struct {
		ID        string              `json:"id"`
		Target    string              `json:"target"`
		PageURL   string              `json:"page_url,omitempty"`
		Selected  string              `json:"selected,omitempty"`
		Found     bool                `json:"found"`
		Tiers     map[string]tierLine `json:"tiers"`
		Agreement []locator.Agreement `json:"agreement,omitempty"`
	}{
		ID:        rec.ID,
		Target:    rec.Target,
		PageURL:   rec.PageURL,
		Selected:  string(rec.Selected),
		Found:     rec.Found,
		Tiers:     make(map[string]tierLine, len(rec.Results)),
		Agreement: rec.Agreement,
	}
	for source, result := range rec.Results {
		t := tierLine{
			Hit:       result.Detection != nil,
			Err:       result.Err,
			ElapsedMs: float64(result.Elapsed.Microseconds()) / 1000,
		}
		if result.Detection != nil {
			t.Box = result.Detection.Box.String()
			t.Conf = result.Detection.Confidence
		}
		line.Tiers[string(source)] = t
	}

	data, err := json.Marshal(line)
	if err != nil {
		s.log.Errorf("marshaling shadow record %s: %v", rec.ID, err)
		return
	}
	s.log.Infof("record %s", data)
}

// MultiSink fans one record out to several sinks.
type MultiSink []locator.Sink

// Observe forwards the record to every sink.
func (m MultiSink) Observe(rec locator.Record) {
	for _, sink := range m {
		sink.Observe(rec)
	}
}
