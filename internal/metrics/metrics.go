package metrics

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage labels
const (
	StageLoad      = "load"
	StageTransform = "transform"
	StageReverse   = "reverse"
	StageEncode    = "encode"
	StageWrite     = "write"
)

// Status labels for records_total
const (
	StatusLoaded    = "loaded"
	StatusMalformed = "malformed"
	StatusRewritten = "rewritten"
	StatusReversed  = "reversed"
	StatusEncoded   = "encoded"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusTruncated = "truncated"
)

// Collector records run metrics on its own registry so runs never share state
type Collector struct {
	logger   *slog.Logger
	registry *prometheus.Registry

	records         *prometheus.CounterVec
	truncatedTokens prometheus.Counter
	sequenceLength  prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		logger:   logger,
		registry: reg,
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunekit_records_total",
				Help: "Records processed by stage and status",
			},
			[]string{"stage", "status"},
		),
		truncatedTokens: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tunekit_truncated_tokens_total",
				Help: "Tokens dropped by truncation to max_length",
			},
		),
		sequenceLength: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tunekit_sequence_length_tokens",
				Help:    "Token count of each sequence before truncation",
				Buckets: prometheus.ExponentialBuckets(8, 2, 12), // 8 to 16384 tokens
			},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tunekit_stage_duration_seconds",
				Help:    "Wall time of each pipeline stage",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
			},
			[]string{"stage"},
		),
	}
}

// Registry exposes the collector's registry for gathering
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// AddRecords increments the record counter for a stage and status
func (c *Collector) AddRecords(stage, status string, n int) {
	if n <= 0 {
		return
	}
	c.records.WithLabelValues(stage, status).Add(float64(n))
}

// ObserveSequence records a sequence's pre-truncation length and dropped tokens
func (c *Collector) ObserveSequence(length, dropped int) {
	c.sequenceLength.Observe(float64(length))
	if dropped > 0 {
		c.truncatedTokens.Add(float64(dropped))
	}
}

// RecordStage records how long a stage took
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// WriteTextfile writes every metric in Prometheus text format, for node_exporter's textfile collector
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	c.logger.Debug("Wrote metrics", "path", path)
	return nil
}
