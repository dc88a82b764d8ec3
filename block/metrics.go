package block

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "sequencer"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Height of the last produced block.
	Height metrics.Gauge
	// Number of transactions in the last block.
	NumTxs metrics.Gauge
	// Size of the last block.
	BlockSizeBytes metrics.Gauge
	// Total number of transactions sequenced.
	TotalTxs metrics.Counter
	// Transactions waiting for the next block.
	PendingTxs metrics.Gauge
	// Batches received from the ingress.
	Batches metrics.Counter
	// Blocks flushed early because the next batch did not fit.
	SizeFlushes metrics.Counter
	// Time spent persisting and publishing a block.
	ProductionTime metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Height: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "height",
			Help:      "Height of the last produced block.",
		}, labels).With(labelsAndValues...),
		NumTxs: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "num_txs",
			Help:      "Number of transactions in the last block.",
		}, labels).With(labelsAndValues...),
		BlockSizeBytes: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "block_size_bytes",
			Help:      "Size of the last block.",
		}, labels).With(labelsAndValues...),
		TotalTxs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "total_txs",
			Help:      "Total number of transactions sequenced.",
		}, labels).With(labelsAndValues...),
		PendingTxs: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pending_txs",
			Help:      "Number of transactions waiting for the next block.",
		}, labels).With(labelsAndValues...),
		Batches: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "batches",
			Help:      "Number of validated batches received.",
		}, labels).With(labelsAndValues...),
		SizeFlushes: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "size_flushes",
			Help:      "Number of blocks produced before the interval elapsed because the size bound was reached.",
		}, labels).With(labelsAndValues...),
		ProductionTime: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "production_time_seconds",
			Help:      "Time spent persisting and publishing a block.",
			Buckets:   stdprometheus.DefBuckets,
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Height:         discard.NewGauge(),
		NumTxs:         discard.NewGauge(),
		BlockSizeBytes: discard.NewGauge(),
		TotalTxs:       discard.NewCounter(),
		PendingTxs:     discard.NewGauge(),
		Batches:        discard.NewCounter(),
		SizeFlushes:    discard.NewCounter(),
		ProductionTime: discard.NewHistogram(),
	}
}
