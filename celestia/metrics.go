package celestia

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "celestia"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Size in bytes of the last submitted blob.
	LastBlobSize metrics.Gauge
	// Estimated number of shares of the last submitted blob.
	LastBlobShares metrics.Gauge
	// Number of digests waiting for the next submission.
	BufferedDigests metrics.Gauge
	// Number of digests confirmed on the DA layer.
	SubmittedDigests metrics.Counter
	// Submission attempts by outcome.
	SubmitAttempts metrics.Counter
	// DA height of the last confirmed submission.
	IncludedDAHeight metrics.Gauge
	// Highest block height confirmed on the DA layer.
	SyncedHeight metrics.Gauge
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
		LastBlobSize: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "last_blob_size",
			Help:      "The size in bytes of the last DA blob.",
		}, labels).With(labelsAndValues...),
		LastBlobShares: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "last_blob_shares",
			Help:      "The estimated number of shares used by the last DA blob.",
		}, labels).With(labelsAndValues...),
		BufferedDigests: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "buffered_digests",
			Help:      "The number of block digests waiting for submission.",
		}, labels).With(labelsAndValues...),
		SubmittedDigests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "submitted_digests",
			Help:      "The number of block digests confirmed on the DA layer.",
		}, labels).With(labelsAndValues...),
		SubmitAttempts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "submit_attempts",
			Help:      "Count of DA submission attempts by status.",
		}, append(labels, "status")).With(labelsAndValues...),
		IncludedDAHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "included_da_height",
			Help:      "The DA height of the last confirmed submission.",
		}, labels).With(labelsAndValues...),
		SyncedHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "synced_height",
			Help:      "The highest block height confirmed on the DA layer.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		LastBlobSize:     discard.NewGauge(),
		LastBlobShares:   discard.NewGauge(),
		BufferedDigests:  discard.NewGauge(),
		SubmittedDigests: discard.NewCounter(),
		SubmitAttempts:   discard.NewCounter(),
		IncludedDAHeight: discard.NewGauge(),
		SyncedHeight:     discard.NewGauge(),
	}
}
