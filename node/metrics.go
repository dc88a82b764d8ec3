package node

import (
	"github.com/movementlabsxyz/da-sequencer/block"
	"github.com/movementlabsxyz/da-sequencer/celestia"
	"github.com/movementlabsxyz/da-sequencer/pkg/config"
)

// MetricsProvider returns the block production and DA submission metrics.
type MetricsProvider func() (*block.Metrics, *celestia.Metrics)

// DefaultMetricsProvider returns Metrics build using Prometheus client library
// if Prometheus is enabled. Otherwise, it returns no-op Metrics.
func DefaultMetricsProvider(cfg *config.InstrumentationConfig) MetricsProvider {
	return func() (*block.Metrics, *celestia.Metrics) {
		if cfg != nil && cfg.Prometheus {
			return block.PrometheusMetrics(cfg.Namespace), celestia.PrometheusMetrics(cfg.Namespace)
		}
		return block.NopMetrics(), celestia.NopMetrics()
	}
}
