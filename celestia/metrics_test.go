package celestia

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Run("PrometheusMetrics", func(t *testing.T) {
		m := PrometheusMetrics("test", "chain_id", "test_chain")

		assert.NotNil(t, m.LastBlobSize)
		assert.NotNil(t, m.LastBlobShares)
		assert.NotNil(t, m.BufferedDigests)
		assert.NotNil(t, m.SubmittedDigests)
		assert.NotNil(t, m.IncludedDAHeight)
		assert.NotNil(t, m.SyncedHeight)

		m.SubmitAttempts.With("status", "success").Add(1)
		m.SyncedHeight.Set(3)
	})

	t.Run("NopMetrics", func(t *testing.T) {
		m := NopMetrics()
		m.SubmitAttempts.With("status", "failure").Add(1)
		m.LastBlobSize.Set(42)
	})
}
