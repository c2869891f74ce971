package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreMetricsRecording(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewStoreMetricsWithRegisterer(registry)

	m.RecordOrderCreated()
	m.RecordOrderCreated()
	m.RecordOrderRejected("insufficient_stock")
	m.RecordPaymentAdvance("success")
	m.RecordPaymentAdvance("success")
	m.RecordPaymentAdvance("failed")
	m.RecordStockAdjustment()
	m.RecordEventPublished("transaction.created")
	m.RecordEventPublishFailure()
	m.RecordCheckoutDuration(120 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ordersCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersRejected.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.paymentAdvances.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentAdvances.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stockAdjustments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("transaction.created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventPublishFails))
}

func TestStoreMetricsDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := NewStoreMetricsWithRegisterer(registry)
	require.NotNil(t, first)

	// Re-registering against the same registry reuses the existing
	// collectors instead of panicking.
	second := NewStoreMetricsWithRegisterer(registry)
	require.NotNil(t, second)

	first.RecordOrderCreated()
	second.RecordOrderCreated()
	assert.Equal(t, 2.0, testutil.ToFloat64(second.ordersCreated))
}

func TestStoreMetricsNilRegistererFallsBack(t *testing.T) {
	assert.NotPanics(t, func() {
		m := NewStoreMetricsWithRegisterer(nil)
		require.NotNil(t, m)
	})
}
