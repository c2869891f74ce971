package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks order intake, payment transitions, and event delivery.
type StoreMetrics struct {
	ordersCreated     prometheus.Counter
	ordersRejected    *prometheus.CounterVec
	checkoutDuration  prometheus.Histogram
	paymentAdvances   *prometheus.CounterVec
	stockAdjustments  prometheus.Counter
	eventsPublished   *prometheus.CounterVec
	eventPublishFails prometheus.Counter
}

func NewStoreMetrics() *StoreMetrics {
	return NewStoreMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewStoreMetricsWithRegisterer(registerer prometheus.Registerer) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StoreMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "kasira_orders_created_total",
			Help: "Total number of orders committed to the ledger",
		}),
		ordersRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "kasira_orders_rejected_total",
			Help: "Total number of orders rejected before commit",
		}, []string{"reason"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "kasira_checkout_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		paymentAdvances: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "kasira_payment_advances_total",
			Help: "Total number of applied payment status transitions",
		}, []string{"status"}),
		stockAdjustments: registerCounter(registerer, prometheus.CounterOpts{
			Name: "kasira_stock_adjustments_total",
			Help: "Total number of applied stock adjustments",
		}),
		eventsPublished: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "kasira_events_published_total",
			Help: "Total number of events published",
		}, []string{"type"}),
		eventPublishFails: registerCounter(registerer, prometheus.CounterOpts{
			Name: "kasira_event_publish_failures_total",
			Help: "Total number of event publish failures",
		}),
	}
}

func (m *StoreMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

func (m *StoreMetrics) RecordOrderRejected(reason string) {
	m.ordersRejected.WithLabelValues(reason).Inc()
}

func (m *StoreMetrics) RecordCheckoutDuration(d time.Duration) {
	m.checkoutDuration.Observe(d.Seconds())
}

func (m *StoreMetrics) RecordPaymentAdvance(status string) {
	m.paymentAdvances.WithLabelValues(status).Inc()
}

func (m *StoreMetrics) RecordStockAdjustment() {
	m.stockAdjustments.Inc()
}

func (m *StoreMetrics) RecordEventPublished(eventType string) {
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

func (m *StoreMetrics) RecordEventPublishFailure() {
	m.eventPublishFails.Inc()
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}
