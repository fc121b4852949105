package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics содержит метрики машины состояний заказа.
type LifecycleMetrics struct {
	// Счётчики переходов по событиям.
	ordersCreated   prometheus.Counter
	ordersConfirmed prometheus.Counter
	ordersShipped   prometheus.Counter
	ordersCancelled prometheus.Counter

	// Счётчики отказов.
	insufficientStock  prometheus.Counter
	invalidTransitions prometheus.Counter

	// Гистограмма времени выполнения переходов.
	transitionDuration *prometheus.HistogramVec

	// Счётчики побочных событий.
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewLifecycleMetrics создаёт новый экземпляр метрик жизненного цикла.
func NewLifecycleMetrics() *LifecycleMetrics {
	return newLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders created in PENDING status",
		}),
		ordersConfirmed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_confirmed_total",
			Help: "Total number of orders confirmed with stock reserved",
		}),
		ordersShipped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_shipped_total",
			Help: "Total number of orders shipped",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		insufficientStock: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_confirm_insufficient_stock_total",
			Help: "Total number of confirmations rejected due to insufficient stock",
		}),
		invalidTransitions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_invalid_transitions_total",
			Help: "Total number of rejected status transitions",
		}),
		transitionDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_transition_duration_seconds",
			Help:    "Duration of order lifecycle transitions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"event"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
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

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *LifecycleMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderConfirmed увеличивает счётчик подтверждённых заказов.
func (m *LifecycleMetrics) RecordOrderConfirmed() {
	m.ordersConfirmed.Inc()
}

// RecordOrderShipped увеличивает счётчик отгруженных заказов.
func (m *LifecycleMetrics) RecordOrderShipped() {
	m.ordersShipped.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *LifecycleMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordInsufficientStock увеличивает счётчик отказов по нехватке стока.
func (m *LifecycleMetrics) RecordInsufficientStock() {
	m.insufficientStock.Inc()
}

// RecordInvalidTransition увеличивает счётчик отклонённых переходов.
func (m *LifecycleMetrics) RecordInvalidTransition() {
	m.invalidTransitions.Inc()
}

// RecordTransitionDuration записывает время выполнения перехода.
func (m *LifecycleMetrics) RecordTransitionDuration(event string, duration time.Duration) {
	m.transitionDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *LifecycleMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LifecycleMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
