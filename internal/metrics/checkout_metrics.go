package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты действий для метки result.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultInvalid  = "invalid"
	ResultStale    = "stale"
	ResultError    = "error"
)

// CheckoutMetrics содержит метрики сессий оформления.
type CheckoutMetrics struct {
	actions           *prometheus.CounterVec
	stepTransitions   *prometheus.CounterVec
	staleResponses    *prometheus.CounterVec
	collaboratorCalls *prometheus.HistogramVec
	orders            *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

// NewCheckoutMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer позволяет тестам работать с изолированным реестром.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		actions: register(registerer, "checkout_actions_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_actions_total",
			Help: "Checkout actions dispatched to the state machine by outcome",
		}, []string{"action", "result"})),
		stepTransitions: register(registerer, "checkout_step_transitions_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_step_transitions_total",
			Help: "Wizard step transitions",
		}, []string{"from", "to"})),
		staleResponses: register(registerer, "checkout_stale_responses_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_stale_responses_total",
			Help: "Async responses discarded because a newer request superseded them",
		}, []string{"kind"})),
		collaboratorCalls: register(registerer, "checkout_collaborator_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "checkout_collaborator_duration_seconds",
			Help:    "Duration of calls to external services",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"op", "result"})),
		orders: register(registerer, "checkout_orders_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_orders_total",
			Help: "Orders placed by payment method and payment status",
		}, []string{"method", "status"})),
		activeSessions: register(registerer, "checkout_active_sessions", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "checkout_active_sessions",
			Help: "Checkout sessions started but not completed",
		})),
	}
}

// register возвращает уже зарегистрированный коллектор того же типа при повторной регистрации.
func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// RecordAction учитывает действие и его исход.
func (m *CheckoutMetrics) RecordAction(action, result string) {
	m.actions.WithLabelValues(action, result).Inc()
}

// RecordStepTransition учитывает переход между шагами.
func (m *CheckoutMetrics) RecordStepTransition(from, to string) {
	m.stepTransitions.WithLabelValues(from, to).Inc()
}

// RecordStaleResponse учитывает отброшенный устаревший ответ (lookup или quotes).
func (m *CheckoutMetrics) RecordStaleResponse(kind string) {
	m.staleResponses.WithLabelValues(kind).Inc()
}

// ObserveCollaborator записывает длительность внешнего вызова.
func (m *CheckoutMetrics) ObserveCollaborator(op string, err error, duration time.Duration) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.collaboratorCalls.WithLabelValues(op, result).Observe(duration.Seconds())
}

// RecordOrderPlaced учитывает оформленный заказ.
func (m *CheckoutMetrics) RecordOrderPlaced(method, status string) {
	m.orders.WithLabelValues(method, status).Inc()
	m.activeSessions.Dec()
}

// RecordSessionStarted увеличивает количество активных сессий.
func (m *CheckoutMetrics) RecordSessionStarted() {
	m.activeSessions.Inc()
}

// SetActiveSessions выставляет значение из хранилища при старте сервиса.
func (m *CheckoutMetrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}
