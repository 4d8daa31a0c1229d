package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Sale metrics
	SalesTotal           *prometheus.CounterVec
	SaleDuration         *prometheus.HistogramVec
	ActiveSales          prometheus.Gauge
	AmountCollectedCents *prometheus.CounterVec
	StabilizationCutoffs prometheus.Counter

	// Coin metrics
	CoinPulses prometheus.Counter

	// Oracle metrics
	OraclePolls *prometheus.CounterVec

	// Display metrics
	DisplayUpdates *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Stream metrics
	StreamMessagesProcessed *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		SalesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sales_total",
				Help:      "Total number of settled sales by payment method and result",
			},
			[]string{"method", "result"},
		),
		SaleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sale_duration_seconds",
				Help:      "Time from sale request to settlement in seconds",
				Buckets:   []float64{1, 5, 10, 20, 30, 60, 90, 120, 150},
			},
			[]string{"method"},
		),
		ActiveSales: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sales",
				Help:      "Number of sales currently awaiting payment",
			},
		),
		AmountCollectedCents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "amount_collected_cents_total",
				Help:      "Total amount collected in cents",
			},
			[]string{"method"},
		),
		StabilizationCutoffs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "coin_stabilization_cutoffs_total",
				Help:      "Coin sales whose quiet-period wait hit the hard deadline",
			},
		),
		CoinPulses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "coin_pulses_total",
				Help:      "Total number of coin counter pulses received",
			},
		),
		OraclePolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oracle_polls_total",
				Help:      "Total number of payment notification queries",
			},
			[]string{"operation", "result"},
		),
		DisplayUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "display_updates_total",
				Help:      "Total number of customer display pushes",
			},
			[]string{"view", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 120, 180},
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
		StreamMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_messages_processed_total",
				Help:      "Total number of sale stream messages processed",
			},
			[]string{"stream", "status"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.SalesTotal,
		m.SaleDuration,
		m.ActiveSales,
		m.AmountCollectedCents,
		m.StabilizationCutoffs,
		m.CoinPulses,
		m.OraclePolls,
		m.DisplayUpdates,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.StreamMessagesProcessed,
	)

	return m
}
