package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhooksReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_received_total",
			Help: "Total number of webhook requests received (count)",
		},
		[]string{"provider"},
	)

	SignatureVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signature_verifications_total",
			Help: "Total number of webhook signature verifications (count)",
		},
		[]string{"provider", "result"},
	)

	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Total number of events processed by outcome (count)",
		},
		[]string{"provider", "status"},
	)

	ProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_processing_duration_ms",
			Help:    "End-to-end event processing duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"provider", "status"},
	)

	LedgerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_ms",
			Help:    "Duration of event ledger operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"operation"},
	)

	ResultCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_hits_total",
			Help: "Total number of result cache lookups by outcome (count)",
		},
		[]string{"status"},
	)

	FilterEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_evaluations_total",
			Help: "Total number of drop-filter evaluations (count)",
		},
		[]string{"provider", "result"},
	)

	AlertsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_published_total",
			Help: "Total number of alert messages published (count)",
		},
		[]string{"status"},
	)

	WorkflowOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_operations_total",
			Help: "Total number of workflow store operations (count)",
		},
		[]string{"operation", "status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"component", "operation"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)
)

func RegisterGatewayMetrics() {
	prometheus.MustRegister(WebhooksReceivedTotal)
	prometheus.MustRegister(SignatureVerificationsTotal)
	prometheus.MustRegister(EventsProcessedTotal)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(LedgerOperationDuration)
	prometheus.MustRegister(ResultCacheHitsTotal)
	prometheus.MustRegister(FilterEvaluationsTotal)
	prometheus.MustRegister(AlertsPublishedTotal)
	prometheus.MustRegister(WorkflowOperationsTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaWriteDuration)
}

func ObserveProcessingDuration(provider, status string, duration time.Duration) {
	ProcessingDuration.WithLabelValues(provider, status).Observe(float64(duration.Milliseconds()))
}

func ObserveLedgerOperation(operation string, duration time.Duration) {
	LedgerOperationDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func IncSignatureVerification(provider, result string) {
	SignatureVerificationsTotal.WithLabelValues(provider, result).Inc()
}

func IncEventProcessed(provider, status string) {
	EventsProcessedTotal.WithLabelValues(provider, status).Inc()
}

func IncKafkaMessagesWritten(topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(topic).Inc()
}

func ObserveKafkaWriteDuration(topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}
