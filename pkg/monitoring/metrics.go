package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics interface defines monitoring operations
type Metrics interface {
	IncrementCounter(name string, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
	RecordDuration(name string, start time.Time, labels map[string]string)
}

// PrometheusMetrics implements Metrics using Prometheus
type PrometheusMetrics struct {
	registry *prometheus.Registry
	counters map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges   map[string]*prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	
	pm := &PrometheusMetrics{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}

	// Register default metrics
	pm.registerDefaultMetrics()

	return pm
}

// registerDefaultMetrics registers the estimator's business metrics.
func (pm *PrometheusMetrics) registerDefaultMetrics() {
	// Estimator business metrics
	pm.counters["ape_predictions_total"] = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ape_predictions_total",
			Help: "Total number of predict() calls, by task state",
		},
		[]string{"task_name", "state"}, // state: cold_start, calibrating, learning
	)

	pm.gauges["ape_chosen_parallelism"] = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ape_chosen_parallelism",
			Help: "Most recently predicted degree of parallelism (s) for a task",
		},
		[]string{"task_name"},
	)

	pm.histograms["ape_predict_duration_seconds"] = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ape_predict_duration_seconds",
			Help:    "Wall time spent inside Estimator.Predict, including GP fit",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"task_name"},
	)

	pm.counters["ape_feedback_total"] = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ape_feedback_total",
			Help: "Total number of report()/feedback calls, by outcome",
		},
		[]string{"task_name", "outcome"}, // outcome: committed, stale_retry, exhausted, not_found
	)

	pm.gauges["ape_p_obs"] = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ape_p_obs",
			Help: "Current Amdahl parallelizable-fraction estimate for a task",
		},
		[]string{"task_name"},
	)

	pm.gauges["ape_k_exponent"] = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ape_k_exponent",
			Help: "Current input-scaling exponent estimate for a task",
		},
		[]string{"task_name"},
	)

	pm.histograms["ape_residual_seconds"] = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ape_residual_seconds",
			Help:    "Observed minus Amdahl-theoretical duration per completed run",
			Buckets: []float64{-60, -10, -1, 0, 1, 10, 60, 300},
		},
		[]string{"task_name"},
	)

	// Register all metrics
	for _, counter := range pm.counters {
		pm.registry.MustRegister(counter)
	}
	for _, histogram := range pm.histograms {
		pm.registry.MustRegister(histogram)
	}
	for _, gauge := range pm.gauges {
		pm.registry.MustRegister(gauge)
	}
}

// IncrementCounter increments a counter metric
func (pm *PrometheusMetrics) IncrementCounter(name string, labels map[string]string) {
	if counter, exists := pm.counters[name]; exists {
		counter.With(labels).Inc()
	}
}

// RecordHistogram records a value in a histogram metric
func (pm *PrometheusMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	if histogram, exists := pm.histograms[name]; exists {
		histogram.With(labels).Observe(value)
	}
}

// SetGauge sets a gauge metric value
func (pm *PrometheusMetrics) SetGauge(name string, value float64, labels map[string]string) {
	if gauge, exists := pm.gauges[name]; exists {
		gauge.With(labels).Set(value)
	}
}

// RecordDuration records the duration since start time
func (pm *PrometheusMetrics) RecordDuration(name string, start time.Time, labels map[string]string) {
	duration := time.Since(start).Seconds()
	pm.RecordHistogram(name, duration, labels)
}

// Handler returns the Prometheus metrics HTTP handler
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// EstimatorMetrics provides estimator-domain-specific metrics
type EstimatorMetrics struct {
	metrics Metrics
}

// NewEstimatorMetrics creates a new estimator metrics instance
func NewEstimatorMetrics(metrics Metrics) *EstimatorMetrics {
	return &EstimatorMetrics{metrics: metrics}
}

// RecordPrediction records a predict() call and the chosen parallelism.
func (em *EstimatorMetrics) RecordPrediction(taskName, state string, s int, start time.Time) {
	em.metrics.IncrementCounter("ape_predictions_total", map[string]string{
		"task_name": taskName,
		"state":     state,
	})
	em.metrics.SetGauge("ape_chosen_parallelism", float64(s), map[string]string{
		"task_name": taskName,
	})
	em.metrics.RecordDuration("ape_predict_duration_seconds", start, map[string]string{
		"task_name": taskName,
	})
}

// RecordFeedback records the outcome of a feedback/report call.
func (em *EstimatorMetrics) RecordFeedback(taskName, outcome string) {
	em.metrics.IncrementCounter("ape_feedback_total", map[string]string{
		"task_name": taskName,
		"outcome":   outcome,
	})
}

// UpdateModelGauges publishes the task's latest learned parameters.
func (em *EstimatorMetrics) UpdateModelGauges(taskName string, pObs, kExponent float64) {
	em.metrics.SetGauge("ape_p_obs", pObs, map[string]string{"task_name": taskName})
	em.metrics.SetGauge("ape_k_exponent", kExponent, map[string]string{"task_name": taskName})
}

// RecordResidual records the observed-minus-theoretical duration for a run.
func (em *EstimatorMetrics) RecordResidual(taskName string, residual float64) {
	em.metrics.RecordHistogram("ape_residual_seconds", residual, map[string]string{
		"task_name": taskName,
	})
}

// HealthChecker provides health checking functionality
type HealthChecker struct {
	checks map[string]HealthCheck
}

// HealthCheck represents a health check function
type HealthCheck func(ctx context.Context) error

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // healthy, unhealthy
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// OverallHealth represents the overall health of the system
type OverallHealth struct {
	Status string          `json:"status"`
	Checks []HealthStatus  `json:"checks"`
	Uptime string          `json:"uptime"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
	}
}

// AddCheck adds a health check
func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	hc.checks[name] = check
}

// CheckHealth performs all health checks
func (hc *HealthChecker) CheckHealth(ctx context.Context) *OverallHealth {
	var checks []HealthStatus
	overallHealthy := true

	for name, check := range hc.checks {
		start := time.Now()
		err := check(ctx)
		latency := time.Since(start)

		status := HealthStatus{
			Name:    name,
			Latency: latency.String(),
		}

		if err != nil {
			status.Status = "unhealthy"
			status.Message = err.Error()
			overallHealthy = false
		} else {
			status.Status = "healthy"
		}

		checks = append(checks, status)
	}

	overallStatus := "healthy"
	if !overallHealthy {
		overallStatus = "unhealthy"
	}

	return &OverallHealth{
		Status: overallStatus,
		Checks: checks,
		Uptime: "running", // constant; process uptime is not tracked
	}
}

