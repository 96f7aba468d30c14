package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes request latency by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// OracleRequestsTotal counts Oracle calls by operation and outcome.
	OracleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_requests_total",
			Help: "Total number of Oracle calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	// OracleRequestDuration observes Oracle call latency by operation.
	OracleRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_request_duration_seconds",
			Help:    "Oracle call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)
	// OraclePromptTokens observes prompt token counts per operation.
	OraclePromptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_prompt_tokens",
			Help:    "Prompt token count per Oracle call",
			Buckets: []float64{128, 256, 512, 1024, 2048, 4096, 8192},
		},
		[]string{"operation"},
	)

	// JobsSubmittedTotal counts grading jobs submitted.
	JobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grading_jobs_submitted_total",
			Help: "Total number of grading jobs submitted",
		},
	)
	// JobsProcessing gauges jobs currently running.
	JobsProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grading_jobs_processing",
			Help: "Number of grading jobs currently processing",
		},
	)
	// JobsCompletedTotal counts jobs that reached completed.
	JobsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grading_jobs_completed_total",
			Help: "Total number of grading jobs completed",
		},
	)
	// JobsFailedTotal counts jobs that reached error.
	JobsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grading_jobs_failed_total",
			Help: "Total number of grading jobs that ended in error",
		},
	)

	// HitRateHistogram observes the fraction of scoring points credited.
	HitRateHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grading_hit_rate",
			Help:    "Distribution of scoring-point hit rate [0,1]",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
	// ScoreRatioHistogram observes total_score/max_score per completed job.
	ScoreRatioHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grading_score_ratio",
			Help:    "Distribution of total_score/max_score [0,1]",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
)

// InitMetrics registers all Prometheus collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(OracleRequestsTotal)
	prometheus.MustRegister(OracleRequestDuration)
	prometheus.MustRegister(OraclePromptTokens)
	prometheus.MustRegister(JobsSubmittedTotal)
	prometheus.MustRegister(JobsProcessing)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(HitRateHistogram)
	prometheus.MustRegister(ScoreRatioHistogram)
}

// StartJob records a job entering the processing state.
func StartJob() { JobsProcessing.Inc() }

// CompleteJob records a job reaching the completed state.
func CompleteJob() {
	JobsProcessing.Dec()
	JobsCompletedTotal.Inc()
}

// FailJob records a job reaching the error state.
func FailJob() {
	JobsProcessing.Dec()
	JobsFailedTotal.Inc()
}

// ObserveResult records outcome distributions for a completed job.
func ObserveResult(hitRate, totalScore, maxScore float64) {
	HitRateHistogram.Observe(hitRate)
	if maxScore > 0 {
		ScoreRatioHistogram.Observe(totalScore / maxScore)
	}
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}
