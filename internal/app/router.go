// Package app wires middleware and routes into the HTTP handler.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/hanyue-dev/ai-essay-grader/internal/adapter/httpserver"
	"github.com/hanyue-dev/ai-essay-grader/internal/config"
	"github.com/hanyue-dev/ai-essay-grader/internal/observability"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input means any origin.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	apiTimeout := cfg.HTTPRequestTimeout
	if apiTimeout <= 0 {
		apiTimeout = 30 * time.Second
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}
	stdTimeout := httpserver.TimeoutMiddleware(apiTimeout)

	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limit mutating endpoints
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		wr.With(stdTimeout).Post("/v1/grade", srv.SubmitHandler())
		wr.With(stdTimeout).Post("/v1/questions", srv.CreateQuestionHandler())
		// Synchronous grading holds the connection for the full pipeline,
		// so it gets the job budget rather than the API budget.
		wr.With(httpserver.TimeoutMiddleware(jobTimeout)).Post("/v1/grade/custom", srv.CustomHandler())
	})
	// Read-only endpoints
	r.With(stdTimeout).Get("/v1/grade/{id}", srv.StatusHandler())

	// Health and metrics
	r.With(stdTimeout).Get("/healthz", srv.HealthzHandler())
	r.With(stdTimeout).Get("/readyz", srv.ReadyzHandler())
	r.With(stdTimeout).Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
