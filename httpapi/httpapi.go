// Package httpapi is the HTTP collaborator spec.md §6 calls "out of
// scope" for the core but names the contracts for: a chi router exposing
// /search, /rerank, /health, /ready, and /metrics.
//
// Grounded on stacklok-toolhive's pkg/api/v1 router-per-resource style
// (each resource gets its own chi.Router constructor returning
// http.Handler) and its healthcheck.go shape for /health.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dannyavrs/encapure/encerr"
	"github.com/dannyavrs/encapure/search"
)

// SearchAPI is the subset of search.Engine the router needs, kept as an
// interface so handlers are testable without a full inference stack.
type SearchAPI interface {
	Search(ctx context.Context, query string, topK int, agentDescription string) ([]search.Result, error)
	Rerank(ctx context.Context, query string, documents []string) ([]search.RerankResult, error)
}

// ReadinessProbe reports whether the service has finished warmup.
type ReadinessProbe interface {
	Ready() bool
}

// NewRouter assembles the full chi router: /search, /rerank, /health,
// /ready, /metrics, layering chi's request-id/recoverer/timeout
// middleware the way the teacher's services do. requestsTotal, if
// non-nil, is incremented once per request with the matched route
// pattern, method, and response status class as labels. searchDuration
// and searchErrors, if non-nil, observe every /search call's latency and
// count its failures by encerr.Kind.
func NewRouter(engine SearchAPI, probe ReadinessProbe, requestsTotal *prometheus.CounterVec, searchDuration prometheus.Histogram, searchErrors *prometheus.CounterVec) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if requestsTotal != nil {
		r.Use(countRequests(requestsTotal))
	}

	r.Mount("/search", SearchRouter(engine, searchDuration, searchErrors))
	r.Mount("/rerank", RerankRouter(engine))
	r.Mount("/health", HealthRouter())
	r.Mount("/ready", ReadyRouter(probe))
	r.Mount("/metrics", promhttp.Handler())
	return r
}

// SearchRouter exposes POST /search: spec.md §6 "Inbound search
// contract". duration and errorsTotal may be nil, in which case the
// corresponding observation is skipped.
func SearchRouter(engine SearchAPI, duration prometheus.Histogram, errorsTotal *prometheus.CounterVec) http.Handler {
	routes := &searchRoutes{engine: engine, duration: duration, errorsTotal: errorsTotal}
	r := chi.NewRouter()
	r.Post("/", routes.postSearch)
	return r
}

type searchRoutes struct {
	engine      SearchAPI
	duration    prometheus.Histogram
	errorsTotal *prometheus.CounterVec
}

type searchRequest struct {
	Query            string `json:"query"`
	TopK             int    `json:"top_k"`
	AgentDescription string `json:"agent_description,omitempty"`
}

type searchResultDTO struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Score       float32 `json:"score"`
}

type searchResponse struct {
	Results []searchResultDTO `json:"results"`
}

func (s *searchRoutes) postSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, encerr.Validationf("search: malformed request body: %v", err))
		return
	}

	start := time.Now()
	results, err := s.engine.Search(r.Context(), req.Query, req.TopK, req.AgentDescription)
	if s.duration != nil {
		s.duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.errorsTotal != nil {
			s.errorsTotal.WithLabelValues(encerr.KindOf(err).String()).Inc()
		}
		writeError(w, err)
		return
	}

	dtos := make([]searchResultDTO, len(results))
	for i, res := range results {
		dtos[i] = searchResultDTO{Name: res.Name, Description: res.Description, Score: res.Score}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: dtos})
}

// RerankRouter exposes POST /rerank: spec.md §6 "Inbound rerank
// contract" (optional).
func RerankRouter(engine SearchAPI) http.Handler {
	routes := &rerankRoutes{engine: engine}
	r := chi.NewRouter()
	r.Post("/", routes.postRerank)
	return r
}

type rerankRoutes struct {
	engine SearchAPI
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResultDTO struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

type rerankResponse struct {
	Results []rerankResultDTO `json:"results"`
}

func (s *rerankRoutes) postRerank(w http.ResponseWriter, r *http.Request) {
	var req rerankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, encerr.Validationf("rerank: malformed request body: %v", err))
		return
	}

	results, err := s.engine.Rerank(r.Context(), req.Query, req.Documents)
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]rerankResultDTO, len(results))
	for i, res := range results {
		dtos[i] = rerankResultDTO{Index: res.Index, Score: res.Score}
	}
	writeJSON(w, http.StatusOK, rerankResponse{Results: dtos})
}

// HealthRouter exposes GET /health: a liveness probe that never depends
// on warmup state, mirroring stacklok-toolhive's healthcheck.go.
func HealthRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// ReadyRouter exposes GET /ready: a readiness probe gated on probe.Ready()
// (spec.md §4.1 "Warmup").
func ReadyRouter(probe ReadinessProbe) http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		if probe == nil || !probe.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// countRequests wraps the response writer to capture the status code,
// matching knoguchi-rag's requestLoggingMiddleware shape but feeding a
// Prometheus counter instead of a log line. The route label uses chi's
// matched pattern (not the raw path) so /search and /rerank don't
// fragment into one series per request.
func countRequests(counter *prometheus.CounterVec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			statusClass := strconv.Itoa(ww.Status()/100) + "xx"
			counter.WithLabelValues(route, r.Method, statusClass).Inc()
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps an encerr.Kind to the HTTP status spec.md §7
// "Propagation policy" names: validation → client error, model/
// persistence → server error, resource → overloaded.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch encerr.KindOf(err) {
	case encerr.KindValidation:
		status = http.StatusBadRequest
	case encerr.KindResource:
		status = http.StatusServiceUnavailable
	case encerr.KindModel, encerr.KindPersistence:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
