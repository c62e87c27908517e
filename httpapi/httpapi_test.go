package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dannyavrs/encapure/encerr"
	"github.com/dannyavrs/encapure/search"
)

type fakeEngine struct {
	searchResults []search.Result
	searchErr     error
	rerankResults []search.RerankResult
	rerankErr     error
}

func (f *fakeEngine) Search(_ context.Context, _ string, _ int, _ string) ([]search.Result, error) {
	return f.searchResults, f.searchErr
}

func (f *fakeEngine) Rerank(_ context.Context, _ string, _ []string) ([]search.RerankResult, error) {
	return f.rerankResults, f.rerankErr
}

type fakeProbe struct{ ready bool }

func (p fakeProbe) Ready() bool { return p.ready }

func TestSearchRouter_Success(t *testing.T) {
	engine := &fakeEngine{searchResults: []search.Result{
		{Name: "send_message", Description: "send a generic message", Score: 0.9},
	}}
	router := NewRouter(engine, fakeProbe{ready: true}, nil, nil, nil)

	body, _ := json.Marshal(searchRequest{Query: "send message", TopK: 1})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "body = %s", rec.Body.String())
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "send_message", resp.Results[0].Name)
}

func TestSearchRouter_ValidationErrorMapsTo400(t *testing.T) {
	engine := &fakeEngine{searchErr: encerr.Validationf("query must be non-empty")}
	router := NewRouter(engine, fakeProbe{ready: true}, nil, nil, nil)

	body, _ := json.Marshal(searchRequest{Query: "", TopK: 1})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRouter_ResourceErrorMapsTo503(t *testing.T) {
	engine := &fakeEngine{searchErr: encerr.Resourcef(nil, "permit timeout")}
	router := NewRouter(engine, fakeProbe{ready: true}, nil, nil, nil)

	body, _ := json.Marshal(searchRequest{Query: "x", TopK: 1})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchRouter_ObservesDurationAndErrorsByKind(t *testing.T) {
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_search_duration_seconds"})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_search_errors_total"}, []string{"kind"})

	okEngine := &fakeEngine{searchResults: []search.Result{{Name: "x"}}}
	router := NewRouter(okEngine, fakeProbe{ready: true}, nil, duration, errorsTotal)
	body, _ := json.Marshal(searchRequest{Query: "x", TopK: 1})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1, testutil.CollectAndCount(duration))
	var observed dto.Metric
	require.NoError(t, duration.Write(&observed))
	assert.Equal(t, uint64(1), observed.GetHistogram().GetSampleCount())

	failEngine := &fakeEngine{searchErr: encerr.Resourcef(nil, "permit timeout")}
	router = NewRouter(failEngine, fakeProbe{ready: true}, nil, duration, errorsTotal)
	req = httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, float64(1), testutil.ToFloat64(errorsTotal.WithLabelValues("resource")))
}

func TestRerankRouter_Success(t *testing.T) {
	engine := &fakeEngine{rerankResults: []search.RerankResult{{Index: 1, Score: 0.8}, {Index: 0, Score: 0.3}}}
	router := NewRouter(engine, fakeProbe{ready: true}, nil, nil, nil)

	body, _ := json.Marshal(rerankRequest{Query: "x", Documents: []string{"a", "b"}})
	req := httptest.NewRequest(http.MethodPost, "/rerank", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "body = %s", rec.Body.String())
	var resp rerankResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].Index)
}

func TestHealthRouter_AlwaysNoContent(t *testing.T) {
	router := NewRouter(&fakeEngine{}, fakeProbe{ready: false}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReadyRouter_ReflectsProbe(t *testing.T) {
	router := NewRouter(&fakeEngine{}, fakeProbe{ready: false}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "want 503 when not ready")

	router = NewRouter(&fakeEngine{}, fakeProbe{ready: true}, nil, nil, nil)
	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code, "want 204 when ready")
}

func TestNewRouter_CountsRequestsByRouteAndStatus(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_requests_total"}, []string{"route", "method", "status"})
	engine := &fakeEngine{searchResults: []search.Result{{Name: "x"}}}
	router := NewRouter(engine, fakeProbe{ready: true}, counter, nil, nil)

	body, _ := json.Marshal(searchRequest{Query: "x", TopK: 1})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	router.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(counter.WithLabelValues("/search", http.MethodPost, "2xx"))
	assert.Equal(t, float64(1), got)
}
