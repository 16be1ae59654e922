package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cassiomorais/fintrack/internal/infrastructure/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	metrics := newTestMetrics()

	r := chi.NewRouter()
	r.Use(Metrics(metrics))
	r.Get("/api/v1/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/123", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, 1.0, promtest.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/accounts/{id}", "200")))
}

func TestMetrics_StatusCodes(t *testing.T) {
	for _, code := range []int{http.StatusCreated, http.StatusBadRequest, http.StatusInternalServerError} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			metrics := newTestMetrics()

			r := chi.NewRouter()
			r.Use(Metrics(metrics))
			r.Post("/test", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", nil))

			assert.Equal(t, code, w.Code)
			assert.Equal(t, 1, promtest.CollectAndCount(metrics.HTTPRequestsTotal))
		})
	}
}

func TestMetrics_NoRouter(t *testing.T) {
	metrics := newTestMetrics()

	handler := Metrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, promtest.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/unknown", "200")))
}

func TestStatusWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

	sw.Write([]byte("test"))
	assert.Equal(t, http.StatusOK, sw.statusCode)

	w = httptest.NewRecorder()
	sw = &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
	sw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, sw.statusCode)
	assert.Equal(t, http.StatusCreated, w.Code)
}
