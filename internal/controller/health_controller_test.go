package controller

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealth(t *testing.T) {
	h := NewHealthController(fakeDB{}, fakeRedis{})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		db     fakeDB
		redis  fakeRedis
		status int
		reason string
	}{
		{"ready", fakeDB{}, fakeRedis{}, http.StatusOK, ""},
		{"database down", fakeDB{err: errors.New("down")}, fakeRedis{}, http.StatusServiceUnavailable, "database unavailable"},
		{"redis down", fakeDB{}, fakeRedis{err: errors.New("down")}, http.StatusServiceUnavailable, "redis unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthController(tt.db, tt.redis).Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.status, w.Code)
			if tt.reason != "" {
				assert.Contains(t, w.Body.String(), tt.reason)
			}
		})
	}
}
