package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		wantChecks map[string]string
	}{
		{"no dependencies", nil, http.StatusOK, map[string]string{}},
		{"all up", map[string]HealthCheck{"database": ok, "redis": ok}, http.StatusOK,
			map[string]string{"database": "ok", "redis": "ok"}},
		{"one down", map[string]HealthCheck{"database": ok, "redis": down}, http.StatusServiceUnavailable,
			map[string]string{"database": "ok", "redis": "error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("test")
			for name, check := range tt.checks {
				h.AddCheck(name, check)
			}
			c, w := newTestContext(http.MethodGet, "/health")
			h.Health(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body struct {
				Status  string            `json:"status"`
				Version string            `json:"version"`
				Checks  map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "test", body.Version)
			assert.Equal(t, tt.wantChecks, body.Checks)
		})
	}
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler("test").AddCheck("database", func(context.Context) error {
		return errors.New("never called")
	})
	c, w := newTestContext(http.MethodGet, "/health/live")
	h.Liveness(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alive"`)
}
