package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMetricsServesCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	chatMetrics, handler := BuildMetrics(reg)
	require.NotNil(t, chatMetrics)

	chatMetrics.ObserveIntent("greeting")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `jewelry_chat_intents_total{intent="greeting"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
