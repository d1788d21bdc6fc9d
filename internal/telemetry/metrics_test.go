package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.AuthEvent("login", "success")
	m.AuthEvent("login", "success")
	m.TokenReuse()
	m.Transition("delete", "success")

	require.Equal(t, 2.0, testutil.ToFloat64(m.authEvents.WithLabelValues("login", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tokenReuse))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "litshare_literature_transitions_total"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AuthEvent("login", "failure")
	m.TokenReuse()
	m.Transition("restore", "success")
	require.Nil(t, m.Registry())
}
