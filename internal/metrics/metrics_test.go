package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/raaihank/flowpaste/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ObserveMask(privacy.MaskResult{ScanResult: privacy.ScanResult{
		HasPII: true,
		Items: []privacy.Item{
			{Type: privacy.Phone}, {Type: privacy.Phone}, {Type: privacy.Email},
		},
	}})
	m.ObserveRule("collapse_spaces", "ok", 3*time.Millisecond)
	m.ObserveRule("collapse_spaces", "timeout", 60*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PIIDetected.WithLabelValues("Phone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PIIDetected.WithLabelValues("Email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MaskCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RuleRuns.WithLabelValues("collapse_spaces", "timeout")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowpaste_rule_runs_total")
}
