package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveClassification("L0", "rule", time.Millisecond)
	m.ClassifierFailure("timeout")
	m.ModelTokens(1, 2)
	m.ApprovalResolved("approved", time.Second)
	m.ToolCall("executed")
	m.AuditAppend(nil)
	m.NotifyError("webhook")
	m.PendingApprovals(func() int { return 1 })
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveClassification("L2", "rule", time.Millisecond)
	m.ObserveClassification("L2", "rule", time.Millisecond)
	m.ToolCall("denied")
	m.AuditAppend(nil)
	m.AuditAppend(errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.classifications.WithLabelValues("L2", "rule")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditAppends))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditAppendErrors))
}

func TestHandlerExposesPendingGauge(t *testing.T) {
	m := New()
	pending := 3
	m.PendingApprovals(func() int { return pending })
	m.ApprovalResolved("timed_out", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "warden_approvals_pending 3")
	assert.Contains(t, body, `warden_approvals_total{status="timed_out"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
