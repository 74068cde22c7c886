package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCountersAndHandler(t *testing.T) {
	m := New()
	m.RunStarted("full")
	m.RunFinished("full", "completed")
	m.StageFailed("enrichment")
	m.StageFailed("enrichment")
	m.ObserveDispatch("create_listing", "timeout")
	m.SetPending(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsStarted.WithLabelValues("full")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageErrors.WithLabelValues("enrichment")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pendingTasks))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `agent_bridge_dispatches_total{outcome="timeout",type="create_listing"} 1`) {
		t.Fatalf("dispatch counter missing from exposition:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RunStarted("full")
	m.RunFinished("full", "failed")
	m.StageFailed("listing")
	m.ObserveDispatch("ping", "delivered")
	m.SetPending(1)
}
