package monitoring

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargainlabs/dealhound/internal/model"
)

func TestMetrics_ObserveHunt(t *testing.T) {
	m := NewMetrics()

	m.ObserveHunt(model.RunStatusComplete, 12*time.Second, model.RunUsage{
		InputTokens:  1200,
		OutputTokens: 300,
		Cost:         0.0081,
	}, true)
	m.ObserveHunt(model.RunStatusFailed, 3*time.Second, model.RunUsage{
		InputTokens:  400,
		OutputTokens: 50,
		Cost:         0.0019,
	}, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.huntsTotal.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.huntsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.opportunitiesTotal))
	assert.Equal(t, 1600.0, testutil.ToFloat64(m.tokensTotal.WithLabelValues("input")))
	assert.Equal(t, 350.0, testutil.ToFloat64(m.tokensTotal.WithLabelValues("output")))
	assert.InDelta(t, 0.01, testutil.ToFloat64(m.llmCostTotal), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.huntDuration))
}

func TestMetrics_NilReceiverIsNoOp(t *testing.T) {
	var m *Metrics
	m.ObserveHunt(model.RunStatusComplete, time.Second, model.RunUsage{}, true)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveHunt(model.RunStatusComplete, time.Second, model.RunUsage{InputTokens: 10, OutputTokens: 5}, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "dealhound_hunts_total")
	assert.Contains(t, body, "dealhound_tokens_total")
	assert.Contains(t, body, "dealhound_hunt_duration_seconds")
}
