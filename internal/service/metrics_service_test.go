package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordSubmission("accepted")
	m.RecordSubmission("accepted")
	m.RecordSubmission("duplicate")
	m.RecordLogin(true)
	m.RecordLogin(false)
	m.RecordWinnerDraw(false)
	m.RecordDocumentOutcome("cpf", "stored")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.winnerDraws.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documentOutcomes.WithLabelValues("cpf", "stored")))
}

func TestMetricsServiceCacheHitRatio(t *testing.T) {
	m := NewMetricsService()

	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	assert.InDelta(t, 0.75, testutil.ToFloat64(m.cacheHitRatio), 0.0001)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordSubmission("failed")
		m.ObserveHTTPRequest("GET", "/health", 200, time.Millisecond)
		m.RecordCacheOperation(true, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
	assert.NotNil(t, m.Handler())
}
