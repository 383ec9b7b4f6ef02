package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.PairingRequest(ResultOK)
	m.PairingRequest(ResultOK)
	m.PairingRequest(ResultInvalid)
	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()
	m.SessionRestarted()
	m.ConnectionClosed("transient")
	m.Upload("0x0", ResultFailed, 20*time.Millisecond)
	m.Upload("gofile", ResultOK, 40*time.Millisecond)
	m.Export(ResultOK)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pairingRequests.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pairingRequests.WithLabelValues(ResultInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionRestarts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionCloses.WithLabelValues("transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("0x0", ResultFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportsTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.uploadDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Export(ResultFailed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `pairlink_exports_total{result="failed"} 1`))
	assert.Contains(t, body, "go_goroutines")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.PairingRequest(ResultOK)
		m.SessionStarted()
		m.SessionEnded()
		m.SessionRestarted()
		m.ConnectionClosed("terminal")
		m.Upload("gofile", ResultOK, time.Second)
		m.Export(ResultOK)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
