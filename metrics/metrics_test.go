package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	r := New()

	r.ObserveRequest("login", nil, 10*time.Millisecond)
	r.ObserveRequest("login", errors.New("boom"), time.Millisecond)
	r.ObserveRequest("upload", nil, time.Millisecond)
	r.AddUploaded(3, 2)
	r.ObserveExport("xlsx", nil)
	r.ObserveExport("pdf", errors.New("boom"))
	r.ObserveTransition("logout")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("login", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("login", OutcomeFailure)))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.uploadedFiles.WithLabelValues("processed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.uploadedFiles.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.exports.WithLabelValues("pdf", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("logout")))
}

func TestRecorderHandler(t *testing.T) {
	r := New()
	r.ObserveTransition("login_success")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `cardledger_session_transitions_total{kind="login_success"} 1`)
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveRequest("login", nil, time.Second)
	r.AddUploaded(1, 1)
	r.ObserveExport("xlsx", nil)
	r.ObserveTransition("logout")
	r.ObserveLoginFailure()
	assert.Nil(t, r.Registry())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func collectAlerts() (AlertFunc, func() []AlertEvent) {
	var mu sync.Mutex
	var alerts []AlertEvent
	return func(e AlertEvent) {
			mu.Lock()
			alerts = append(alerts, e)
			mu.Unlock()
		}, func() []AlertEvent {
			mu.Lock()
			defer mu.Unlock()
			return append([]AlertEvent(nil), alerts...)
		}
}

func TestLoginFailureSpikeAlert(t *testing.T) {
	fn, alerts := collectAlerts()
	r := New(WithAlertFunc(fn))

	for i := 0; i < defaultLoginFailureThreshold-1; i++ {
		r.ObserveLoginFailure()
	}
	assert.Empty(t, alerts(), "no alert below threshold")

	r.ObserveLoginFailure()
	got := alerts()
	require.Len(t, got, 1)
	assert.Equal(t, AlertLoginFailureSpike, got[0].Type)
	assert.Equal(t, defaultLoginFailureThreshold, got[0].Count)

	// Window was reset.
	r.ObserveLoginFailure()
	assert.Len(t, alerts(), 1)
}

func TestBulkExportAlert(t *testing.T) {
	fn, alerts := collectAlerts()
	w := newAlertWindow(fn)
	w.exportThreshold = 3

	w.recordExport()
	w.recordExport()
	assert.Empty(t, alerts())

	w.recordExport()
	got := alerts()
	require.Len(t, got, 1)
	assert.Equal(t, AlertBulkExport, got[0].Type)
	assert.Equal(t, 3, got[0].Count)
}

func TestFailedExportDoesNotCountTowardAlert(t *testing.T) {
	fn, alerts := collectAlerts()
	r := New(WithAlertFunc(fn))
	r.alerts.exportThreshold = 1

	r.ObserveExport("xlsx", errors.New("boom"))
	assert.Empty(t, alerts())
	r.ObserveExport("xlsx", nil)
	assert.Len(t, alerts(), 1)
}

func TestSlidingWindowExpiry(t *testing.T) {
	fn, alerts := collectAlerts()
	w := newAlertWindow(fn)
	w.loginThreshold = 3
	w.loginWindow = time.Minute

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.recordLoginFailure()
	w.recordLoginFailure()
	now = now.Add(2 * time.Minute)
	w.recordLoginFailure()

	assert.Empty(t, alerts(), "old failures fell out of the window")
}

func TestNoAlertWithoutCallback(t *testing.T) {
	w := newAlertWindow(nil)
	w.recordLoginFailure()
	w.recordExport()
	var nilWindow *alertWindow
	nilWindow.recordLoginFailure()
}
