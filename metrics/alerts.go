package metrics

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
	AlertBulkExport        AlertType = "bulk_export"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 5
	defaultExportWindow          = 5 * time.Minute
	defaultExportThreshold       = 10
)

// alertWindow tracks sliding window counters for anomaly detection.
type alertWindow struct {
	mu sync.Mutex

	loginFailures  []time.Time
	loginWindow    time.Duration
	loginThreshold int

	exports         []time.Time
	exportWindow    time.Duration
	exportThreshold int

	now     func() time.Time
	alertFn AlertFunc
}

func newAlertWindow(fn AlertFunc) *alertWindow {
	return &alertWindow{
		loginWindow:     defaultLoginFailureWindow,
		loginThreshold:  defaultLoginFailureThreshold,
		exportWindow:    defaultExportWindow,
		exportThreshold: defaultExportThreshold,
		now:             time.Now,
		alertFn:         fn,
	}
}

func (a *alertWindow) recordLoginFailure() {
	if a == nil || a.alertFn == nil {
		return
	}
	a.mu.Lock()
	now := a.now()
	a.loginFailures = trimWindow(append(a.loginFailures, now), now, a.loginWindow)
	var ev *AlertEvent
	if len(a.loginFailures) >= a.loginThreshold {
		ev = &AlertEvent{
			Type:      AlertLoginFailureSpike,
			Message:   "login failure rate exceeds threshold",
			Count:     len(a.loginFailures),
			Threshold: a.loginThreshold,
			Timestamp: now,
		}
		// Reset to avoid repeated alerts within the same spike.
		a.loginFailures = a.loginFailures[:0]
	}
	a.mu.Unlock()
	if ev != nil {
		a.alertFn(*ev)
	}
}

func (a *alertWindow) recordExport() {
	if a == nil || a.alertFn == nil {
		return
	}
	a.mu.Lock()
	now := a.now()
	a.exports = trimWindow(append(a.exports, now), now, a.exportWindow)
	var ev *AlertEvent
	if len(a.exports) >= a.exportThreshold {
		ev = &AlertEvent{
			Type:      AlertBulkExport,
			Message:   "history export rate exceeds threshold",
			Count:     len(a.exports),
			Threshold: a.exportThreshold,
			Timestamp: now,
		}
		a.exports = a.exports[:0]
	}
	a.mu.Unlock()
	if ev != nil {
		a.alertFn(*ev)
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
