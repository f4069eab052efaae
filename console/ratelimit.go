package console

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// lockoutPolicy decides how long an account is held back after a run of
// failed sign-ins.
type lockoutPolicy struct {
	// Threshold is the number of consecutive failures that starts a lockout.
	Threshold int
	// Base is the first lockout; each further failure doubles it.
	Base time.Duration
	// Ceiling caps the lockout.
	Ceiling time.Duration
	// Forget drops a failure run this long after its last failure.
	Forget time.Duration
}

var defaultLockout = lockoutPolicy{
	Threshold: 5,
	Base:      time.Minute,
	Ceiling:   15 * time.Minute,
	Forget:    time.Hour,
}

// backoff returns the lockout owed after failures consecutive failures,
// zero while the run is below the threshold.
func (p lockoutPolicy) backoff(failures int) time.Duration {
	over := failures - p.Threshold
	if over < 0 {
		return 0
	}
	d := p.Base
	for ; over > 0 && d < p.Ceiling; over-- {
		d *= 2
	}
	return min(d, p.Ceiling)
}

// failureRun is the sign-in history of one account since its last success.
type failureRun struct {
	count int
	last  time.Time
}

// signInThrottle holds back console sign-ins for accounts with repeated
// credential failures. Accounts are keyed by a hash of the normalized
// username so no usernames are retained.
type signInThrottle struct {
	policy lockoutPolicy
	clock  func() time.Time

	mu   sync.Mutex
	runs map[string]*failureRun
}

func newSignInThrottle(policy lockoutPolicy, clock func() time.Time) *signInThrottle {
	if clock == nil {
		clock = time.Now
	}
	return &signInThrottle{policy: policy, clock: clock, runs: make(map[string]*failureRun)}
}

func accountKey(username string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(username))))
	return hex.EncodeToString(sum[:])
}

// wait returns how long username must wait before another attempt; zero
// means the attempt may proceed.
func (t *signInThrottle) wait(username string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := accountKey(username)
	run, ok := t.runs[key]
	if !ok {
		return 0
	}
	now := t.clock()
	if now.Sub(run.last) > t.policy.Forget {
		delete(t.runs, key)
		return 0
	}
	until := run.last.Add(t.policy.backoff(run.count))
	if !now.Before(until) {
		return 0
	}
	return until.Sub(now)
}

func (t *signInThrottle) failed(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := accountKey(username)
	run, ok := t.runs[key]
	if !ok {
		run = &failureRun{}
		t.runs[key] = run
	}
	run.count++
	run.last = t.clock()
}

func (t *signInThrottle) succeeded(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, accountKey(username))
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, "too many failed login attempts; try again later")
}

// retryAfterString rounds d up to whole seconds, at least one.
func retryAfterString(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	return strconv.Itoa(max(secs, 1))
}
