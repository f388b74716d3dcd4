// Package traffic keeps sliding windows of request outcomes and derives the
// service health condition from them.
package traffic

import (
	"sync"
	"time"
)

// retention bounds how long outcomes are kept regardless of the query window.
const retention = 30 * time.Minute

var defaultTracker = NewTracker()

// Default returns the process-wide tracker fed by the HTTP layer.
func Default() *Tracker { return defaultTracker }

// RecordSuccess records a dashboard request that was served.
func RecordSuccess() { defaultTracker.RecordSuccess() }

// RecordError records a dashboard request that failed on upstream or build errors.
func RecordError() { defaultTracker.RecordError() }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.RecordDenied() }

// RequestCount returns successes, errors and denials within the window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// DenialCount returns denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.DenialCount(window) }

// ErrorRate returns (errors, successes+errors) within the window.
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears the process-wide tracker.
func Reset() { defaultTracker.Reset() }

// Tracker maintains timestamps of request outcomes by kind.
type Tracker struct {
	mu        sync.Mutex
	now       func() time.Time
	successes []time.Time
	errors    []time.Time
	denials   []time.Time
}

// NewTracker returns an empty tracker on the wall clock.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

func (t *Tracker) RecordSuccess() { t.record(&t.successes) }

func (t *Tracker) RecordError() { t.record(&t.errors) }

func (t *Tracker) RecordDenied() { t.record(&t.denials) }

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.successes, cutoff) + countSince(t.errors, cutoff) + countSince(t.denials, cutoff)
}

func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.denials, t.now().Add(-window))
}

// ErrorRate excludes denials from both counts.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errors = countSince(t.errors, cutoff)
	return errors, errors + countSince(t.successes, cutoff)
}

// ClearErrors drops recorded errors, leaving successes and denials.
func (t *Tracker) ClearErrors() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = nil
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes = nil
	t.errors = nil
	t.denials = nil
}

// countSince counts timestamps not before cutoff. Slices are in append order.
func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for i := len(times) - 1; i >= 0 && !times[i].Before(cutoff); i-- {
		n++
	}
	return n
}

// pruneLocked drops timestamps older than retention. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successes)
	prune(&t.errors)
	prune(&t.denials)
}
