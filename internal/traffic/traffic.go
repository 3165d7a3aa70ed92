// Package traffic keeps sliding windows of weather-upstream outcomes and rate-limit
// denials. /health reads the error rate; the denial count is exported as a gauge.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies a recorded event.
type Outcome uint8

const (
	Success Outcome = iota
	Failure
	Denied
)

// retention bounds how long events are kept regardless of the queried window.
const retention = 5 * time.Minute

var defaultTracker = NewTracker()

// RecordSuccess records a successful weather fetch.
func RecordSuccess() { defaultTracker.Record(Success) }

// RecordError records a failed weather fetch (upstream error, timeout, etc.).
func RecordError() { defaultTracker.Record(Failure) }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.Record(Denied) }

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.Count(Denied, window) }

// ErrorRate returns (errors, successes+errors) within the window.
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears all recorded events. For tests only.
func Reset() { defaultTracker.Reset() }

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker is a time-ordered event log pruned to the retention period.
type Tracker struct {
	mu     sync.Mutex
	events []event
	now    func() time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Record appends an event at the current time.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Count returns how many events of kind o fall within the window ending now.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for _, e := range t.events {
		if e.outcome == o && !e.at.Before(cutoff) {
			n++
		}
	}
	return n
}

// ErrorRate returns failures and successes+failures within the window. Denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	for _, e := range t.events {
		if e.at.Before(cutoff) {
			continue
		}
		switch e.outcome {
		case Failure:
			errors++
			total++
		case Success:
			total++
		}
	}
	return errors, total
}

// Reset drops every recorded event.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// pruneLocked drops events older than retention. Events are appended in time order.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for i < len(t.events) && t.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
