package http

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kjstillabower/irrigation-advisor/internal/observability"
)

// InFlightTracker counts requests being served so shutdown can wait for them.
// When gauge is set it mirrors the count.
type InFlightTracker struct {
	count atomic.Int64
	gauge prometheus.Gauge
}

// Start records a request beginning and returns the func that records its end.
func (t *InFlightTracker) Start() (done func()) {
	t.count.Add(1)
	if t.gauge != nil {
		t.gauge.Inc()
	}
	return func() {
		t.count.Add(-1)
		if t.gauge != nil {
			t.gauge.Dec()
		}
	}
}

func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// WaitForZero blocks until no requests are in flight or ctx is done, polling every checkInterval.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	if checkInterval <= 0 {
		checkInterval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for t.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

var globalInFlightTracker = &InFlightTracker{gauge: observability.HTTPRequestsInFlight}

// InFlightCount returns the number of API requests currently being served.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// WaitForInFlight blocks until in-flight requests reach zero or ctx is done.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return globalInFlightTracker.WaitForZero(ctx, checkInterval)
}
