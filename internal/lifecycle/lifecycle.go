package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health reports shutting-down and new API requests get 503 while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Closers releases backing resources (store connections, cache clients) in
// reverse registration order once the HTTP server has drained.
type Closers struct {
	mu    sync.Mutex
	items []closer
}

// Register adds fn under name. A nil fn is ignored.
func (c *Closers) Register(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.items = append(c.items, closer{name: name, fn: fn})
	c.mu.Unlock()
}

// CloseAll runs every registered closer, last registered first, and returns the joined errors.
// Each closer runs once; a second CloseAll is a no-op.
func (c *Closers) CloseAll(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.mu.Lock()
	items := c.items
	c.items = nil
	c.mu.Unlock()

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if err := it.fn(ctx); err != nil {
			logger.Warn("close failed", zap.String("resource", it.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", it.name, err))
			continue
		}
		logger.Info("closed", zap.String("resource", it.name))
	}
	return errors.Join(errs...)
}
