// Package resource provides optional throttling of the memory, concurrency,
// and interconnect bandwidth a rank spends on an operation. A nil Controller
// means no limits; every method tolerates it.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds per-rank resource limits.
type Config struct {
	// StagingLimitBytes caps the memory held in reduce buffers and centered
	// work matrices at any one time. 0 means tracking only, no hard limit.
	StagingLimitBytes int64

	// MaxBackgroundWorkers caps concurrent background jobs such as snapshot
	// uploads. 0 defaults to 1.
	MaxBackgroundWorkers int64

	// InterconnectBytesPerSec caps the bytes per second pushed into
	// collective operations. 0 means unlimited.
	InterconnectBytesPerSec int64
}

// Controller enforces Config. A nil *Controller is valid and enforces
// nothing.
type Controller struct {
	stagingSem  *semaphore.Weighted // nil if unlimited
	stagingUsed atomic.Int64

	bgSem *semaphore.Weighted

	netLimiter *rate.Limiter
}

// NewController creates a Controller for cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.StagingLimitBytes > 0 {
		c.stagingSem = semaphore.NewWeighted(cfg.StagingLimitBytes)
	}

	if cfg.InterconnectBytesPerSec > 0 {
		c.netLimiter = rate.NewLimiter(rate.Limit(cfg.InterconnectBytesPerSec), int(cfg.InterconnectBytesPerSec))
	}

	return c
}

// AcquireStaging reserves staging memory, blocking until it is available or
// ctx is done.
func (c *Controller) AcquireStaging(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.stagingSem != nil {
		if err := c.stagingSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.stagingUsed.Add(bytes)

	return nil
}

// TryAcquireStaging reserves staging memory without blocking, reporting
// whether it succeeded.
func (c *Controller) TryAcquireStaging(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.stagingSem != nil && !c.stagingSem.TryAcquire(bytes) {
		return false
	}

	c.stagingUsed.Add(bytes)

	return true
}

// ReleaseStaging returns previously reserved staging memory.
func (c *Controller) ReleaseStaging(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.stagingSem != nil {
		c.stagingSem.Release(bytes)
	}

	c.stagingUsed.Add(-bytes)
}

// StagingInUse returns the currently reserved staging bytes.
func (c *Controller) StagingInUse() int64 {
	if c == nil {
		return 0
	}

	return c.stagingUsed.Load()
}

// AcquireBackground reserves a background worker slot, blocking while all
// slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}

	return c.bgSem.Acquire(ctx, 1)
}

// TryAcquireBackground reserves a background worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}

	return c.bgSem.TryAcquire(1)
}

// ReleaseBackground returns a background worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}

	c.bgSem.Release(1)
}

// WaitInterconnect blocks until the bandwidth budget admits the given number
// of bytes. Requests larger than the burst are admitted in burst-sized
// pieces.
func (c *Controller) WaitInterconnect(ctx context.Context, bytes int) error {
	if c == nil || c.netLimiter == nil || bytes <= 0 {
		return nil
	}

	burst := c.netLimiter.Burst()

	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}

		if err := c.netLimiter.WaitN(ctx, n); err != nil {
			return err
		}

		bytes -= n
	}

	return nil
}
