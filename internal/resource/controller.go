package resource

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxConcurrentBuilds bounds concurrent builds. If 0, defaults to 1.
	MaxConcurrentBuilds int64

	// UploadBytesPerSec is the maximum snapshot upload throughput.
	// If 0, unlimited.
	UploadBytesPerSec int64
}

// Controller manages build slots and upload throughput.
type Controller struct {
	cfg    Config
	builds *semaphore.Weighted
	upload *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentBuilds <= 0 {
		cfg.MaxConcurrentBuilds = 1
	}

	c := &Controller{
		cfg:    cfg,
		builds: semaphore.NewWeighted(cfg.MaxConcurrentBuilds),
	}
	if cfg.UploadBytesPerSec > 0 {
		c.upload = rate.NewLimiter(rate.Limit(cfg.UploadBytesPerSec), int(cfg.UploadBytesPerSec))
	}
	return c
}

// AcquireBuild reserves a build slot, blocking until one is free.
func (c *Controller) AcquireBuild(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.builds.Acquire(ctx, 1)
}

// TryAcquireBuild reserves a build slot without blocking.
func (c *Controller) TryAcquireBuild() bool {
	if c == nil {
		return true
	}
	return c.builds.TryAcquire(1)
}

// ReleaseBuild releases a build slot.
func (c *Controller) ReleaseBuild() {
	if c == nil {
		return
	}
	c.builds.Release(1)
}

// UploadLimit returns the configured upload limit in bytes per second (0 if unlimited).
func (c *Controller) UploadLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.UploadBytesPerSec
}

// AcquireUpload waits until the upload limit allows n bytes. Requests larger than
// the bucket are split.
func (c *Controller) AcquireUpload(ctx context.Context, n int) error {
	if c == nil || c.upload == nil {
		return nil
	}
	burst := c.upload.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := c.upload.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// TryAcquireUpload takes n upload tokens without blocking.
func (c *Controller) TryAcquireUpload(n int) bool {
	if c == nil || c.upload == nil {
		return true
	}
	return c.upload.AllowN(time.Now(), n)
}
