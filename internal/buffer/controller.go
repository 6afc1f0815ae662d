package buffer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sealer is implemented by the capture tracker: SealPending emits any
// key-down events still awaiting a key-up so the flush batch is complete.
type Sealer interface {
	SealPending()
}

// Controller drives the periodic flush cycle. It owns the flush timeline;
// the capture path only ever appends to the buffer.
type Controller struct {
	buf             *Buffer
	sealer          Sealer
	interval        time.Duration
	shutdownTimeout time.Duration
	log             *zap.Logger
}

func NewController(buf *Buffer, sealer Sealer, interval, shutdownTimeout time.Duration, log *zap.Logger) *Controller {
	return &Controller{
		buf:             buf,
		sealer:          sealer,
		interval:        interval,
		shutdownTimeout: shutdownTimeout,
		log:             log,
	}
}

// Run flushes on a fixed interval and on coalesced buffer-full requests,
// until ctx is cancelled. On cancellation a final bounded-time flush runs to
// completion or fails loudly; it never blocks shutdown indefinitely.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.finalFlush()
			return
		case <-ticker.C:
			c.flush(ctx)
		case <-c.buf.FlushRequests():
			c.flush(ctx)
		}
	}
}

func (c *Controller) flush(ctx context.Context) {
	if c.sealer != nil {
		c.sealer.SealPending()
	}
	if err := c.buf.Flush(ctx); err != nil {
		// Events are preserved in memory; the next cycle retries.
		c.log.Error("Periodic flush failed, keeping events buffered", zap.Error(err))
	}
}

// finalFlush persists whatever is left within the shutdown window. If the
// write cannot complete in time, the unflushed events are counted and
// reported as non-fatal data loss rather than holding up process exit.
func (c *Controller) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer cancel()

	if c.sealer != nil {
		c.sealer.SealPending()
	}
	if err := c.buf.Flush(ctx); err != nil {
		lost := c.buf.markUnflushed()
		c.log.Error("Final flush did not complete, events lost",
			zap.Int("unflushed", lost), zap.Error(err))
		return
	}
	c.log.Info("Final flush complete", zap.Uint64("total_flushed", c.buf.Stats().Flushed))
}
