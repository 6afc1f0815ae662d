// Package buffer implements the bounded capture buffer and its periodic
// flush cycle. Record never blocks on durable I/O: it appends under a
// short-held mutex, and flushes hand batches to storage on their own
// goroutine, at most one in flight.
package buffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"keyflow/internal/event"
	"keyflow/internal/storage"
)

// Stats is a point-in-time snapshot of buffer activity, surfaced over IPC.
type Stats struct {
	Recorded  uint64    `json:"recorded"`
	Flushed   uint64    `json:"flushed"`
	Buffered  int       `json:"buffered"`
	Evicted   uint64    `json:"evicted"`
	Unflushed int       `json:"unflushed"` // events abandoned by a timed-out final flush
	LastFlush time.Time `json:"last_flush"`
	LastError string    `json:"last_error,omitempty"`
}

// Buffer is the bounded in-memory keystroke buffer between the capture path
// and durable storage.
//
// While a flush is in flight the swapped-out batch is owned by the flusher;
// concurrent Record calls land in a staging slice that is merged back when
// the flush completes, so no event is written twice or dropped. Capacity may
// be transiently overshot while flushing is healthy; the oldest unflushed
// events are evicted only when the buffer is full and the last flush failed.
type Buffer struct {
	mu      sync.Mutex // guards all fields below
	flushMu sync.Mutex // serializes flushes

	primary []event.Keystroke
	staging []event.Keystroke

	capacity int
	inFlight bool
	failing  bool

	recorded  uint64
	flushed   uint64
	evicted   uint64
	unflushed int
	lastFlush time.Time
	lastErr   error

	kick  chan struct{}
	store storage.Storage
	log   *zap.Logger
}

func New(store storage.Storage, capacity int, log *zap.Logger) *Buffer {
	return &Buffer{
		primary:  make([]event.Keystroke, 0, capacity),
		capacity: capacity,
		kick:     make(chan struct{}, 1),
		store:    store,
		log:      log,
	}
}

// Record appends one keystroke. It is safe to call concurrently with Flush
// and never waits on storage.
func (b *Buffer) Record(e event.Keystroke) {
	b.mu.Lock()
	b.recorded++
	if b.inFlight {
		b.staging = append(b.staging, e)
	} else {
		if len(b.primary) >= b.capacity && b.failing {
			// Last resort: storage is failing and the buffer is full.
			b.primary = b.primary[1:]
			b.evicted++
		}
		b.primary = append(b.primary, e)
	}
	full := len(b.primary)+len(b.staging) >= b.capacity
	b.mu.Unlock()

	if full {
		b.requestFlush()
	}
}

// requestFlush asks the controller for an out-of-cycle flush. Requests are
// coalesced; a request while one is pending is a no-op.
func (b *Buffer) requestFlush() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// FlushRequests is the coalesced flush-request channel consumed by the
// controller.
func (b *Buffer) FlushRequests() <-chan struct{} { return b.kick }

// Flush writes all buffered, not-yet-persisted events to storage as one
// atomic append and clears them from memory. An empty buffer is a no-op. A
// failed write is retried once; if the retry also fails the events are
// restored to the buffer and the error returned. At most one flush runs at a
// time; a concurrent caller waits for the previous flush, never queues.
func (b *Buffer) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.primary) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.primary
	b.primary = make([]event.Keystroke, 0, b.capacity)
	b.inFlight = true
	b.mu.Unlock()

	err := b.store.AppendBatch(ctx, batch)
	if err != nil {
		b.log.Warn("Durable write failed, retrying once",
			zap.Int("batch_size", len(batch)), zap.Error(err))
		err = b.store.AppendBatch(ctx, batch)
	}

	b.mu.Lock()
	b.inFlight = false
	if err != nil {
		// Keep everything: the failed batch goes back to the front, in
		// original order, ahead of anything staged meanwhile.
		b.failing = true
		b.lastErr = err
		b.primary = append(batch, b.staging...)
		b.staging = nil
		b.mu.Unlock()
		return fmt.Errorf("flush of %d events failed after retry: %w", len(batch), err)
	}
	b.failing = false
	b.lastErr = nil
	b.flushed += uint64(len(batch))
	b.lastFlush = time.Now()
	b.primary = append(b.staging, b.primary...)
	b.staging = nil
	b.mu.Unlock()
	return nil
}

// Len returns the number of buffered, not-yet-persisted events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.primary) + len(b.staging)
}

// markUnflushed records events abandoned by a timed-out final flush.
func (b *Buffer) markUnflushed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unflushed = len(b.primary) + len(b.staging)
	return b.unflushed
}

func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{
		Recorded:  b.recorded,
		Flushed:   b.flushed,
		Buffered:  len(b.primary) + len(b.staging),
		Evicted:   b.evicted,
		Unflushed: b.unflushed,
		LastFlush: b.lastFlush,
	}
	if b.lastErr != nil {
		s.LastError = b.lastErr.Error()
	}
	return s
}
