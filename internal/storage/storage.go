package storage

import (
	"context"
	"time"

	"keyflow/internal/event"
)

// Storage is the durable, append-only keystroke log. AppendBatch writes one
// flush batch as a single atomic append; readers see either the whole batch
// or none of it.
type Storage interface {
	Init(ctx context.Context) error
	AppendBatch(ctx context.Context, events []event.Keystroke) error
	LoadRange(ctx context.Context, start, end time.Time) ([]event.Keystroke, error)
	LoadAll(ctx context.Context) ([]event.Keystroke, error)
	Close() error
}
