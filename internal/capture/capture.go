// Package capture defines the seam to the OS-level collaborators: a Source
// delivers raw key transitions, a ContextProvider answers foreground-context
// queries, and the Tracker assembles both into keystroke records for the
// buffer.
package capture

import (
	"context"

	"keyflow/internal/event"
)

// Source streams raw key-down/key-up transitions. Start blocks until ctx is
// cancelled or Stop is called; transitions are delivered on out.
type Source interface {
	Start(ctx context.Context, out chan<- event.Transition) error
	Stop() error
}

// ContextProvider answers the foreground app/window query, invoked once per
// keystroke to stamp context. A failed lookup is transient; callers keep the
// event with empty context.
type ContextProvider interface {
	Current() (event.FocusInfo, error)
}
