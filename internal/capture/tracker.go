package capture

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"keyflow/internal/event"
)

// Recorder is the buffer-facing half of the tracker; satisfied by
// *buffer.Buffer.
type Recorder interface {
	Record(e event.Keystroke)
}

// Tracker pairs key-down and key-up transitions into keystroke records.
//
// A keystroke exists from its key-down; the record is handed to the buffer
// when the key-up arrives, completing the dwell time. Keys still held when a
// flush seals the tracker are recorded with nil dwell and are never
// retroactively completed, keeping the persisted log immutable.
type Tracker struct {
	mu sync.Mutex

	rec        Recorder
	ctxProv    ContextProvider
	streamID   string
	microPause time.Duration

	pending  map[uint16]event.Keystroke
	lastDown time.Time // timestamp of the previous keystroke in this stream
	lastUsed time.Time // highest timestamp handed out, for de-duplication
	log      *zap.Logger
}

func NewTracker(rec Recorder, ctxProv ContextProvider, microPause time.Duration, log *zap.Logger) *Tracker {
	return &Tracker{
		rec:        rec,
		ctxProv:    ctxProv,
		streamID:   newStreamID(),
		microPause: microPause,
		pending:    make(map[uint16]event.Keystroke),
		log:        log,
	}
}

// newStreamID generates the provisional capture-stream id. Session ids are
// assigned at analysis time by the segmenter, never here.
func newStreamID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Fall back to a time-derived id; uniqueness per machine is enough.
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))
	}
	return hex.EncodeToString(b[:])
}

// StreamID returns the provisional id stamped on this tracker's events.
func (t *Tracker) StreamID() string { return t.streamID }

// Handle processes one raw transition from the key source.
func (t *Tracker) Handle(tr event.Transition) {
	switch tr.Edge {
	case event.EdgeDown:
		t.handleDown(tr)
	case event.EdgeUp:
		t.handleUp(tr)
	default:
		t.log.Warn("Dropping transition with unknown edge", zap.String("edge", string(tr.Edge)))
	}
}

func (t *Tracker) handleDown(tr event.Transition) {
	focus := t.lookupContext()

	t.mu.Lock()
	defer t.mu.Unlock()

	ts := tr.Timestamp
	nudged := false
	if !ts.After(t.lastUsed) {
		// No two events share a timestamp within one stream. A transition
		// carrying an older or equal timestamp (second device, clock skew)
		// is nudged into arrival order.
		ts = t.lastUsed.Add(time.Nanosecond)
		nudged = true
	}
	t.lastUsed = ts

	var since time.Duration
	if !t.lastDown.IsZero() && !nudged {
		// A nudged event has no meaningful gap to its predecessor; leaving
		// SinceLast zero keeps the 1ns artifact out of burst detection.
		since = ts.Sub(t.lastDown)
	}
	pause := time.Duration(0)
	if since > t.microPause {
		pause = since
	}

	e := event.Keystroke{
		Timestamp:    ts,
		KeyCode:      tr.KeyCode,
		KeyChar:      tr.KeyChar,
		KeyName:      tr.KeyName,
		SinceLast:    since,
		AppName:      focus.AppName,
		WindowTitle:  focus.Title,
		StreamID:     t.streamID,
		IsCorrection: event.IsCorrectionKey(tr.KeyName),
		PauseBefore:  pause,
	}
	t.lastDown = ts

	if prev, held := t.pending[tr.KeyCode]; held {
		// Same key pressed again without a key-up (missed release). The
		// earlier keystroke is sealed with unknown dwell.
		t.rec.Record(prev)
	}
	t.pending[tr.KeyCode] = e
}

func (t *Tracker) handleUp(tr event.Transition) {
	t.mu.Lock()
	e, ok := t.pending[tr.KeyCode]
	if ok {
		delete(t.pending, tr.KeyCode)
	}
	t.mu.Unlock()

	if !ok {
		// Key-up with no observed key-down (held across start); nothing to record.
		return
	}
	if d := tr.Timestamp.Sub(e.Timestamp); d >= 0 {
		dwell := d
		e.Dwell = &dwell
	}
	t.rec.Record(e)
}

// SealPending records every keystroke still awaiting its key-up, with nil
// dwell, in timestamp order. Called by the flush controller before each
// flush and at shutdown.
func (t *Tracker) SealPending() {
	t.mu.Lock()
	sealed := make([]event.Keystroke, 0, len(t.pending))
	for _, e := range t.pending {
		sealed = append(sealed, e)
	}
	t.pending = make(map[uint16]event.Keystroke)
	t.mu.Unlock()

	sort.Slice(sealed, func(i, j int) bool { return sealed[i].Timestamp.Before(sealed[j].Timestamp) })
	for _, e := range sealed {
		t.rec.Record(e)
	}
}

// lookupContext stamps foreground context, tolerating provider failures: the
// keystroke is kept with empty context rather than dropped.
func (t *Tracker) lookupContext() event.FocusInfo {
	if t.ctxProv == nil {
		return event.FocusInfo{}
	}
	focus, err := t.ctxProv.Current()
	if err != nil {
		t.log.Debug("Foreground context lookup failed", zap.Error(err))
		return event.FocusInfo{}
	}
	return focus
}
