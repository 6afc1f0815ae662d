package event

import "time"

// Edge is the direction of a raw key transition.
type Edge string

const (
	EdgeDown Edge = "down"
	EdgeUp   Edge = "up"
)

// Transition is a raw key-transition notification delivered by a key source.
// It carries no context; the tracker stamps app/window when it assembles the
// keystroke record.
type Transition struct {
	Timestamp time.Time
	KeyCode   uint16
	KeyChar   string // empty for non-printable keys
	KeyName   string
	Edge      Edge
}

// FocusInfo is the foreground application context at a point in time.
type FocusInfo struct {
	AppName string
	Title   string
}

// Keystroke is one observed keystroke. Records are immutable once appended to
// the durable log; analysis-time derived values (burst, finger, cognitive
// load, session id) live in the analysis package, keyed by log position.
type Keystroke struct {
	ID           int64          `db:"id"`
	Timestamp    time.Time      `db:"timestamp"`
	KeyCode      uint16         `db:"key_code"`
	KeyChar      string         `db:"key_char"` // empty for non-printable keys
	KeyName      string         `db:"key_name"`
	Dwell        *time.Duration `db:"dwell_ns"` // nil if no key-up was seen before flush
	SinceLast    time.Duration  `db:"since_last_ns"`
	AppName      string         `db:"app_name"`
	WindowTitle  string         `db:"window_title"`
	StreamID     string         `db:"stream_id"` // provisional capture-stream id, not a session id
	IsCorrection bool           `db:"is_correction"`
	PauseBefore  time.Duration  `db:"pause_before_ns"` // SinceLast when above the micro-pause floor, else 0
}

// Printable reports whether the keystroke produced a single printable
// character (the unit counted for WPM).
func (k Keystroke) Printable() bool {
	if k.IsCorrection || k.KeyChar == "" {
		return false
	}
	r := []rune(k.KeyChar)
	return len(r) == 1 && r[0] >= 0x20 && r[0] != 0x7f
}

// IsCorrectionKey reports whether a key name is a deletion/backspace-class key.
func IsCorrectionKey(name string) bool {
	return name == "backspace" || name == "delete"
}
