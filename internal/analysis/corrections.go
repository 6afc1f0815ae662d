package analysis

import (
	"strings"
	"time"

	"keyflow/internal/config"
	"keyflow/internal/event"
)

// CorrectionSequence is one reconstructed delete-and-retype episode:
// a run of correction keystrokes plus the retyped text that follows.
type CorrectionSequence struct {
	StartTime      time.Time `json:"start_time"`
	AppName        string    `json:"app_name"`
	WindowTitle    string    `json:"window_title"`
	SequenceLength int       `json:"sequence_length"`
	DeletedText    string    `json:"deleted_text"`
	RetypedText    string    `json:"retyped_text"`
	TypoPattern    string    `json:"typo_pattern"`
}

// Span marks the half-open event-index range [Start, End) covered by a
// correction sequence, including its retype window. Events inside a span are
// excluded from hesitation detection and flagged for cognitive-load scoring.
type Span struct {
	Start, End int
}

// Contains reports whether event index i falls inside the span.
func (s Span) Contains(i int) bool { return i >= s.Start && i < s.End }

// typoCatalog maps common typo fragments to their fixes. A reconstructed
// sequence whose before-text ends in a known typo and whose outcome matches
// the fix is labeled "typo→fix"; everything else is "unknown".
var typoCatalog = []struct{ typo, fix string }{
	{"teh", "the"},
	{"hte", "the"},
	{"taht", "that"},
	{"adn", "and"},
	{"nad", "and"},
	{"jsut", "just"},
	{"waht", "what"},
	{"woudl", "would"},
	{"shoudl", "should"},
	{"recieve", "receive"},
	{"beleive", "believe"},
	{"seperate", "separate"},
	{"definately", "definitely"},
	{"occured", "occurred"},
	{"accomodate", "accommodate"},
	{"untill", "until"},
	{"wich", "which"},
	{"becuase", "because"},
	{"freind", "friend"},
	{"thier", "their"},
}

const (
	// beforeWindow bounds how much typed context is kept for pattern matching.
	beforeWindow = 24
	// retypeWindow bounds the retyped span when no boundary event ends it.
	retypeWindow = 12
)

// Reconstructor scans a session's events for correction sequences by
// replaying the visible text through a shadow buffer. The reconstruction is
// best effort: cursor movement and selection deletes are invisible at the
// keystroke level, so unmatched sequences are reported as "unknown" rather
// than guessed at.
type Reconstructor struct {
	cfg config.AnalysisConfig
}

func NewReconstructor(cfg config.AnalysisConfig) *Reconstructor {
	return &Reconstructor{cfg: cfg}
}

// Reconstruct returns the correction sequences in events (assumed
// chronological) together with the event-index spans they cover.
func (r *Reconstructor) Reconstruct(events []event.Keystroke) ([]CorrectionSequence, []Span) {
	var (
		sequences []CorrectionSequence
		spans     []Span
		typed     []rune
	)

	i := 0
	for i < len(events) {
		e := events[i]
		if !e.IsCorrection {
			if e.Printable() {
				typed = append(typed, []rune(e.KeyChar)[0])
			}
			if len(typed) > beforeWindow {
				typed = typed[len(typed)-beforeWindow:]
			}
			i++
			continue
		}

		seq, span, rest := r.scanSequence(events, i, typed)
		sequences = append(sequences, seq)
		spans = append(spans, span)

		// The shadow buffer after the sequence: context minus deleted text
		// plus the retype.
		typed = typed[:len(typed)-min(len(seq.DeletedText), len(typed))]
		typed = append(typed, []rune(seq.RetypedText)...)
		i = rest
	}
	return sequences, spans
}

// scanSequence consumes one correction sequence starting at index start.
// A retype window follows the correction run; a further correction key inside
// that window merges into the same sequence (nested corrections), undoing the
// most recent retyped character first.
func (r *Reconstructor) scanSequence(events []event.Keystroke, start int, typed []rune) (CorrectionSequence, Span, int) {
	first := events[start]
	seq := CorrectionSequence{
		StartTime:   first.Timestamp,
		AppName:     first.AppName,
		WindowTitle: first.WindowTitle,
	}
	before := string(typed)

	var deleted, retyped []rune
	i := start
	for i < len(events) {
		e := events[i]
		if e.IsCorrection {
			seq.SequenceLength++
			if len(retyped) > 0 {
				retyped = retyped[:len(retyped)-1]
			} else if n := len(typed) - len(deleted); n > 0 {
				// Deleted text accumulates front-first so it reads in
				// document order.
				deleted = append([]rune{typed[n-1]}, deleted...)
			}
			i++
			continue
		}

		// A pause above the hesitation threshold ends the retype window: the
		// typist has moved on.
		if len(retyped) > 0 && e.PauseBefore > r.cfg.HesitationThreshold() {
			break
		}
		if len(retyped) >= retypeWindow {
			break
		}
		if e.Printable() {
			retyped = append(retyped, []rune(e.KeyChar)[0])
		} else if len(retyped) > 0 {
			// Non-printable key (enter, arrows) after retyping closes the span.
			break
		}
		i++
	}

	seq.DeletedText = string(deleted)
	seq.RetypedText = string(retyped)
	seq.TypoPattern = classify(before, seq.DeletedText, seq.RetypedText)
	return seq, Span{Start: start, End: i}, i
}

// classify labels a sequence against the typo catalog. The before-text must
// end with the typo; the retype must be consistent with the fix, either as
// its prefix, a full match, or the replaced tail of it.
func classify(before, deleted, retyped string) string {
	b := strings.ToLower(before)
	rt := strings.ToLower(retyped)
	if rt == "" {
		return "unknown"
	}
	for _, c := range typoCatalog {
		if !strings.HasSuffix(b, c.typo) {
			continue
		}
		if strings.HasPrefix(rt, c.fix) || strings.HasPrefix(c.fix, rt) || strings.HasSuffix(c.fix, rt) {
			return c.typo + "→" + c.fix
		}
	}
	return "unknown"
}
