// Package analysis turns the persisted keystroke log into sessions,
// correction sequences, and behavioral metrics. Everything here is a pure
// function of (events, config): the log is never mutated, derived values
// live in parallel arenas keyed by event index, and re-running analysis on
// the same log yields identical results.
package analysis

import (
	"fmt"
	"sort"
	"time"

	"keyflow/internal/config"
	"keyflow/internal/event"
)

// GapClass is the segmenter's classification of the pause between two
// consecutive keystrokes.
type GapClass int

const (
	// GapContinue: below the short-pause threshold; thinking or reading,
	// same session.
	GapContinue GapClass = iota
	// GapSoftInterrupt: short to medium; same session, flagged as a soft
	// interruption. The flag is informational only and feeds no metric.
	GapSoftInterrupt
	// GapLongContinue: medium to long; same session only in all-day
	// tracking mode.
	GapLongContinue
	// GapNewSession: at or above the long-pause threshold, or a
	// medium-to-long gap with all-day mode disabled.
	GapNewSession
)

// Session is a maximal contiguous run of keystrokes whose gaps stay below
// the new-session boundary. Sessions are a recomputable view over the
// append-only log, never a source of truth.
type Session struct {
	ID                string            `json:"session_id"`
	StartTime         time.Time         `json:"start_time"`
	EndTime           time.Time         `json:"end_time"`
	Events            []event.Keystroke `json:"-"`
	AppSwitchCount    int               `json:"app_switch_count"`
	SoftInterruptions int               `json:"soft_interruptions"`
	LongPauses        int               `json:"long_pauses"`
	BelowMinDuration  bool              `json:"below_min_duration"`
}

func (s *Session) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Segmenter partitions a chronologically ordered event log into sessions
// using the tiered pause-gap policy.
type Segmenter struct {
	cfg config.AnalysisConfig
}

func NewSegmenter(cfg config.AnalysisConfig) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Classify buckets a gap between consecutive keystrokes.
func (g *Segmenter) Classify(gap time.Duration) GapClass {
	switch {
	case gap < g.cfg.ShortPause():
		return GapContinue
	case gap < g.cfg.MediumPause():
		return GapSoftInterrupt
	case gap < g.cfg.LongPause():
		if g.cfg.AllDayTracking {
			return GapLongContinue
		}
		return GapNewSession
	default:
		return GapNewSession
	}
}

// Segment partitions events into ordered, non-overlapping sessions covering
// every event exactly once. Events from different capture streams are
// concatenated by timestamp before walking; gaps are computed only between
// consecutive events of the merged order. Session ids are derived from the
// position in the log, so re-segmentation is deterministic.
func (g *Segmenter) Segment(events []event.Keystroke) []Session {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]event.Keystroke, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var sessions []Session
	cur := g.newSession(len(sessions)+1, sorted[0])

	for i := 1; i < len(sorted); i++ {
		e := sorted[i]
		gap := e.Timestamp.Sub(sorted[i-1].Timestamp)

		switch g.Classify(gap) {
		case GapNewSession:
			sessions = append(sessions, g.finish(cur))
			cur = g.newSession(len(sessions)+1, e)
			continue
		case GapSoftInterrupt:
			cur.SoftInterruptions++
		case GapLongContinue:
			cur.LongPauses++
		}

		if e.AppName != sorted[i-1].AppName {
			cur.AppSwitchCount++
		}
		cur.Events = append(cur.Events, e)
		cur.EndTime = e.Timestamp
	}
	sessions = append(sessions, g.finish(cur))
	return sessions
}

func (g *Segmenter) newSession(n int, first event.Keystroke) Session {
	return Session{
		ID:        fmt.Sprintf("session-%04d", n),
		StartTime: first.Timestamp,
		EndTime:   first.Timestamp,
		Events:    []event.Keystroke{first},
	}
}

func (g *Segmenter) finish(s Session) Session {
	s.BelowMinDuration = s.Duration() < g.cfg.MinSessionDuration()
	return s
}
