package analysis

import (
	"time"

	"keyflow/internal/config"
	"keyflow/internal/event"
)

// SessionReport pairs a session with its metric snapshot and derived arena.
type SessionReport struct {
	Session  Session   `json:"session"`
	Snapshot Snapshot  `json:"metrics"`
	Derived  []Derived `json:"-"`
}

// Aggregate rolls session snapshots up across the analyzed range. Counts
// sum; rates are weighted by session duration so a ten-second spike cannot
// dominate an hour of steady typing.
type Aggregate struct {
	SessionCount    int           `json:"session_count"`
	TotalKeystrokes int           `json:"total_keystrokes"`
	TotalDuration   time.Duration `json:"total_duration"`

	WPM                  float64  `json:"wpm"`
	Consistency          *float64 `json:"consistency"`
	CorrectionRate       float64  `json:"correction_rate"`
	SameFingerBigramRate float64  `json:"same_finger_bigram_rate"`
	CognitiveLoadMean    float64  `json:"cognitive_load_mean"`

	HesitationCount int           `json:"hesitation_count"`
	CorrectionCount int           `json:"correction_count"`
	BurstRunCount   int           `json:"burst_run_count"`
	FlowRunCount    int           `json:"flow_run_count"`
	FlowDuration    time.Duration `json:"flow_duration"`

	FingerLoad             map[event.Finger]int `json:"finger_load,omitempty"`
	CognitiveLoadHistogram [10]int              `json:"cognitive_load_histogram"`
}

// Report is the complete output of one analysis run over a log range.
type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	RangeStart  time.Time       `json:"range_start,omitzero"`
	RangeEnd    time.Time       `json:"range_end,omitzero"`
	TotalEvents int             `json:"total_events"`
	NoData      bool            `json:"no_data,omitempty"`
	Sessions    []SessionReport `json:"sessions,omitempty"`
	Aggregate   *Aggregate      `json:"aggregate,omitempty"`
}

// Analyze runs the full pipeline over a slice of persisted keystrokes:
// segmentation, per-session reconstruction and metrics, then aggregation.
// An empty log yields an explicit no-data report, not an error.
func Analyze(events []event.Keystroke, cfg config.AnalysisConfig) *Report {
	report := &Report{
		GeneratedAt: time.Now(),
		TotalEvents: len(events),
	}
	if len(events) == 0 {
		report.NoData = true
		return report
	}

	sessions := NewSegmenter(cfg).Segment(events)
	engine := NewEngine(cfg)

	for _, s := range sessions {
		snap, derived := engine.Analyze(s)
		report.Sessions = append(report.Sessions, SessionReport{
			Session:  s,
			Snapshot: snap,
			Derived:  derived,
		})
	}

	report.RangeStart = report.Sessions[0].Session.StartTime
	report.RangeEnd = report.Sessions[len(report.Sessions)-1].Session.EndTime
	report.Aggregate = aggregate(report.Sessions)
	return report
}

func aggregate(sessions []SessionReport) *Aggregate {
	agg := &Aggregate{
		SessionCount: len(sessions),
		FingerLoad:   make(map[event.Finger]int),
	}

	// Duration weights; zero-duration sessions (single keystroke) fall back
	// to a uniform nominal weight so they still contribute.
	var totalW float64
	weightOf := func(s SessionReport) float64 {
		if w := s.Session.Duration().Seconds(); w > 0 {
			return w
		}
		return 1
	}

	var consSum, consW float64
	for _, s := range sessions {
		snap := s.Snapshot
		w := weightOf(s)
		totalW += w

		agg.TotalKeystrokes += snap.TotalKeystrokes
		agg.TotalDuration += s.Session.Duration()
		agg.HesitationCount += snap.HesitationCount
		agg.CorrectionCount += snap.CorrectionCount
		agg.BurstRunCount += len(snap.BurstRuns)
		agg.FlowRunCount += len(snap.FlowRuns)
		agg.FlowDuration += snap.FlowDuration

		agg.WPM += snap.WPM * w
		agg.CorrectionRate += snap.CorrectionRate * w
		agg.SameFingerBigramRate += snap.SameFingerBigramRate * w
		agg.CognitiveLoadMean += snap.CognitiveLoadMean * w

		if snap.Consistency != nil {
			consSum += *snap.Consistency * w
			consW += w
		}
		for f, n := range snap.FingerLoad {
			agg.FingerLoad[f] += n
		}
		for i, n := range snap.CognitiveLoadHistogram {
			agg.CognitiveLoadHistogram[i] += n
		}
	}

	agg.WPM /= totalW
	agg.CorrectionRate /= totalW
	agg.SameFingerBigramRate /= totalW
	agg.CognitiveLoadMean /= totalW
	if consW > 0 {
		c := consSum / consW
		agg.Consistency = &c
	}
	if len(agg.FingerLoad) == 0 {
		agg.FingerLoad = nil
	}
	return agg
}
