package analysis

import (
	"math"
	"sort"
	"time"

	"keyflow/internal/config"
	"keyflow/internal/event"
)

// Derived holds the analysis-time per-keystroke values. Derived values live
// here, parallel to the session's event slice, so persisted records are
// never mutated.
type Derived struct {
	SessionID     string
	TypingBurst   bool
	Hesitation    bool
	AppSwitch     bool
	InCorrection  bool
	Finger        event.Finger
	CognitiveLoad float64
}

// Hesitation is one pause above the hesitation threshold, attributed to the
// key that preceded it and the app context it happened in.
type Hesitation struct {
	Timestamp    time.Time     `json:"timestamp"`
	Pause        time.Duration `json:"pause"`
	Key          string        `json:"key"`
	PrecedingKey string        `json:"preceding_key"`
	AppName      string        `json:"app_name"`
}

// BurstRun is a maximal run of consecutive burst-speed keystrokes of at
// least the configured minimum length.
type BurstRun struct {
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Keystrokes int       `json:"keystrokes"`
}

// FlowRun is a sustained hesitation-free typing span with bounded interval
// variance.
type FlowRun struct {
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
	Keystrokes int           `json:"keystrokes"`
	WPM        float64       `json:"wpm"`
}

// Snapshot is the full metric set for one session.
type Snapshot struct {
	SessionID       string    `json:"session_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes float64   `json:"duration_minutes"`

	TotalKeystrokes     int      `json:"total_keystrokes"`
	PrintableKeystrokes int      `json:"printable_keystrokes"`
	WPM                 float64  `json:"wpm"`
	Consistency         *float64 `json:"consistency"` // nil when the session is shorter than the rolling window

	HesitationCount int          `json:"hesitation_count"`
	Hesitations     []Hesitation `json:"hesitations,omitempty"`

	BurstKeystrokes int           `json:"burst_keystrokes"`
	BurstRuns       []BurstRun    `json:"burst_runs,omitempty"`
	FlowRuns        []FlowRun     `json:"flow_runs,omitempty"`
	FlowDuration    time.Duration `json:"flow_duration"`

	FingerLoad           map[event.Finger]int `json:"finger_load"`
	SameFingerBigrams    int                  `json:"same_finger_bigrams"`
	TotalBigrams         int                  `json:"total_bigrams"`
	SameFingerBigramRate float64              `json:"same_finger_bigram_rate"`
	HandAlternationRate  float64              `json:"hand_alternation_rate"`
	HandBalance          float64              `json:"hand_balance"` // left / (left + right)

	CognitiveLoadMean      float64            `json:"cognitive_load_mean"`
	CognitiveLoadHistogram [10]int            `json:"cognitive_load_histogram"`
	AppCognitiveLoad       map[string]float64 `json:"app_cognitive_load,omitempty"`

	CorrectionCount      int                  `json:"correction_count"`
	CorrectionRate       float64              `json:"correction_rate"` // corrections per keystroke
	CorrectionSequences  []CorrectionSequence `json:"correction_sequences,omitempty"`
	CorrectionEfficiency float64              `json:"correction_efficiency"` // retyped chars per correction keystroke

	KeyFrequency    map[string]int     `json:"key_frequency,omitempty"`
	ErrorProneChars map[string]int     `json:"error_prone_chars,omitempty"`
	AppWPM          map[string]float64 `json:"app_wpm,omitempty"`

	AppSwitchCount    int  `json:"app_switch_count"`
	SoftInterruptions int  `json:"soft_interruptions"`
	BelowMinDuration  bool `json:"below_min_duration"`
}

// appWPM thresholds: per-app rates on tiny samples are noise.
const (
	appWPMMinEvents = 50
	appWPMMinSpan   = 30 * time.Second
)

// Engine computes session snapshots. Stateless apart from configuration.
type Engine struct {
	cfg           config.AnalysisConfig
	reconstructor *Reconstructor
}

func NewEngine(cfg config.AnalysisConfig) *Engine {
	return &Engine{cfg: cfg, reconstructor: NewReconstructor(cfg)}
}

// Analyze computes the metric snapshot and per-keystroke derived values for
// one session. The returned Derived slice is parallel to s.Events.
func (e *Engine) Analyze(s Session) (Snapshot, []Derived) {
	snap := Snapshot{
		SessionID:         s.ID,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		DurationMinutes:   s.Duration().Minutes(),
		TotalKeystrokes:   len(s.Events),
		AppSwitchCount:    s.AppSwitchCount,
		SoftInterruptions: s.SoftInterruptions,
		BelowMinDuration:  s.BelowMinDuration,
		FingerLoad:        make(map[event.Finger]int),
	}
	if len(s.Events) == 0 {
		return snap, nil
	}

	sequences, spans := e.reconstructor.Reconstruct(s.Events)
	snap.CorrectionSequences = sequences

	derived := e.derive(s, spans)

	e.countKeys(s.Events, &snap)
	e.hesitations(s.Events, derived, &snap)
	e.bursts(s.Events, derived, &snap)
	e.flowRuns(s.Events, derived, &snap)
	e.fingerMetrics(s.Events, derived, &snap)
	e.cognitiveLoad(s.Events, derived, &snap)
	e.corrections(s.Events, sequences, &snap)
	snap.Consistency = e.consistency(s.Events)
	snap.WPM = wpm(snap.PrintableKeystrokes, s.Duration())
	snap.AppWPM = e.appWPM(s.Events)

	return snap, derived
}

// derive fills the per-keystroke arena: burst and hesitation flags, finger
// assignment, app switches, and the cognitive load score.
func (e *Engine) derive(s Session, spans []Span) []Derived {
	w := e.cfg.CognitiveLoad
	hesitation := e.cfg.HesitationThreshold()
	burst := e.cfg.BurstThreshold()

	derived := make([]Derived, len(s.Events))
	for i, ev := range s.Events {
		d := &derived[i]
		d.SessionID = s.ID
		d.Finger = fingerOf(ev)
		d.InCorrection = inSpans(spans, i)
		if i > 0 {
			d.TypingBurst = ev.SinceLast > 0 && ev.SinceLast < burst
			d.Hesitation = ev.PauseBefore > hesitation && !d.InCorrection
			d.AppSwitch = ev.AppName != s.Events[i-1].AppName
		}

		pauseSec := ev.PauseBefore.Seconds()
		load := w.PauseWeight * math.Min(pauseSec/w.PauseNormSeconds, 1.0)
		if d.AppSwitch {
			load += w.AppSwitchWeight
		}
		if d.InCorrection || ev.IsCorrection {
			load += w.CorrectionWeight
		}
		d.CognitiveLoad = clamp01(load)
	}
	return derived
}

func (e *Engine) countKeys(events []event.Keystroke, snap *Snapshot) {
	snap.KeyFrequency = make(map[string]int)
	for _, ev := range events {
		if ev.Printable() {
			snap.PrintableKeystrokes++
			snap.KeyFrequency[ev.KeyChar]++
		}
	}
	if len(snap.KeyFrequency) == 0 {
		snap.KeyFrequency = nil
	}
}

func (e *Engine) hesitations(events []event.Keystroke, derived []Derived, snap *Snapshot) {
	for i, d := range derived {
		if !d.Hesitation {
			continue
		}
		snap.HesitationCount++
		snap.Hesitations = append(snap.Hesitations, Hesitation{
			Timestamp:    events[i].Timestamp,
			Pause:        events[i].PauseBefore,
			Key:          events[i].KeyName,
			PrecedingKey: events[i-1].KeyName,
			AppName:      events[i].AppName,
		})
	}
}

func (e *Engine) bursts(events []event.Keystroke, derived []Derived, snap *Snapshot) {
	runStart := -1
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		if n := end - runStart; n >= e.cfg.MinBurstRun {
			snap.BurstRuns = append(snap.BurstRuns, BurstRun{
				StartTime:  events[runStart].Timestamp,
				EndTime:    events[end-1].Timestamp,
				Keystrokes: n,
			})
		}
		runStart = -1
	}

	for i, d := range derived {
		if d.TypingBurst {
			snap.BurstKeystrokes++
			if runStart < 0 {
				// The keystroke before the first burst interval anchors the run.
				runStart = i - 1
			}
			continue
		}
		flush(i)
	}
	flush(len(derived))
}

// flowRuns finds maximal hesitation-free spans, then keeps those long enough
// and steady enough to count as flow.
func (e *Engine) flowRuns(events []event.Keystroke, derived []Derived, snap *Snapshot) {
	start := 0
	check := func(start, end int) {
		n := end - start
		if n < e.cfg.FlowStateThreshold {
			return
		}
		intervals := make([]float64, 0, n-1)
		for i := start + 1; i < end; i++ {
			intervals = append(intervals, events[i].SinceLast.Seconds())
		}
		if cv(intervals) > e.cfg.FlowMaxCV {
			return
		}

		dur := events[end-1].Timestamp.Sub(events[start].Timestamp)
		printable := 0
		for i := start; i < end; i++ {
			if events[i].Printable() {
				printable++
			}
		}
		snap.FlowRuns = append(snap.FlowRuns, FlowRun{
			StartTime:  events[start].Timestamp,
			EndTime:    events[end-1].Timestamp,
			Duration:   dur,
			Keystrokes: n,
			WPM:        wpm(printable, dur),
		})
		snap.FlowDuration += dur
	}

	for i, d := range derived {
		if d.Hesitation {
			check(start, i)
			start = i
		}
	}
	check(start, len(derived))
}

func (e *Engine) fingerMetrics(events []event.Keystroke, derived []Derived, snap *Snapshot) {
	var left, right, alternations int
	prevFinger := event.FingerNone
	prevHand := event.HandNone

	for i := range events {
		f := derived[i].Finger
		if f == event.FingerNone {
			continue
		}
		snap.FingerLoad[f]++

		switch event.HandOf(f) {
		case event.LeftHand:
			left++
		case event.RightHand:
			right++
		}

		// Bigram metrics consider letter fingers only; thumbs carry no
		// same-finger cost.
		if f != event.Thumbs {
			if prevFinger != event.FingerNone {
				snap.TotalBigrams++
				if f == prevFinger {
					snap.SameFingerBigrams++
				}
				h := event.HandOf(f)
				if h != prevHand && prevHand != event.HandNone {
					alternations++
				}
				prevHand = h
			} else {
				prevHand = event.HandOf(f)
			}
			prevFinger = f
		}
	}

	if snap.TotalBigrams > 0 {
		snap.SameFingerBigramRate = float64(snap.SameFingerBigrams) / float64(snap.TotalBigrams)
		snap.HandAlternationRate = float64(alternations) / float64(snap.TotalBigrams)
	}
	if left+right > 0 {
		snap.HandBalance = float64(left) / float64(left+right)
	}
}

func (e *Engine) cognitiveLoad(events []event.Keystroke, derived []Derived, snap *Snapshot) {
	var sum float64
	perApp := make(map[string]*struct {
		sum float64
		n   int
	})

	for i, d := range derived {
		sum += d.CognitiveLoad
		bin := int(d.CognitiveLoad * 10)
		if bin > 9 {
			bin = 9
		}
		snap.CognitiveLoadHistogram[bin]++

		app := events[i].AppName
		if app == "" {
			continue
		}
		acc, ok := perApp[app]
		if !ok {
			acc = &struct {
				sum float64
				n   int
			}{}
			perApp[app] = acc
		}
		acc.sum += d.CognitiveLoad
		acc.n++
	}

	snap.CognitiveLoadMean = sum / float64(len(derived))
	if len(perApp) > 0 {
		snap.AppCognitiveLoad = make(map[string]float64, len(perApp))
		for app, acc := range perApp {
			snap.AppCognitiveLoad[app] = acc.sum / float64(acc.n)
		}
	}
}

func (e *Engine) corrections(events []event.Keystroke, sequences []CorrectionSequence, snap *Snapshot) {
	for _, ev := range events {
		if ev.IsCorrection {
			snap.CorrectionCount++
		}
	}
	if snap.TotalKeystrokes > 0 {
		snap.CorrectionRate = float64(snap.CorrectionCount) / float64(snap.TotalKeystrokes)
	}

	var retyped int
	for _, seq := range sequences {
		retyped += len([]rune(seq.RetypedText))
	}
	if snap.CorrectionCount > 0 {
		snap.CorrectionEfficiency = float64(retyped) / float64(snap.CorrectionCount)
	}

	// Characters typed right before a correction run started.
	errProne := make(map[string]int)
	for i := 1; i < len(events); i++ {
		if events[i].IsCorrection && !events[i-1].IsCorrection && events[i-1].Printable() {
			errProne[events[i-1].KeyChar]++
		}
	}
	if len(errProne) > 0 {
		snap.ErrorProneChars = errProne
	}
}

// consistency is 1/(1+mean rolling CV) of inter-key intervals, or nil when
// the session has fewer keystrokes than the window.
func (e *Engine) consistency(events []event.Keystroke) *float64 {
	w := e.cfg.ConsistencyWindow
	if len(events) < w {
		return nil
	}

	intervals := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		intervals = append(intervals, events[i].SinceLast.Seconds())
	}

	// Rolling windows of w-1 intervals, one per window of w keystrokes.
	span := w - 1
	var sum float64
	var n int
	for start := 0; start+span <= len(intervals); start++ {
		sum += cv(intervals[start : start+span])
		n++
	}
	if n == 0 {
		return nil
	}
	c := 1.0 / (1.0 + sum/float64(n))
	return &c
}

func (e *Engine) appWPM(events []event.Keystroke) map[string]float64 {
	type acc struct {
		printable   int
		first, last time.Time
		n           int
	}
	perApp := make(map[string]*acc)
	for _, ev := range events {
		if ev.AppName == "" {
			continue
		}
		a, ok := perApp[ev.AppName]
		if !ok {
			a = &acc{first: ev.Timestamp}
			perApp[ev.AppName] = a
		}
		a.n++
		a.last = ev.Timestamp
		if ev.Printable() {
			a.printable++
		}
	}

	out := make(map[string]float64)
	for app, a := range perApp {
		span := a.last.Sub(a.first)
		if a.n < appWPMMinEvents || span < appWPMMinSpan {
			continue
		}
		out[app] = wpm(a.printable, span)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// wpm converts printable keystrokes over a duration to words per minute at
// the standard five characters per word.
func wpm(printable int, dur time.Duration) float64 {
	minutes := dur.Minutes()
	if minutes <= 0 || printable == 0 {
		return 0
	}
	return float64(printable) / 5.0 / minutes
}

// cv is the coefficient of variation (population stddev over mean).
func cv(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(xs))) / mean
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func fingerOf(k event.Keystroke) event.Finger {
	if k.KeyChar != "" {
		if f := event.FingerFor(k.KeyChar); f != event.FingerNone {
			return f
		}
	}
	return event.FingerFor(k.KeyName)
}

// inSpans assumes spans are ordered and non-overlapping, as Reconstruct
// produces them.
func inSpans(spans []Span, i int) bool {
	idx := sort.Search(len(spans), func(j int) bool { return spans[j].End > i })
	return idx < len(spans) && spans[idx].Contains(i)
}
