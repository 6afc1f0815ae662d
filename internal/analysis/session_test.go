package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyflow/internal/config"
	"keyflow/internal/event"
)

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		MicroPauseSeconds:  0.1,
		ShortPauseSeconds:  120,
		MediumPauseSeconds: 900,
		LongPauseSeconds:   1800,

		HesitationThresholdSeconds: 0.8,
		BurstThresholdSeconds:      0.15,
		MinBurstRun:                5,
		FlowStateThreshold:         60,
		FlowMaxCV:                  0.6,
		ConsistencyWindow:          100,
		MinSessionDurationSeconds:  30,

		CognitiveLoad: config.CognitiveLoadWeights{
			PauseWeight:      0.5,
			AppSwitchWeight:  0.3,
			CorrectionWeight: 0.2,
			PauseNormSeconds: 2.0,
		},
	}
}

// typeAt builds a keystroke at base+offset with gap-derived fields filled the
// way the tracker would fill them.
func typeAt(base time.Time, offset time.Duration, name, char string, prev time.Duration) event.Keystroke {
	since := time.Duration(0)
	if prev >= 0 {
		since = offset - prev
	}
	pause := time.Duration(0)
	if since > 100*time.Millisecond {
		pause = since
	}
	return event.Keystroke{
		Timestamp:    base.Add(offset),
		KeyName:      name,
		KeyChar:      char,
		SinceLast:    since,
		PauseBefore:  pause,
		IsCorrection: event.IsCorrectionKey(name),
	}
}

// typed generates n keystrokes with a uniform interval starting at base+start.
func typed(base time.Time, start, interval time.Duration, n int) []event.Keystroke {
	events := make([]event.Keystroke, 0, n)
	for i := 0; i < n; i++ {
		off := start + time.Duration(i)*interval
		prev := off - interval
		if i == 0 {
			prev = -1
		}
		events = append(events, typeAt(base, off, "a", "a", prev))
	}
	return events
}

func TestSegmentEmpty(t *testing.T) {
	seg := NewSegmenter(testAnalysisConfig())
	assert.Nil(t, seg.Segment(nil))
}

func TestSegmentSingleEvent(t *testing.T) {
	seg := NewSegmenter(testAnalysisConfig())
	base := time.Now()

	sessions := seg.Segment(typed(base, 0, 0, 1))
	require.Len(t, sessions, 1)
	assert.Equal(t, "session-0001", sessions[0].ID)
	assert.Len(t, sessions[0].Events, 1)
	assert.True(t, sessions[0].BelowMinDuration)
}

func TestGapPolicy(t *testing.T) {
	cfg := testAnalysisConfig()
	seg := NewSegmenter(cfg)

	assert.Equal(t, GapContinue, seg.Classify(100*time.Second))
	assert.Equal(t, GapSoftInterrupt, seg.Classify(120*time.Second))
	assert.Equal(t, GapNewSession, seg.Classify(1000*time.Second))
	assert.Equal(t, GapNewSession, seg.Classify(2000*time.Second))

	cfg.AllDayTracking = true
	seg = NewSegmenter(cfg)
	assert.Equal(t, GapLongContinue, seg.Classify(1000*time.Second))
	assert.Equal(t, GapNewSession, seg.Classify(2000*time.Second))
}

func TestSegmentGapBoundaries(t *testing.T) {
	seg := NewSegmenter(testAnalysisConfig())
	base := time.Now()

	events := []event.Keystroke{
		typeAt(base, 0, "a", "a", -1),
		// 100s gap: continue
		typeAt(base, 100*time.Second, "b", "b", 0),
		// 130s gap: soft interruption
		typeAt(base, 230*time.Second, "c", "c", -1),
		// 1000s gap: new session
		typeAt(base, 1230*time.Second, "d", "d", -1),
	}
	sessions := seg.Segment(events)
	require.Len(t, sessions, 2)

	first := sessions[0]
	assert.Equal(t, "session-0001", first.ID)
	assert.Len(t, first.Events, 3)
	assert.Equal(t, 1, first.SoftInterruptions)

	second := sessions[1]
	assert.Equal(t, "session-0002", second.ID)
	assert.Len(t, second.Events, 1)
}

func TestSegmentAllDayMode(t *testing.T) {
	cfg := testAnalysisConfig()
	cfg.AllDayTracking = true
	seg := NewSegmenter(cfg)
	base := time.Now()

	events := []event.Keystroke{
		typeAt(base, 0, "a", "a", -1),
		typeAt(base, 1000*time.Second, "b", "b", -1), // medium-to-long gap
	}
	sessions := seg.Segment(events)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].LongPauses)
}

func TestSegmentCoversEveryEventOnce(t *testing.T) {
	seg := NewSegmenter(testAnalysisConfig())
	base := time.Now()

	var events []event.Keystroke
	events = append(events, typed(base, 0, 200*time.Millisecond, 50)...)
	events = append(events, typed(base, time.Hour, 200*time.Millisecond, 30)...)
	events = append(events, typed(base, 2*time.Hour, 200*time.Millisecond, 20)...)

	sessions := seg.Segment(events)
	require.Len(t, sessions, 3)

	total := 0
	for i, s := range sessions {
		total += len(s.Events)
		if i > 0 {
			assert.True(t, s.StartTime.After(sessions[i-1].EndTime), "sessions do not overlap")
		}
	}
	assert.Equal(t, len(events), total)
}

func TestSegmentDeterministic(t *testing.T) {
	seg := NewSegmenter(testAnalysisConfig())
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	var events []event.Keystroke
	events = append(events, typed(base, 0, 150*time.Millisecond, 40)...)
	events = append(events, typed(base, time.Hour, 150*time.Millisecond, 40)...)

	a := seg.Segment(events)
	b := seg.Segment(events)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.True(t, a[i].StartTime.Equal(b[i].StartTime))
		assert.True(t, a[i].EndTime.Equal(b[i].EndTime))
	}
}

func TestAppSwitchCount(t *testing.T) {
	seg := NewSegmenter(testAnalysisConfig())
	base := time.Now()

	events := []event.Keystroke{
		typeAt(base, 0, "a", "a", -1),
		typeAt(base, time.Second, "b", "b", 0),
		typeAt(base, 2*time.Second, "c", "c", 0),
	}
	events[0].AppName = "code"
	events[1].AppName = "firefox"
	events[2].AppName = "firefox"

	sessions := seg.Segment(events)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].AppSwitchCount)
}
