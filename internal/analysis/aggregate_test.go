package analysis

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyflow/internal/event"
)

func TestAnalyzeEmptyLog(t *testing.T) {
	report := Analyze(nil, testAnalysisConfig())
	assert.True(t, report.NoData)
	assert.Zero(t, report.TotalEvents)
	assert.Empty(t, report.Sessions)
	assert.Nil(t, report.Aggregate)
}

func TestAnalyzeFullPipeline(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	var events []event.Keystroke
	events = append(events, cadence(base, 200*time.Millisecond, 80, "a")...)
	events = append(events, cadence(base.Add(time.Hour), 200*time.Millisecond, 40, "b")...)

	report := Analyze(events, testAnalysisConfig())
	require.False(t, report.NoData)
	assert.Equal(t, 120, report.TotalEvents)
	require.Len(t, report.Sessions, 2)
	assert.Equal(t, "session-0001", report.Sessions[0].Session.ID)
	assert.Equal(t, "session-0002", report.Sessions[1].Session.ID)
	assert.True(t, report.RangeStart.Equal(base))

	agg := report.Aggregate
	require.NotNil(t, agg)
	assert.Equal(t, 2, agg.SessionCount)
	assert.Equal(t, 120, agg.TotalKeystrokes)
	assert.Equal(t, 0, agg.HesitationCount)
}

func TestAggregateSumsAndWeights(t *testing.T) {
	base := time.Now()
	long := SessionReport{
		Session: Session{
			StartTime: base,
			EndTime:   base.Add(90 * time.Second),
		},
		Snapshot: Snapshot{
			TotalKeystrokes: 300,
			WPM:             60,
			HesitationCount: 4,
			CorrectionCount: 10,
			CorrectionRate:  0.1,
			FingerLoad:      map[event.Finger]int{event.LeftIndex: 100},
		},
	}
	short := SessionReport{
		Session: Session{
			StartTime: long.Session.EndTime.Add(time.Hour),
			EndTime:   long.Session.EndTime.Add(time.Hour + 10*time.Second),
		},
		Snapshot: Snapshot{
			TotalKeystrokes: 20,
			WPM:             120,
			HesitationCount: 1,
			CorrectionCount: 2,
			CorrectionRate:  0.5,
			FingerLoad:      map[event.Finger]int{event.LeftIndex: 5, event.RightIndex: 5},
		},
	}

	agg := aggregate([]SessionReport{long, short})
	assert.Equal(t, 2, agg.SessionCount)
	assert.Equal(t, 320, agg.TotalKeystrokes)
	assert.Equal(t, 5, agg.HesitationCount)
	assert.Equal(t, 12, agg.CorrectionCount)
	assert.Equal(t, 100*time.Second, agg.TotalDuration)

	// Duration weighting: the 90s session dominates the 10s one 9:1.
	assert.InDelta(t, (60.0*90+120.0*10)/100, agg.WPM, 1e-9)
	assert.InDelta(t, (0.1*90+0.5*10)/100, agg.CorrectionRate, 1e-9)

	assert.Equal(t, 105, agg.FingerLoad[event.LeftIndex])
	assert.Equal(t, 5, agg.FingerLoad[event.RightIndex])
}

func TestAggregateConsistencySkipsUndefined(t *testing.T) {
	defined := 0.9
	sessions := []SessionReport{
		{
			Session:  Session{StartTime: time.Now(), EndTime: time.Now().Add(time.Minute)},
			Snapshot: Snapshot{Consistency: &defined},
		},
		{
			Session:  Session{StartTime: time.Now(), EndTime: time.Now().Add(time.Minute)},
			Snapshot: Snapshot{Consistency: nil}, // too short, contributes nothing
		},
	}

	agg := aggregate(sessions)
	require.NotNil(t, agg.Consistency)
	assert.InDelta(t, 0.9, *agg.Consistency, 1e-9)
}

func TestAggregateAllConsistencyUndefined(t *testing.T) {
	sessions := []SessionReport{
		{Session: Session{StartTime: time.Now(), EndTime: time.Now().Add(time.Minute)}},
	}
	agg := aggregate(sessions)
	assert.Nil(t, agg.Consistency)
}

func TestWriteCSV(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	events := seq(base, "t", "e", "h", "backspace", "backspace", "t", "h", "e")
	report := Analyze(events, testAnalysisConfig())

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 9, "header plus one row per keystroke")
	assert.Equal(t, csvHeader, rows[0])

	header := make(map[string]int)
	for i, name := range rows[0] {
		header[name] = i
	}
	assert.Equal(t, "session-0001", rows[1][header["session_id"]])
	assert.Equal(t, "backspace", rows[4][header["key_name"]])
	assert.Equal(t, "true", rows[4][header["is_correction"]])
	assert.Equal(t, "true", rows[4][header["in_correction_seq"]])
	assert.Equal(t, "false", rows[1][header["in_correction_seq"]])
	assert.Equal(t, string(event.LeftIndex), rows[1][header["finger"]])
}
