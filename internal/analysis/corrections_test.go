package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyflow/internal/event"
)

// seq builds a keystroke stream from key names at a fixed 100ms cadence,
// starting at base. Names of printable keys double as their characters.
func seq(base time.Time, names ...string) []event.Keystroke {
	events := make([]event.Keystroke, 0, len(names))
	for i, name := range names {
		char := name
		if event.IsCorrectionKey(name) || len([]rune(name)) != 1 {
			char = ""
		}
		since := time.Duration(0)
		if i > 0 {
			since = 100 * time.Millisecond
		}
		events = append(events, event.Keystroke{
			Timestamp:    base.Add(time.Duration(i) * 100 * time.Millisecond),
			KeyName:      name,
			KeyChar:      char,
			SinceLast:    since,
			IsCorrection: event.IsCorrectionKey(name),
		})
	}
	return events
}

func TestReconstructTehToThe(t *testing.T) {
	r := NewReconstructor(testAnalysisConfig())
	events := seq(time.Now(), "t", "e", "h", "backspace", "backspace", "t", "h", "e")

	sequences, spans := r.Reconstruct(events)
	require.Len(t, sequences, 1)

	got := sequences[0]
	assert.Equal(t, 2, got.SequenceLength)
	assert.Equal(t, "eh", got.DeletedText)
	assert.Equal(t, "the", got.RetypedText)
	assert.Equal(t, "teh→the", got.TypoPattern)
	assert.True(t, got.StartTime.Equal(events[3].Timestamp), "sequence starts at the first correction key")

	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 3, End: 8}, spans[0])
}

func TestReconstructUnknownPattern(t *testing.T) {
	r := NewReconstructor(testAnalysisConfig())
	events := seq(time.Now(), "q", "z", "backspace", "p")

	sequences, _ := r.Reconstruct(events)
	require.Len(t, sequences, 1)
	assert.Equal(t, "unknown", sequences[0].TypoPattern)
	assert.Equal(t, 1, sequences[0].SequenceLength)
	assert.Equal(t, "z", sequences[0].DeletedText)
	assert.Equal(t, "p", sequences[0].RetypedText)
}

func TestReconstructNestedCorrection(t *testing.T) {
	r := NewReconstructor(testAnalysisConfig())
	// Mid-retype slip: "t", "j", backspace, then the intended "h", "e".
	events := seq(time.Now(), "t", "e", "h", "backspace", "backspace",
		"t", "j", "backspace", "h", "e")

	sequences, spans := r.Reconstruct(events)
	require.Len(t, sequences, 1, "a correction inside the retype window merges, not a new sequence")

	got := sequences[0]
	assert.Equal(t, 3, got.SequenceLength)
	assert.Equal(t, "the", got.RetypedText)
	assert.Equal(t, "teh→the", got.TypoPattern)

	require.Len(t, spans, 1)
	assert.Equal(t, 3, spans[0].Start)
	assert.Equal(t, len(events), spans[0].End)
}

func TestReconstructSequenceEndsOnLongPause(t *testing.T) {
	r := NewReconstructor(testAnalysisConfig())
	events := seq(time.Now(), "t", "e", "h", "backspace", "backspace", "t", "h", "x", "y")
	// The typist walks away after retyping "th"; "x" arrives much later.
	events[7].PauseBefore = 5 * time.Second
	events[7].SinceLast = 5 * time.Second

	sequences, spans := r.Reconstruct(events)
	require.Len(t, sequences, 1)
	assert.Equal(t, "th", sequences[0].RetypedText)
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 3, End: 7}, spans[0])
}

func TestReconstructMultipleSequences(t *testing.T) {
	r := NewReconstructor(testAnalysisConfig())
	events := seq(time.Now(),
		"a", "d", "n", "backspace", "backspace", "n", "d", // adn -> and
		" ",
		"q", "backspace", "w")
	// Separate the two episodes so the first retype window closes.
	for i := 7; i < len(events); i++ {
		events[i].Timestamp = events[i].Timestamp.Add(10 * time.Second)
	}
	events[7].PauseBefore = 10 * time.Second

	sequences, _ := r.Reconstruct(events)
	require.Len(t, sequences, 2)
	assert.Equal(t, "adn→and", sequences[0].TypoPattern)
	assert.Equal(t, "unknown", sequences[1].TypoPattern)
}

func TestReconstructNoCorrections(t *testing.T) {
	r := NewReconstructor(testAnalysisConfig())
	events := seq(time.Now(), "h", "e", "l", "l", "o")

	sequences, spans := r.Reconstruct(events)
	assert.Empty(t, sequences)
	assert.Empty(t, spans)
}

func TestClassifyPartialRetype(t *testing.T) {
	// Deleting only the transposed tail and retyping it still matches.
	assert.Equal(t, "teh→the", classify("teh", "eh", "he"))
	assert.Equal(t, "unknown", classify("teh", "eh", "zz"))
	assert.Equal(t, "unknown", classify("cat", "at", "he"))
}
