package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"keyflow/internal/event"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []event.Keystroke
}

func (f *fakeRecorder) Record(e event.Keystroke) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeRecorder) all() []event.Keystroke {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.Keystroke, len(f.events))
	copy(out, f.events)
	return out
}

type fakeFocus struct {
	info event.FocusInfo
	err  error
}

func (f *fakeFocus) Current() (event.FocusInfo, error) { return f.info, f.err }

func down(ts time.Time, code uint16, name, char string) event.Transition {
	return event.Transition{Timestamp: ts, KeyCode: code, KeyName: name, KeyChar: char, Edge: event.EdgeDown}
}

func up(ts time.Time, code uint16) event.Transition {
	return event.Transition{Timestamp: ts, KeyCode: code, Edge: event.EdgeUp}
}

func TestDwellPairing(t *testing.T) {
	rec := &fakeRecorder{}
	focus := &fakeFocus{info: event.FocusInfo{AppName: "code", Title: "main.go"}}
	tr := NewTracker(rec, focus, 100*time.Millisecond, zap.NewNop())

	base := time.Now()
	tr.Handle(down(base, 35, "h", "h"))
	assert.Empty(t, rec.all(), "keystroke is not recorded until its key-up")

	tr.Handle(up(base.Add(80*time.Millisecond), 35))
	events := rec.all()
	require.Len(t, events, 1)
	e := events[0]
	require.NotNil(t, e.Dwell)
	assert.Equal(t, 80*time.Millisecond, *e.Dwell)
	assert.Equal(t, "h", e.KeyName)
	assert.Equal(t, "code", e.AppName)
	assert.Equal(t, "main.go", e.WindowTitle)
	assert.NotEmpty(t, e.StreamID)
}

func TestSinceLastAndPauseBefore(t *testing.T) {
	rec := &fakeRecorder{}
	tr := NewTracker(rec, nil, 100*time.Millisecond, zap.NewNop())

	base := time.Now()
	tr.Handle(down(base, 20, "t", "t"))
	tr.Handle(up(base.Add(40*time.Millisecond), 20))

	// 50ms gap: below the micro-pause floor, pause stays zero.
	tr.Handle(down(base.Add(50*time.Millisecond), 35, "h", "h"))
	tr.Handle(up(base.Add(90*time.Millisecond), 35))

	// 2s gap: a real pause.
	tr.Handle(down(base.Add(2050*time.Millisecond), 18, "e", "e"))
	tr.Handle(up(base.Add(2100*time.Millisecond), 18))

	events := rec.all()
	require.Len(t, events, 3)

	assert.Equal(t, time.Duration(0), events[0].SinceLast, "first keystroke of a stream has no predecessor")
	assert.Equal(t, time.Duration(0), events[0].PauseBefore)

	assert.Equal(t, 50*time.Millisecond, events[1].SinceLast)
	assert.Equal(t, time.Duration(0), events[1].PauseBefore)

	assert.Equal(t, 2*time.Second, events[2].SinceLast)
	assert.Equal(t, 2*time.Second, events[2].PauseBefore)
}

func TestSealPendingEmitsNilDwell(t *testing.T) {
	rec := &fakeRecorder{}
	tr := NewTracker(rec, nil, 100*time.Millisecond, zap.NewNop())

	base := time.Now()
	tr.Handle(down(base, 30, "a", "a"))
	tr.Handle(down(base.Add(10*time.Millisecond), 31, "s", "s"))

	tr.SealPending()
	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].KeyName, "sealed events come out in timestamp order")
	assert.Equal(t, "s", events[1].KeyName)
	assert.Nil(t, events[0].Dwell)
	assert.Nil(t, events[1].Dwell)

	// A late key-up after sealing has nothing to complete.
	tr.Handle(up(base.Add(time.Second), 30))
	assert.Len(t, rec.all(), 2)
}

func TestRepeatedDownSealsEarlierPress(t *testing.T) {
	rec := &fakeRecorder{}
	tr := NewTracker(rec, nil, 100*time.Millisecond, zap.NewNop())

	base := time.Now()
	tr.Handle(down(base, 35, "h", "h"))
	tr.Handle(down(base.Add(time.Second), 35, "h", "h")) // missed release
	tr.Handle(up(base.Add(1100*time.Millisecond), 35))

	events := rec.all()
	require.Len(t, events, 2)
	assert.Nil(t, events[0].Dwell, "first press never saw its key-up")
	require.NotNil(t, events[1].Dwell)
	assert.Equal(t, 100*time.Millisecond, *events[1].Dwell)
}

func TestTimestampDeduplication(t *testing.T) {
	rec := &fakeRecorder{}
	tr := NewTracker(rec, nil, 100*time.Millisecond, zap.NewNop())

	base := time.Now()
	tr.Handle(down(base, 30, "a", "a"))
	tr.Handle(down(base, 31, "s", "s")) // same wall-clock instant
	tr.SealPending()

	events := rec.all()
	require.Len(t, events, 2)
	assert.True(t, events[1].Timestamp.After(events[0].Timestamp),
		"identical raw timestamps are nudged so stream order is total")
}

func TestOutOfOrderTransitionNudgedIntoArrivalOrder(t *testing.T) {
	rec := &fakeRecorder{}
	tr := NewTracker(rec, nil, 100*time.Millisecond, zap.NewNop())

	base := time.Now()
	tr.Handle(down(base.Add(10*time.Millisecond), 31, "s", "s"))
	// A second device delivers an older timestamp after the fact.
	tr.Handle(down(base, 30, "a", "a"))
	tr.SealPending()

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, "s", events[0].KeyName, "sealed order follows the nudged stream order")
	assert.Equal(t, "a", events[1].KeyName)
	assert.True(t, events[1].Timestamp.After(events[0].Timestamp))
	assert.Equal(t, time.Duration(0), events[1].SinceLast,
		"a nudged event carries no interval, so it cannot fake a burst")
	assert.Equal(t, time.Duration(0), events[1].PauseBefore)
}

func TestContextFailureKeepsKeystroke(t *testing.T) {
	rec := &fakeRecorder{}
	focus := &fakeFocus{err: errors.New("x connection lost")}
	tr := NewTracker(rec, focus, 100*time.Millisecond, zap.NewNop())

	base := time.Now()
	tr.Handle(down(base, 35, "h", "h"))
	tr.Handle(up(base.Add(50*time.Millisecond), 35))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Empty(t, events[0].AppName)
	assert.Empty(t, events[0].WindowTitle)
}

func TestCorrectionFlag(t *testing.T) {
	rec := &fakeRecorder{}
	tr := NewTracker(rec, nil, 100*time.Millisecond, zap.NewNop())

	base := time.Now()
	tr.Handle(down(base, 14, "backspace", ""))
	tr.Handle(up(base.Add(30*time.Millisecond), 14))
	tr.Handle(down(base.Add(200*time.Millisecond), 35, "h", "h"))
	tr.Handle(up(base.Add(250*time.Millisecond), 35))

	events := rec.all()
	require.Len(t, events, 2)
	assert.True(t, events[0].IsCorrection)
	assert.False(t, events[1].IsCorrection)
}
