package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// csvHeader is the flat per-keystroke projection: persisted fields joined
// with the analysis-time derived columns.
var csvHeader = []string{
	"timestamp",
	"session_id",
	"key_name",
	"key_char",
	"dwell_ms",
	"since_last_ms",
	"pause_before_ms",
	"app_name",
	"window_title",
	"is_correction",
	"in_correction_seq",
	"typing_burst",
	"hesitation",
	"finger",
	"cognitive_load",
}

// WriteCSV streams the report's events, one row per keystroke in log order,
// with derived values resolved per session.
func WriteCSV(w io.Writer, report *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, sr := range report.Sessions {
		for i, ev := range sr.Session.Events {
			d := sr.Derived[i]
			dwell := ""
			if ev.Dwell != nil {
				dwell = strconv.FormatFloat(float64(*ev.Dwell)/1e6, 'f', 3, 64)
			}
			row := []string{
				ev.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
				sr.Session.ID,
				ev.KeyName,
				ev.KeyChar,
				dwell,
				strconv.FormatFloat(float64(ev.SinceLast)/1e6, 'f', 3, 64),
				strconv.FormatFloat(float64(ev.PauseBefore)/1e6, 'f', 3, 64),
				ev.AppName,
				ev.WindowTitle,
				strconv.FormatBool(ev.IsCorrection),
				strconv.FormatBool(d.InCorrection),
				strconv.FormatBool(d.TypingBurst),
				strconv.FormatBool(d.Hesitation),
				string(d.Finger),
				strconv.FormatFloat(d.CognitiveLoad, 'f', 4, 64),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
