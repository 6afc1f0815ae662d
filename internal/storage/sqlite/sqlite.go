package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"keyflow/internal/event"
	"keyflow/internal/storage"
)

// Store persists keystroke batches in a local SQLite database. Timestamps and
// durations are stored as integer nanoseconds so a reloaded event reproduces
// the captured values exactly.
type Store struct {
	db     *sql.DB
	dbPath string
	log    *zap.Logger
}

func NewStore(dbPath string, log *zap.Logger) storage.Storage {
	return &Store{dbPath: dbPath, log: log}
}

const createKeystrokesTableSQL = `
CREATE TABLE IF NOT EXISTS keystrokes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_ns INTEGER NOT NULL,
	key_code INTEGER NOT NULL,
	key_char TEXT,
	key_name TEXT,
	dwell_ns INTEGER,
	since_last_ns INTEGER NOT NULL,
	app_name TEXT,
	window_title TEXT,
	stream_id TEXT NOT NULL,
	is_correction INTEGER NOT NULL,
	pause_before_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_keystrokes_ts ON keystrokes (ts_ns);
CREATE INDEX IF NOT EXISTS idx_keystrokes_stream ON keystrokes (stream_id);
`

func (s *Store) Init(ctx context.Context) error {
	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	s.log.Info("Initializing SQLite event log", zap.String("path", s.dbPath))
	db, err := sql.Open("sqlite3", s.dbPath+"?_journal=WAL&_timeout=5000&_fk=true")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s.db = db

	// Single writer connection; the flush path is serialized anyway.
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(5 * time.Minute)

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createKeystrokesTableSQL); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to create keystrokes table: %w", err)
	}
	return nil
}

// AppendBatch writes the batch in one transaction. The log is append-only:
// no update or delete path exists.
func (s *Store) AppendBatch(ctx context.Context, events []event.Keystroke) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO keystrokes
		(ts_ns, key_code, key_char, key_name, dwell_ns, since_last_ns,
		 app_name, window_title, stream_id, is_correction, pause_before_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		var dwell interface{}
		if e.Dwell != nil {
			dwell = int64(*e.Dwell)
		}
		_, err := stmt.ExecContext(ctx,
			e.Timestamp.UnixNano(), e.KeyCode, e.KeyChar, e.KeyName, dwell,
			int64(e.SinceLast), e.AppName, e.WindowTitle, e.StreamID,
			boolToInt(e.IsCorrection), int64(e.PauseBefore))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert keystroke: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *Store) LoadRange(ctx context.Context, start, end time.Time) ([]event.Keystroke, error) {
	return s.load(ctx, `SELECT id, ts_ns, key_code, key_char, key_name, dwell_ns,
		since_last_ns, app_name, window_title, stream_id, is_correction, pause_before_ns
		FROM keystrokes WHERE ts_ns >= ? AND ts_ns <= ? ORDER BY ts_ns ASC`,
		start.UnixNano(), end.UnixNano())
}

func (s *Store) LoadAll(ctx context.Context) ([]event.Keystroke, error) {
	return s.load(ctx, `SELECT id, ts_ns, key_code, key_char, key_name, dwell_ns,
		since_last_ns, app_name, window_title, stream_id, is_correction, pause_before_ns
		FROM keystrokes ORDER BY ts_ns ASC`)
}

func (s *Store) load(ctx context.Context, query string, args ...interface{}) ([]event.Keystroke, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query keystrokes: %w", err)
	}
	defer rows.Close()

	var events []event.Keystroke
	for rows.Next() {
		var (
			e           event.Keystroke
			tsNS        int64
			dwellNS     sql.NullInt64
			sinceNS     int64
			pauseNS     int64
			keyChar     sql.NullString
			keyName     sql.NullString
			appName     sql.NullString
			windowTitle sql.NullString
			correction  int
		)
		if err := rows.Scan(&e.ID, &tsNS, &e.KeyCode, &keyChar, &keyName, &dwellNS,
			&sinceNS, &appName, &windowTitle, &e.StreamID, &correction, &pauseNS); err != nil {
			// A corrupt or partially-written row is skipped, not fatal.
			s.log.Warn("Skipping unreadable keystroke row", zap.Error(err))
			continue
		}
		e.Timestamp = time.Unix(0, tsNS)
		e.KeyChar = keyChar.String
		e.KeyName = keyName.String
		if dwellNS.Valid {
			d := time.Duration(dwellNS.Int64)
			e.Dwell = &d
		}
		e.SinceLast = time.Duration(sinceNS)
		e.AppName = appName.String
		e.WindowTitle = windowTitle.String
		e.IsCorrection = correction != 0
		e.PauseBefore = time.Duration(pauseNS)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keystroke rows: %w", err)
	}
	return events, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		s.log.Info("Closing event log")
		return s.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
