package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one finished dictation.
type Entry struct {
	ID           int64
	SessionID    string
	Text         string
	Engine       string
	AudioSeconds float64
	InferMs      float64
	CreatedAt    time.Time
}

// Store keeps transcripts in a SQLite file.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcripts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    text TEXT NOT NULL,
    engine TEXT,
    audio_seconds REAL,
    infer_ms REAL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores e. A zero CreatedAt is stamped with the current time.
func (s *Store) Add(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts(session_id, text, engine, audio_seconds, infer_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Text, e.Engine, e.AudioSeconds, e.InferMs, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, text, engine, audio_seconds, infer_ms, created_at
		 FROM transcripts ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var engine sql.NullString
		var audioS, inferMs sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Text, &engine, &audioS, &inferMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Engine = engine.String
		e.AudioSeconds = audioS.Float64
		e.InferMs = inferMs.Float64
		out = append(out, e)
	}
	return out, rows.Err()
}
