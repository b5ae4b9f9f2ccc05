package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS position_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	type       TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_position_events_symbol ON position_events(symbol);
`

// SQLiteEventStore keeps the journal in its own SQLite file.
type SQLiteEventStore struct {
	db *sql.DB
}

func NewSQLiteEventStore(path string) (*SQLiteEventStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate journal db: %w", err)
	}
	return &SQLiteEventStore{db: db}, nil
}

func (s *SQLiteEventStore) Append(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	created := evt.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO position_events (id, type, symbol, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		evt.ID, string(evt.Type), evt.Symbol, string(payload), created.UnixMilli())
	if err != nil {
		return fmt.Errorf("append journal event: %w", err)
	}
	return nil
}

// LoadAll returns events in append order.
func (s *SQLiteEventStore) LoadAll(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM position_events ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("load journal events: %w", err)
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var evt Event
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			return nil, fmt.Errorf("decode journal event: %w", err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (s *SQLiteEventStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
