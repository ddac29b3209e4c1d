// Package journal records the outcome of every handled interrupt. Rows are
// written after handling and are never replayed into the queue.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const maxDetailBytes = 4 * 1024

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one handled interrupt.
type Entry struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"`
	Detail      string    `json:"detail,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts e. Detail is capped so captured input cannot grow rows unbounded.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	if e.Status == "" {
		return fmt.Errorf("entry status is empty")
	}

	detail := e.Detail
	if len(detail) > maxDetailBytes {
		detail = detail[:maxDetailBytes]
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO interrupt_log(id, kind, priority, status, detail, error, created_at, started_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Kind, e.Priority, e.Status, nullable(detail), nullable(e.Error),
		formatTime(e.CreatedAt), formatTime(e.StartedAt), formatTime(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert interrupt_log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, most recently completed first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, kind, priority, status, detail, error, created_at, started_at, completed_at
FROM interrupt_log
ORDER BY completed_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query interrupt_log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                  Entry
			detail, errText                    sql.NullString
			createdAtS, startedAtS, completedS string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Priority, &e.Status, &detail, &errText, &createdAtS, &startedAtS, &completedS); err != nil {
			return nil, fmt.Errorf("scan interrupt_log: %w", err)
		}
		e.Detail = detail.String
		e.Error = errText.String
		e.CreatedAt = parseTime(createdAtS)
		e.StartedAt = parseTime(startedAtS)
		e.CompletedAt = parseTime(completedS)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interrupt_log: %w", err)
	}
	return out, nil
}

// Summary counts journal rows by status.
func (s *Store) Summary(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM interrupt_log GROUP BY status;`)
	if err != nil {
		return nil, fmt.Errorf("summarize interrupt_log: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
