package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/seantiz/ember/internal/model"

	_ "modernc.org/sqlite"
)

const createResetEventsTable = `
CREATE TABLE IF NOT EXISTS reset_events (
    id          TEXT PRIMARY KEY,
    engine_id   INTEGER NOT NULL,
    engine_name TEXT NOT NULL,
    reason      TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    error       TEXT,
    duration_ms INTEGER NOT NULL,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME NOT NULL
)`

// ErrNotFound is returned when a reset event is not found.
var ErrNotFound = errors.New("reset event not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createResetEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create reset_events table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateResetEvent inserts a completed reset attempt.
func (s *SQLiteStore) CreateResetEvent(ctx context.Context, ev *model.ResetEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reset_events (
			id, engine_id, engine_name, reason, outcome,
			error, duration_ms, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.EngineID, ev.EngineName, ev.Reason, ev.Outcome,
		ev.Error, ev.DurationMS, ev.CreatedAt, ev.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reset event: %w", err)
	}
	return nil
}

// GetResetEvent retrieves a reset event by ID.
func (s *SQLiteStore) GetResetEvent(ctx context.Context, id string) (*model.ResetEvent, error) {
	ev := &model.ResetEvent{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, engine_id, engine_name, reason, outcome,
			error, duration_ms, created_at, finished_at
		FROM reset_events WHERE id = ?`, id,
	).Scan(
		&ev.ID, &ev.EngineID, &ev.EngineName, &ev.Reason, &ev.Outcome,
		&ev.Error, &ev.DurationMS, &ev.CreatedAt, &ev.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reset event: %w", err)
	}
	return ev, nil
}

// ListResetEvents returns a paginated list of reset events ordered by
// created_at DESC, along with the total count of all events.
func (s *SQLiteStore) ListResetEvents(ctx context.Context, limit, offset int) ([]*model.ResetEvent, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM reset_events").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reset events: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, engine_id, engine_name, reason, outcome,
			error, duration_ms, created_at, finished_at
		FROM reset_events ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list reset events: %w", err)
	}
	defer rows.Close()

	var events []*model.ResetEvent
	for rows.Next() {
		ev := &model.ResetEvent{}
		if err := rows.Scan(
			&ev.ID, &ev.EngineID, &ev.EngineName, &ev.Reason, &ev.Outcome,
			&ev.Error, &ev.DurationMS, &ev.CreatedAt, &ev.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan reset event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate reset events: %w", err)
	}

	return events, total, nil
}

// GetResetStats aggregates the reset history: totals, per-engine and
// per-outcome counts, and the average duration of completed resets.
func (s *SQLiteStore) GetResetStats(ctx context.Context) (*ResetStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &ResetStats{
		CountByEngine:  make(map[string]int),
		CountByOutcome: make(map[string]int),
	}

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM reset_events").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count reset events: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT engine_name, COUNT(*) FROM reset_events GROUP BY engine_name")
	if err != nil {
		return nil, fmt.Errorf("count by engine: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan engine count: %w", err)
		}
		stats.CountByEngine[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate engine counts: %w", err)
	}

	rows, err = tx.QueryContext(ctx,
		"SELECT outcome, COUNT(*) FROM reset_events GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("count by outcome: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		stats.CountByOutcome[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM reset_events WHERE outcome = ?",
		model.OutcomeCompleted,
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}
