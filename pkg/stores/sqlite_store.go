// Package stores persists run reports and redacted execution history in
// SQLite.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/azimuth-ai/azimuth/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when a run ID does not exist in the store.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore persists runs and history entries in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens the database, enables WAL mode, and runs migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveRun persists a finished run's report and its full history in one
// transaction. History entries arrive already redacted.
func (s *SQLiteStore) SaveRun(ctx context.Context, report *engine.FinalReport, entries []engine.HistoryEntry) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, request, started_at, completed_at, duration_ms,
			total, achieved, partial, failed, blocked, aborted, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		report.Request,
		report.StartedAt,
		report.CompletedAt,
		report.Duration.Milliseconds(),
		report.Summary.Total,
		report.Summary.Achieved,
		report.Summary.Partial,
		report.Summary.Failed,
		report.Summary.Blocked,
		report.Summary.Aborted,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO history_entries (run_id, seq, recorded_at, kind, goal_id,
			attempt, tool, output, exit_code, elapsed_ms, status, confidence,
			classification, decision, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		_, err = stmt.ExecContext(ctx,
			report.RunID,
			e.Seq,
			e.Timestamp,
			string(e.Kind),
			e.GoalID,
			e.Attempt,
			e.Tool,
			e.Output,
			e.Exit,
			e.Elapsed.Milliseconds(),
			string(e.Status),
			e.Confidence,
			string(e.Classification),
			string(e.Decision),
			e.Reason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert history entry %d: %w", e.Seq, err)
		}
	}

	return tx.Commit()
}

// GetRun returns one persisted run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request, started_at, completed_at, duration_ms,
			total, achieved, partial, failed, blocked, aborted, report_json
		FROM runs WHERE id = ?
	`, runID)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request, started_at, completed_at, duration_ms,
			total, achieved, partial, failed, blocked, aborted, report_json
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetHistory returns the history entries of one run in sequence order.
func (s *SQLiteStore) GetHistory(ctx context.Context, runID string) ([]engine.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, recorded_at, kind, goal_id, attempt, tool, output,
			exit_code, elapsed_ms, status, confidence, classification,
			decision, reason
		FROM history_entries WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []engine.HistoryEntry
	for rows.Next() {
		var e engine.HistoryEntry
		var kind, status, classification, decision string
		var elapsedMS int64
		err := rows.Scan(&e.Seq, &e.Timestamp, &kind, &e.GoalID, &e.Attempt,
			&e.Tool, &e.Output, &e.Exit, &elapsedMS, &status, &e.Confidence,
			&classification, &decision, &e.Reason)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Kind = engine.HistoryEntryKind(kind)
		e.Status = engine.GoalStatus(status)
		e.Classification = engine.FailureClass(classification)
		e.Decision = engine.RecoveryDecision(decision)
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var durationMS int64
	err := row.Scan(&rec.ID, &rec.Request, &rec.StartedAt, &rec.CompletedAt,
		&durationMS, &rec.Total, &rec.Achieved, &rec.Partial, &rec.Failed,
		&rec.Blocked, &rec.Aborted, &rec.ReportJSON)
	if err != nil {
		return nil, err
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return &rec, nil
}
