package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/phishcoach/internal/domain"
	"github.com/ashureev/phishcoach/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeAttempts  = 3
	writeBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS judgments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL,
		subject TEXT NOT NULL,
		is_phishing_actual INTEGER NOT NULL,
		is_phishing_decided INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_judgments_outcome ON judgments(outcome);

	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_created ON exchanges(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// RecordJudgment stores a flag decision.
func (s *SQLiteStore) RecordJudgment(ctx context.Context, j domain.Judgment) (domain.Judgment, error) {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	if j.Outcome == "" {
		j.Outcome = domain.Classify(j.Actual, j.Decided)
	}

	query := `
	INSERT INTO judgments (message_id, subject, is_phishing_actual, is_phishing_decided, outcome, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, "record judgment", writeAttempts, writeBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx, query,
			j.MessageID, j.Subject, j.Actual, j.Decided, string(j.Outcome), j.CreatedAt.Unix(),
		)
		if err != nil {
			return err
		}
		j.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return domain.Judgment{}, fmt.Errorf("record judgment: %w", err)
	}
	return j, nil
}

// ListJudgments returns the most recent judgments, newest first.
func (s *SQLiteStore) ListJudgments(ctx context.Context, limit int) ([]domain.Judgment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, message_id, subject, is_phishing_actual, is_phishing_decided, outcome, created_at
		FROM judgments ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query judgments: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close judgment rows", "error", closeErr)
		}
	}()

	var judgments []domain.Judgment
	for rows.Next() {
		var j domain.Judgment
		var outcome string
		var createdAt int64
		if err := rows.Scan(&j.ID, &j.MessageID, &j.Subject, &j.Actual, &j.Decided, &outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan judgment row: %w", err)
		}
		j.Outcome = domain.Outcome(outcome)
		j.CreatedAt = time.Unix(createdAt, 0)
		judgments = append(judgments, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate judgments: %w", err)
	}

	return judgments, nil
}

// Score tallies all recorded judgments by outcome.
func (s *SQLiteStore) Score(ctx context.Context) (domain.Score, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM judgments GROUP BY outcome`)
	if err != nil {
		return domain.Score{}, fmt.Errorf("query score: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close score rows", "error", closeErr)
		}
	}()

	var score domain.Score
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return domain.Score{}, fmt.Errorf("scan score row: %w", err)
		}
		for i := 0; i < n; i++ {
			score.Add(domain.Outcome(outcome))
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Score{}, fmt.Errorf("iterate score: %w", err)
	}

	return score, nil
}

// RecordExchange stores one language model round trip.
func (s *SQLiteStore) RecordExchange(ctx context.Context, ex domain.Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}

	var errText interface{}
	if ex.Error != "" {
		errText = ex.Error
	}

	query := `
	INSERT INTO exchanges (prompt, response, error, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, "record exchange", writeAttempts, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			ex.Prompt, ex.Response, errText, ex.Duration.Milliseconds(), ex.CreatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

// PruneExchanges deletes exchanges older than ttl.
func (s *SQLiteStore) PruneExchanges(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	var removed int64
	err := shared.RetryOnConflict(ctx, "prune exchanges", writeAttempts, writeBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE created_at < ?`, threshold)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune exchanges: %w", err)
	}
	return removed, nil
}
