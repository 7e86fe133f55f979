package secondread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lib/pq"

	"github.com/lirads-audit-server/internal/domain"
)

const pgUniqueViolation = "23505"

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL second-reading store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Create stores a new pending reading. The partial unique index on
// (case_id, reader_username) enforces a single pending reading.
func (s *PostgresStore) Create(ctx context.Context, r *Reading) error {
	if err := newReading(r); err != nil {
		return err
	}
	return s.insert(ctx, r)
}

func (s *PostgresStore) insert(ctx context.Context, r *Reading) error {
	query := `
		INSERT INTO second_readings (
			id, case_id, reader_username, status, original_category,
			second_category, agreement, comments, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.CaseID, r.ReaderUsername, string(r.Status), r.OriginalCategory,
		r.SecondCategory, string(r.Agreement), r.Comments, r.CreatedAt, r.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return ErrDuplicatePending
		}
		return fmt.Errorf("failed to save second reading: %w", err)
	}
	return nil
}

// Complete records the verdict of a pending reading.
func (s *PostgresStore) Complete(ctx context.Context, id string, c Completion) (*Reading, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE second_readings SET
			status = $1, agreement = $2, second_category = $3, comments = $4, completed_at = $5
		WHERE id = $6 AND status = $7
		RETURNING id, case_id, reader_username, status, original_category,
			second_category, agreement, comments, created_at, completed_at
	`

	r, err := scanReading(s.db.QueryRowContext(ctx, query,
		string(StatusCompleted), string(c.Agreement), c.SecondCategory, c.Comments, time.Now().UTC(),
		id, string(StatusPending),
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to complete second reading: %w", err)
	}

	// Either unknown or already completed
	if _, gerr := s.Get(ctx, id); gerr != nil {
		return nil, gerr
	}
	return nil, ErrAlreadyCompleted
}

// Get retrieves a reading by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Reading, error) {
	query := `
		SELECT id, case_id, reader_username, status, original_category,
			second_category, agreement, comments, created_at, completed_at
		FROM second_readings
		WHERE id = $1
	`

	r, err := scanReading(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("second reading %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get second reading: %w", err)
	}
	return r, nil
}

// List returns readings newest first, optionally filtered by status.
func (s *PostgresStore) List(ctx context.Context, status Status, limit int) ([]*Reading, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, case_id, reader_username, status, original_category,
			second_category, agreement, comments, created_at, completed_at
		FROM second_readings
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id ASC
		LIMIT $2
	`
	return s.query(ctx, query, string(status), limit)
}

// ListByCase returns every reading of one case, newest first.
func (s *PostgresStore) ListByCase(ctx context.Context, caseID string) ([]*Reading, error) {
	query := `
		SELECT id, case_id, reader_username, status, original_category,
			second_category, agreement, comments, created_at, completed_at
		FROM second_readings
		WHERE case_id = $1
		ORDER BY created_at DESC, id ASC
	`
	return s.query(ctx, query, caseID)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...interface{}) ([]*Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list second readings: %w", err)
	}
	defer rows.Close()

	result := []*Reading{}
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Count returns the number of readings, optionally filtered by status.
func (s *PostgresStore) Count(ctx context.Context, status Status) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM second_readings WHERE ($1 = '' OR status = $1)", string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count second readings: %w", err)
	}
	return count, nil
}

// ExportJSON exports all readings to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports readings from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
