package secondread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lirads-audit-server/internal/database"
	"github.com/lirads-audit-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite second-reading store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := database.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const readingColumns = `id, case_id, reader_username, status, original_category,
	second_category, agreement, comments, created_at, completed_at`

// scanReading scans a row into a Reading struct.
func scanReading(s scanner) (*Reading, error) {
	r := &Reading{}
	var status, agreement string
	var completedAt sql.NullTime

	err := s.Scan(
		&r.ID, &r.CaseID, &r.ReaderUsername, &status, &r.OriginalCategory,
		&r.SecondCategory, &agreement, &r.Comments, &r.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = Status(status)
	r.Agreement = Agreement(agreement)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return r, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS second_readings (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		reader_username TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		original_category TEXT NOT NULL DEFAULT '',
		second_category TEXT NOT NULL DEFAULT '',
		agreement TEXT NOT NULL DEFAULT '',
		comments TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_second_readings_case ON second_readings(case_id);
	CREATE INDEX IF NOT EXISTS idx_second_readings_created_at ON second_readings(created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_second_readings_pending
		ON second_readings(case_id, reader_username) WHERE status = 'pending';
	`

	_, err := db.Exec(schema)
	return err
}

// Create stores a new pending reading.
func (s *SQLiteStore) Create(ctx context.Context, r *Reading) error {
	if err := newReading(r); err != nil {
		return err
	}

	var existing string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM second_readings WHERE case_id = ? AND reader_username = ? AND status = ?",
		r.CaseID, r.ReaderUsername, string(StatusPending),
	).Scan(&existing)
	if err == nil {
		return ErrDuplicatePending
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	return s.insert(ctx, r)
}

func (s *SQLiteStore) insert(ctx context.Context, r *Reading) error {
	var completedAt interface{}
	if r.CompletedAt != nil {
		completedAt = r.CompletedAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO second_readings (`+readingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.CaseID, r.ReaderUsername, string(r.Status), r.OriginalCategory,
		r.SecondCategory, string(r.Agreement), r.Comments, r.CreatedAt.UTC(), completedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicatePending
		}
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Complete records the verdict of a pending reading.
func (s *SQLiteStore) Complete(ctx context.Context, id string, c Completion) (*Reading, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusCompleted {
		return nil, ErrAlreadyCompleted
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE second_readings SET
			status = ?,
			agreement = ?,
			second_category = ?,
			comments = ?,
			completed_at = ?
		WHERE id = ? AND status = ?
	`,
		string(StatusCompleted), string(c.Agreement), c.SecondCategory, c.Comments, now,
		id, string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrAlreadyCompleted
	}

	return s.Get(ctx, id)
}

// Get retrieves a reading by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Reading, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+readingColumns+" FROM second_readings WHERE id = ?", id)

	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("second reading %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return r, nil
}

// List returns readings newest first, optionally filtered by status.
func (s *SQLiteStore) List(ctx context.Context, status Status, limit int) ([]*Reading, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := "SELECT " + readingColumns + " FROM second_readings"
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id ASC LIMIT ?"
	args = append(args, limit)

	return s.query(ctx, query, args...)
}

// ListByCase returns every reading of one case, newest first.
func (s *SQLiteStore) ListByCase(ctx context.Context, caseID string) ([]*Reading, error) {
	return s.query(ctx,
		"SELECT "+readingColumns+" FROM second_readings WHERE case_id = ? ORDER BY created_at DESC, id ASC",
		caseID)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]*Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
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
func (s *SQLiteStore) Count(ctx context.Context, status Status) (int64, error) {
	var count int64
	var err error
	if status == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM second_readings").Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM second_readings WHERE status = ?", string(status)).Scan(&count)
	}
	return count, err
}

// ExportJSON exports all readings to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports readings from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
