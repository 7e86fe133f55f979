package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lirads-audit-server/internal/database"
	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/auditpack"
)

// SQLitePackRepository stores packs in a local SQLite file.
type SQLitePackRepository struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger
}

// NewSQLitePackRepository opens (or creates) the database at dbPath and
// ensures the schema exists.
func NewSQLitePackRepository(dbPath string, logger *logrus.Logger) (*SQLitePackRepository, error) {
	db, err := database.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if err := createPackSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLitePackRepository{
		db:     db,
		dbPath: dbPath,
		log:    logger,
	}, nil
}

func createPackSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cases (
		case_id TEXT PRIMARY KEY,
		latest_version INTEGER NOT NULL,
		category TEXT NOT NULL,
		decision TEXT NOT NULL DEFAULT '',
		lesion_size_mm INTEGER NOT NULL DEFAULT 0,
		generated_at TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS pack_versions (
		case_id TEXT NOT NULL REFERENCES cases(case_id) ON DELETE CASCADE,
		version INTEGER NOT NULL,
		schema TEXT NOT NULL,
		signature TEXT NOT NULL,
		previous_hash TEXT NOT NULL DEFAULT '',
		pack TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(case_id, version)
	);

	CREATE INDEX IF NOT EXISTS idx_cases_category ON cases(category);
	CREATE INDEX IF NOT EXISTS idx_cases_updated_at ON cases(updated_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Latest returns the highest stored version of a case.
func (r *SQLitePackRepository) Latest(ctx context.Context, caseID string) (*auditpack.Pack, error) {
	return r.queryOne(ctx, `
		SELECT pv.pack
		FROM pack_versions pv
		JOIN cases c ON c.case_id = pv.case_id AND c.latest_version = pv.version
		WHERE pv.case_id = ?
	`, caseID)
}

// Version returns one stored version of a case.
func (r *SQLitePackRepository) Version(ctx context.Context, caseID string, version int) (*auditpack.Pack, error) {
	return r.queryOne(ctx,
		"SELECT pack FROM pack_versions WHERE case_id = ? AND version = ?", caseID, version)
}

func (r *SQLitePackRepository) queryOne(ctx context.Context, query string, args ...any) (*auditpack.Pack, error) {
	var data string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pack not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return decodePack([]byte(data))
}

// Versions returns the full history of a case in ascending order.
func (r *SQLitePackRepository) Versions(ctx context.Context, caseID string) ([]*auditpack.Pack, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT pack FROM pack_versions WHERE case_id = ? ORDER BY version ASC", caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var history []*auditpack.Pack
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p, err := decodePack([]byte(data))
		if err != nil {
			return nil, err
		}
		history = append(history, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("case %s: %w", caseID, domain.ErrNotFound)
	}
	return history, nil
}

// Append stores the next version of a case. The single connection makes
// the read-check-write sequence atomic; the UNIQUE constraint backs it up.
func (r *SQLitePackRepository) Append(ctx context.Context, p *auditpack.Pack) error {
	if err := validateAppend(p); err != nil {
		return err
	}
	data, err := encodePack(p)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var latest int
	err = tx.QueryRowContext(ctx,
		"SELECT latest_version FROM cases WHERE case_id = ?", p.CaseID).Scan(&latest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}
	if p.Version != latest+1 {
		return conflictError(p.CaseID, latest+1, p.Version)
	}

	now := time.Now().UTC()
	category := string(p.Content.LIRADS.Category)
	if latest == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cases (case_id, latest_version, category, decision, lesion_size_mm, generated_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.CaseID, p.Version, category, p.Content.Decision, p.Content.DSL.LesionSizeMM, p.GeneratedAt, now, now)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE cases SET
				latest_version = ?,
				category = ?,
				decision = ?,
				lesion_size_mm = ?,
				generated_at = ?,
				updated_at = ?
			WHERE case_id = ?
		`, p.Version, category, p.Content.Decision, p.Content.DSL.LesionSizeMM, p.GeneratedAt, now, p.CaseID)
	}
	if err != nil {
		return r.mapWriteError(p, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pack_versions (case_id, version, schema, signature, previous_hash, pack, generated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.CaseID, p.Version, p.Schema, p.Signature, p.PreviousHash, string(data), p.GeneratedAt, now)
	if err != nil {
		return r.mapWriteError(p, err)
	}

	if err := tx.Commit(); err != nil {
		return r.mapWriteError(p, err)
	}

	r.log.WithFields(logrus.Fields{
		"case_id":  p.CaseID,
		"version":  p.Version,
		"category": category,
	}).Debug("Audit pack stored")
	return nil
}

func (r *SQLitePackRepository) mapWriteError(p *auditpack.Pack, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return conflictError(p.CaseID, p.Version, p.Version)
	}
	return fmt.Errorf("failed to insert: %w", err)
}

// List returns summaries of the latest version of every case.
func (r *SQLitePackRepository) List(ctx context.Context, limit, offset int) ([]domain.CaseSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT case_id, latest_version, category, decision, lesion_size_mm, generated_at, updated_at
		FROM cases
		ORDER BY updated_at DESC, case_id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	summaries := []domain.CaseSummary{}
	for rows.Next() {
		var s domain.CaseSummary
		if err := rows.Scan(&s.CaseID, &s.Version, &s.Category, &s.Decision,
			&s.LesionSizeMM, &s.GeneratedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Count returns the number of stored cases.
func (r *SQLitePackRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cases").Scan(&count)
	return count, err
}

// Close closes the database.
func (r *SQLitePackRepository) Close() error {
	return r.db.Close()
}
