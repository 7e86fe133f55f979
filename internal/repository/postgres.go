package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/auditpack"
)

const pgUniqueViolation = "23505"

// PostgresPackRepository stores packs in the tables created by the
// migrations package.
type PostgresPackRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresPackRepository creates a repository on an existing pool.
func NewPostgresPackRepository(db *pgxpool.Pool, logger *logrus.Logger) *PostgresPackRepository {
	return &PostgresPackRepository{
		db:  db,
		log: logger,
	}
}

// Latest returns the highest stored version of a case
func (r *PostgresPackRepository) Latest(ctx context.Context, caseID string) (*auditpack.Pack, error) {
	query := `
		SELECT pv.pack
		FROM pack_versions pv
		JOIN cases c ON c.case_id = pv.case_id AND c.latest_version = pv.version
		WHERE pv.case_id = $1`

	return r.queryOne(ctx, query, caseID)
}

// Version returns one stored version of a case
func (r *PostgresPackRepository) Version(ctx context.Context, caseID string, version int) (*auditpack.Pack, error) {
	query := `SELECT pack FROM pack_versions WHERE case_id = $1 AND version = $2`
	return r.queryOne(ctx, query, caseID, version)
}

func (r *PostgresPackRepository) queryOne(ctx context.Context, query string, args ...any) (*auditpack.Pack, error) {
	var data []byte
	if err := r.db.QueryRow(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pack not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting pack: %w", err)
	}
	return decodePack(data)
}

// Versions returns the full history of a case in ascending order
func (r *PostgresPackRepository) Versions(ctx context.Context, caseID string) ([]*auditpack.Pack, error) {
	rows, err := r.db.Query(ctx,
		`SELECT pack FROM pack_versions WHERE case_id = $1 ORDER BY version ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var history []*auditpack.Pack
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		p, err := decodePack(data)
		if err != nil {
			return nil, err
		}
		history = append(history, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("case %s: %w", caseID, domain.ErrNotFound)
	}
	return history, nil
}

// Append stores the next version of a case inside one transaction
func (r *PostgresPackRepository) Append(ctx context.Context, p *auditpack.Pack) error {
	if err := validateAppend(p); err != nil {
		return err
	}
	data, err := encodePack(p)
	if err != nil {
		return err
	}
	generatedAt, err := p.GeneratedTime()
	if err != nil {
		return fmt.Errorf("parsing generated_at: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var latest int
	err = tx.QueryRow(ctx,
		`SELECT latest_version FROM cases WHERE case_id = $1 FOR UPDATE`, p.CaseID).Scan(&latest)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		latest = 0
	case err != nil:
		return fmt.Errorf("locking case: %w", err)
	}
	if p.Version != latest+1 {
		return conflictError(p.CaseID, latest+1, p.Version)
	}

	now := time.Now().UTC()
	category := string(p.Content.LIRADS.Category)
	if latest == 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO cases (case_id, latest_version, category, lesion_size_mm, generated_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			p.CaseID, p.Version, category, p.Content.DSL.LesionSizeMM, generatedAt, now)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE cases
			SET latest_version = $2, category = $3, lesion_size_mm = $4, generated_at = $5, updated_at = $6
			WHERE case_id = $1`,
			p.CaseID, p.Version, category, p.Content.DSL.LesionSizeMM, generatedAt, now)
	}
	if err != nil {
		return r.mapWriteError(p, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO pack_versions (case_id, version, schema, signature, previous_hash, pack, generated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.CaseID, p.Version, p.Schema, p.Signature, p.PreviousHash, data, generatedAt, now)
	if err != nil {
		return r.mapWriteError(p, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return r.mapWriteError(p, err)
	}

	r.log.WithFields(logrus.Fields{
		"case_id":  p.CaseID,
		"version":  p.Version,
		"category": category,
	}).Info("Audit pack stored")
	return nil
}

func (r *PostgresPackRepository) mapWriteError(p *auditpack.Pack, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return conflictError(p.CaseID, p.Version, p.Version)
	}
	r.log.WithFields(logrus.Fields{
		"case_id": p.CaseID,
		"version": p.Version,
		"error":   err,
	}).Error("Failed to store audit pack")
	return fmt.Errorf("storing pack: %w", err)
}

// List returns summaries of the latest version of every case
func (r *PostgresPackRepository) List(ctx context.Context, limit, offset int) ([]domain.CaseSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.case_id, c.latest_version, c.category, pv.pack->'content'->>'decision',
			c.lesion_size_mm, pv.pack->>'generated_at', c.updated_at
		FROM cases c
		JOIN pack_versions pv ON pv.case_id = c.case_id AND pv.version = c.latest_version
		ORDER BY c.updated_at DESC, c.case_id ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	summaries := []domain.CaseSummary{}
	for rows.Next() {
		var s domain.CaseSummary
		if err := rows.Scan(&s.CaseID, &s.Version, &s.Category, &s.Decision,
			&s.LesionSizeMM, &s.GeneratedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning case: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Count returns the number of stored cases
func (r *PostgresPackRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cases`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting cases: %w", err)
	}
	return count, nil
}

// Close closes the pool
func (r *PostgresPackRepository) Close() error {
	r.db.Close()
	return nil
}
