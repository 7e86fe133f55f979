// Package repository persists versioned audit packs.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/auditpack"
)

// MaxListLimit bounds a single List call.
const MaxListLimit = 1000000

// PackRepository stores the append-only version history of each case.
type PackRepository interface {
	// Latest returns the highest version of a case or domain.ErrNotFound.
	Latest(ctx context.Context, caseID string) (*auditpack.Pack, error)

	// Version returns one specific version or domain.ErrNotFound.
	Version(ctx context.Context, caseID string, version int) (*auditpack.Pack, error)

	// Versions returns every version of a case in ascending order.
	// An unknown case yields domain.ErrNotFound.
	Versions(ctx context.Context, caseID string) ([]*auditpack.Pack, error)

	// Append stores p as the next version of its case. The write succeeds
	// only when p.Version is exactly one above the stored latest version
	// (1 for a new case); otherwise domain.ErrVersionConflict is returned.
	Append(ctx context.Context, p *auditpack.Pack) error

	// List returns summaries of the latest version of each case, most
	// recently updated first.
	List(ctx context.Context, limit, offset int) ([]domain.CaseSummary, error)

	// Count returns the number of stored cases.
	Count(ctx context.Context) (int64, error)

	// Close releases the underlying connections.
	Close() error
}

func encodePack(p *auditpack.Pack) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling pack: %w", err)
	}
	return data, nil
}

// decodePack keeps rows that no longer round-trip through Pack readable;
// Verify reports them as TAMPERED.
func decodePack(data []byte) (*auditpack.Pack, error) {
	p, _ := auditpack.ParsePack(data)
	return p, nil
}

func validateAppend(p *auditpack.Pack) error {
	if p == nil {
		return fmt.Errorf("pack is required")
	}
	if p.CaseID == "" {
		return fmt.Errorf("pack case_id is required")
	}
	if p.Version < 1 {
		return fmt.Errorf("pack version must be >= 1, got %d", p.Version)
	}
	return nil
}

func conflictError(caseID string, want, got int) error {
	return fmt.Errorf("case %s: expected version %d, got %d: %w", caseID, want, got, domain.ErrVersionConflict)
}
