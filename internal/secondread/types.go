// Package secondread stores peer-review readings of audited cases.
// A second reader either confirms the original LI-RADS category or
// records their own together with the level of agreement.
package secondread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/lirads"
)

// Status is the lifecycle state of a reading.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Agreement is the second reader's verdict against the original category.
type Agreement string

const (
	AgreementAgree    Agreement = "agree"
	AgreementDisagree Agreement = "disagree"
	AgreementPartial  Agreement = "partial"
)

// IsValid reports whether a is one of the known verdicts.
func (a Agreement) IsValid() bool {
	switch a {
	case AgreementAgree, AgreementDisagree, AgreementPartial:
		return true
	}
	return false
}

var (
	// ErrDuplicatePending is returned by Create when the reader already has
	// a pending reading of the same case.
	ErrDuplicatePending = fmt.Errorf("pending second reading already exists: %w", domain.ErrAlreadyExists)
	// ErrAlreadyCompleted is returned by Complete for a finished reading.
	ErrAlreadyCompleted = errors.New("second reading already completed")
)

// Reading is a single second-reader review of a case.
type Reading struct {
	ID               string     `json:"id"`
	CaseID           string     `json:"case_id"`
	ReaderUsername   string     `json:"reader_username"`
	Status           Status     `json:"status"`
	OriginalCategory string     `json:"original_category,omitempty"`
	SecondCategory   string     `json:"second_category,omitempty"`
	Agreement        Agreement  `json:"agreement,omitempty"`
	Comments         string     `json:"comments,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Completion carries the reader's verdict.
type Completion struct {
	Agreement      Agreement `json:"agreement"`
	SecondCategory string    `json:"second_category,omitempty"`
	Comments       string    `json:"comments,omitempty"`
}

// Validate checks the verdict before it is stored.
func (c Completion) Validate() error {
	if !c.Agreement.IsValid() {
		return domain.NewValidationError("agreement", "must be agree, disagree or partial", string(c.Agreement))
	}
	if c.SecondCategory != "" && !lirads.Category(c.SecondCategory).IsValid() {
		return domain.NewValidationError("second_category", "unknown LI-RADS category", c.SecondCategory)
	}
	return nil
}

// newReading fills the server-side fields of a reading to be created.
func newReading(r *Reading) error {
	r.CaseID = strings.TrimSpace(r.CaseID)
	r.ReaderUsername = strings.TrimSpace(r.ReaderUsername)
	if r.CaseID == "" {
		return domain.NewValidationError("case_id", "is required", r.CaseID)
	}
	if r.ReaderUsername == "" {
		return domain.NewValidationError("reader_username", "is required", r.ReaderUsername)
	}
	if r.OriginalCategory != "" && !lirads.Category(r.OriginalCategory).IsValid() {
		return domain.NewValidationError("original_category", "unknown LI-RADS category", r.OriginalCategory)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = StatusPending
	r.CreatedAt = time.Now().UTC()
	r.CompletedAt = nil
	r.SecondCategory = ""
	r.Agreement = ""
	r.Comments = ""
	return nil
}

// Store defines the second-reading storage operations.
type Store interface {
	// Create stores a new pending reading. A reader may hold only one
	// pending reading per case.
	Create(ctx context.Context, r *Reading) error

	// Complete records the verdict of a pending reading.
	Complete(ctx context.Context, id string, c Completion) (*Reading, error)

	// Get retrieves a reading by ID or returns domain.ErrNotFound.
	Get(ctx context.Context, id string) (*Reading, error)

	// List returns readings newest first, optionally filtered by status.
	List(ctx context.Context, status Status, limit int) ([]*Reading, error)

	// ListByCase returns every reading of one case, newest first.
	ListByCase(ctx context.Context, caseID string) ([]*Reading, error)

	// Count returns the number of readings, optionally filtered by status.
	Count(ctx context.Context, status Status) (int64, error)

	// ExportJSON writes every reading to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads an export and stores readings whose ID is unknown.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string     `json:"version"`
	ExportedAt time.Time  `json:"exported_at"`
	Count      int        `json:"count"`
	Readings   []*Reading `json:"readings"`
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// DefaultListLimit applies when List is called without a limit.
const DefaultListLimit = 50
