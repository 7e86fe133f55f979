// Package service orchestrates classification, audit pack building and
// persistence for the HTTP and MCP surfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/lirads-audit-server/internal/cache"
	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/internal/repository"
	"github.com/lirads-audit-server/pkg/auditpack"
	"github.com/lirads-audit-server/pkg/lirads"
)

// MaxAppendAttempts bounds the optimistic retry loop of a write.
const MaxAppendAttempts = 3

// MaxCaseIDLength bounds accepted case identifiers.
const MaxCaseIDLength = 128

// CaseService stores a versioned, signed audit trail per case.
type CaseService struct {
	repo          repository.PackRepository
	cache         cache.PackCache
	secret        []byte
	verifyBaseURL string
	clock         auditpack.Clock
	log           *logrus.Logger
}

// Option configures a CaseService.
type Option func(*CaseService)

// WithCache sets the latest-pack cache. The default caches nothing.
func WithCache(c cache.PackCache) Option {
	return func(s *CaseService) {
		s.cache = c
	}
}

// WithClock overrides the clock used for generated_at.
func WithClock(c auditpack.Clock) Option {
	return func(s *CaseService) {
		s.clock = c
	}
}

// NewCaseService creates a service. An empty secret is rejected.
func NewCaseService(repo repository.PackRepository, secret []byte, verifyBaseURL string, logger *logrus.Logger, opts ...Option) (*CaseService, error) {
	if len(secret) == 0 {
		return nil, auditpack.ErrMissingSecret
	}
	s := &CaseService{
		repo:          repo,
		cache:         cache.NoopCache{},
		secret:        secret,
		verifyBaseURL: verifyBaseURL,
		log:           logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidateCaseID rejects empty, oversized or path-like identifiers.
func ValidateCaseID(caseID string) error {
	switch {
	case strings.TrimSpace(caseID) == "":
		return domain.NewValidationError("case_id", "is required", caseID)
	case len(caseID) > MaxCaseIDLength:
		return domain.NewValidationError("case_id", fmt.Sprintf("must be at most %d characters", MaxCaseIDLength), caseID)
	case strings.ContainsAny(caseID, "/\\?#"):
		return domain.NewValidationError("case_id", "must not contain '/', '\\', '?' or '#'", caseID)
	}
	return nil
}

// ValidateDSL checks the bounds the classifier assumes.
func ValidateDSL(dsl lirads.DSL) error {
	if dsl.LesionSizeMM < 0 || dsl.LesionSizeMM > lirads.MaxSizeMM {
		return domain.NewValidationError("lesion_size_mm",
			fmt.Sprintf("must be between 0 and %d", lirads.MaxSizeMM), dsl.LesionSizeMM)
	}
	return nil
}

// Analyze classifies dsl and appends the result as the next version of
// the case.
func (s *CaseService) Analyze(ctx context.Context, caseID string, dsl lirads.DSL) (*auditpack.Pack, error) {
	if err := ValidateCaseID(caseID); err != nil {
		return nil, err
	}
	if err := ValidateDSL(dsl); err != nil {
		return nil, err
	}
	return s.appendVersion(ctx, caseID, auditpack.NewContent(dsl))
}

// AgentSaveResult is the outcome of SaveAgentReport.
type AgentSaveResult struct {
	Pack             *auditpack.Pack          `json:"pack"`
	CriticalFindings []domain.CriticalFinding `json:"critical_findings"`
}

// SaveAgentReport derives the DSL from clinical form data, classifies it
// and stores the pack with the narrative report attached.
func (s *CaseService) SaveAgentReport(ctx context.Context, caseID string, cd domain.ClinicalData, agentReport string) (*AgentSaveResult, error) {
	if err := ValidateCaseID(caseID); err != nil {
		return nil, err
	}

	dsl := lirads.ExtractDSL(cd)
	content := auditpack.NewContent(dsl)
	content.AgentReport = agentReport
	content.ClinicalData = cd.Summary()

	p, err := s.appendVersion(ctx, caseID, content)
	if err != nil {
		return nil, err
	}
	return &AgentSaveResult{
		Pack:             p,
		CriticalFindings: DetectCriticalFindings(cd, &p.Content.LIRADS),
	}, nil
}

// appendVersion builds the successor of the latest stored pack and
// retries when another writer wins the same version.
func (s *CaseService) appendVersion(ctx context.Context, caseID string, content auditpack.Content) (*auditpack.Pack, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxAppendAttempts; attempt++ {
		prev, err := s.repo.Latest(ctx, caseID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("loading latest version: %w", err)
		}

		p, err := auditpack.Build(s.secret, auditpack.BuildRequest{
			CaseID:        caseID,
			Content:       content,
			VerifyBaseURL: s.verifyBaseURL,
			Previous:      prev,
			Clock:         s.clock,
		})
		if err != nil {
			return nil, fmt.Errorf("building audit pack: %w", err)
		}

		err = s.repo.Append(ctx, p)
		if err == nil {
			s.invalidate(ctx, caseID)
			s.log.WithFields(logrus.Fields{
				"case_id":  caseID,
				"version":  p.Version,
				"category": p.Content.LIRADS.Category,
				"rule":     p.Content.LIRADS.Rule,
				"attempt":  attempt,
			}).Info("Case version stored")
			return p, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}

		lastErr = err
		s.log.WithFields(logrus.Fields{
			"case_id": caseID,
			"version": p.Version,
			"attempt": attempt,
		}).Warn("Version conflict, retrying with new latest")
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", MaxAppendAttempts, lastErr)
}

func (s *CaseService) invalidate(ctx context.Context, caseID string) {
	if err := s.cache.Delete(ctx, caseID); err != nil {
		s.log.WithError(err).WithField("case_id", caseID).Warn("Failed to invalidate cached pack")
	}
}

// Get returns the latest pack of a case.
func (s *CaseService) Get(ctx context.Context, caseID string) (*auditpack.Pack, error) {
	if p, ok, err := s.cache.Get(ctx, caseID); err != nil {
		s.log.WithError(err).WithField("case_id", caseID).Warn("Pack cache read failed")
	} else if ok {
		return p, nil
	}

	p, err := s.repo.Latest(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if fault := p.DecodeFault(); fault != nil {
		s.log.WithError(fault).WithField("case_id", caseID).Warn("Stored pack does not decode faithfully")
		return p, nil
	}
	if err := s.cache.Set(ctx, p); err != nil {
		s.log.WithError(err).WithField("case_id", caseID).Warn("Pack cache write failed")
	}
	return p, nil
}

// Versions returns the full history of a case, oldest first.
func (s *CaseService) Versions(ctx context.Context, caseID string) ([]*auditpack.Pack, error) {
	return s.repo.Versions(ctx, caseID)
}

// List returns case summaries, most recently updated first.
func (s *CaseService) List(ctx context.Context, limit, offset int) ([]domain.CaseSummary, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	summaries, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// VerifyResult is the outcome of Verify for a stored case.
type VerifyResult struct {
	CaseID  string `json:"case_id"`
	Version int    `json:"version"`
	auditpack.VerificationResult
	// SigMatch reports whether the signature presented by the caller is
	// the one stored on the latest version. It is omitted when no
	// signature was presented.
	SigMatch *bool `json:"sig_match,omitempty"`
}

// Verify re-verifies the latest stored pack of a case and compares sig,
// when given, with its stored signature.
func (s *CaseService) Verify(ctx context.Context, caseID, sig string) (*VerifyResult, error) {
	p, err := s.repo.Latest(ctx, caseID)
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{
		CaseID:             caseID,
		Version:            p.Version,
		VerificationResult: auditpack.Verify(s.secret, p),
	}
	if sig != "" {
		match := auditpack.EqualSignatures(sig, p.Signature)
		res.SigMatch = &match
	}

	s.log.WithFields(logrus.Fields{
		"case_id": caseID,
		"version": p.Version,
		"status":  res.Status,
		"reasons": res.Reasons,
	}).Info("Case verified")
	return res, nil
}

// VerifyChain verifies every stored version and the links between them.
func (s *CaseService) VerifyChain(ctx context.Context, caseID string) (*auditpack.ChainResult, error) {
	history, err := s.repo.Versions(ctx, caseID)
	if err != nil {
		return nil, err
	}
	res := auditpack.VerifyChain(s.secret, history)
	return &res, nil
}

// CriticalFindings returns the alerts for the latest decision of a case.
func (s *CaseService) CriticalFindings(ctx context.Context, caseID string) ([]domain.CriticalFinding, error) {
	p, err := s.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	cd := domain.ClinicalData{}
	if region, ok := p.Content.ClinicalData["region"].(string); ok {
		cd.Region = region
	}
	if p.Content.DSL.TumorInVein {
		cd.Lesions = []domain.Lesion{{TumorInVein: true}}
	}
	return DetectCriticalFindings(cd, &p.Content.LIRADS), nil
}

// Stats aggregates the latest version of every case by category.
func (s *CaseService) Stats(ctx context.Context) (*domain.CaseStats, error) {
	summaries, err := s.repo.List(ctx, repository.MaxListLimit, 0)
	if err != nil {
		return nil, err
	}

	sizes := map[string]stats.Float64Data{}
	for _, c := range summaries {
		sizes[c.Category] = append(sizes[c.Category], float64(c.LesionSizeMM))
	}

	out := &domain.CaseStats{
		TotalCases: len(summaries),
		Categories: make([]domain.CategoryStats, 0, len(sizes)),
	}
	for category, data := range sizes {
		mean, _ := stats.Mean(data)
		median, _ := stats.Median(data)
		maxSize, _ := stats.Max(data)
		out.Categories = append(out.Categories, domain.CategoryStats{
			Category:     category,
			Count:        len(data),
			MeanSizeMM:   mean,
			MedianSizeMM: median,
			MaxSizeMM:    maxSize,
		})
	}
	sort.Slice(out.Categories, func(i, j int) bool {
		return out.Categories[i].Category < out.Categories[j].Category
	})
	return out, nil
}
