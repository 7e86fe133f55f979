// Package auditpack builds, signs, chains and verifies tamper-evident
// records of a LI-RADS decision.
package auditpack

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lirads-audit-server/pkg/lirads"
)

// TimeFormat is the layout of GeneratedAt: UTC, second precision, Z suffix.
const TimeFormat = "2006-01-02T15:04:05Z"

// ErrMissingSecret is returned by Build when no signing secret is given.
var ErrMissingSecret = errors.New("auditpack: signing secret is required")

// Content is the payload wrapped by a pack.
type Content struct {
	DSL          lirads.DSL            `json:"dsl"`
	Decision     string                `json:"decision"`
	LIRADS       lirads.DecisionResult `json:"lirads"`
	AgentReport  string                `json:"agent_report,omitempty"`
	ClinicalData map[string]any        `json:"clinical_data,omitempty"`
}

// NewContent classifies dsl and returns the matching content.
func NewContent(dsl lirads.DSL) Content {
	result := lirads.Classify(dsl)
	return Content{
		DSL:      dsl,
		Decision: result.Label,
		LIRADS:   result,
	}
}

// Hashes are content fingerprints over canonicalised sub-objects.
type Hashes struct {
	DSLSHA256      string `json:"dsl_sha256"`
	DecisionSHA256 string `json:"decision_sha256"`
}

// Pack is a signed audit record for one version of a case.
type Pack struct {
	Schema       string  `json:"schema"`
	CaseID       string  `json:"case_id"`
	GeneratedAt  string  `json:"generated_at"`
	Version      int     `json:"version"`
	Content      Content `json:"content"`
	Hashes       Hashes  `json:"hashes"`
	PreviousHash string  `json:"previous_hash,omitempty"`
	Signature    string  `json:"signature,omitempty"`
	VerifyURL    string  `json:"verify_url,omitempty"`

	// Set by ParsePack when the source document was not faithful.
	fault     error
	rawDigest string
}

// GeneratedTime parses GeneratedAt.
func (p *Pack) GeneratedTime() (time.Time, error) {
	return time.Parse(TimeFormat, p.GeneratedAt)
}

// Clock supplies the build timestamp.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// BuildRequest carries everything Build needs besides the secret.
type BuildRequest struct {
	CaseID        string
	Content       Content
	VerifyBaseURL string
	// Previous is the latest stored version, nil for a new case.
	Previous *Pack
	// Clock defaults to the wall clock.
	Clock Clock
}

// ComputeHashes fingerprints the DSL and the decision label of c.
func ComputeHashes(c Content) (Hashes, error) {
	dslHash, err := Hash(c.DSL)
	if err != nil {
		return Hashes{}, fmt.Errorf("hashing dsl: %w", err)
	}
	decisionHash, err := Hash(map[string]any{"decision": c.Decision})
	if err != nil {
		return Hashes{}, fmt.Errorf("hashing decision: %w", err)
	}
	return Hashes{DSLSHA256: dslHash, DecisionSHA256: decisionHash}, nil
}

// ChainHash is the hash a successor stores as previous_hash: the whole pack
// except its verify_url.
func ChainHash(p *Pack) (string, error) {
	stripped := *p
	stripped.VerifyURL = ""
	return Hash(stripped)
}

// VerifyURL builds the auditor-facing verification link.
func VerifyURL(baseURL, caseID, signature string) string {
	q := url.Values{}
	q.Set("case_id", caseID)
	q.Set("sig", signature)
	return strings.TrimRight(baseURL, "/") + "/verify?" + q.Encode()
}

// Build assembles and signs a pack. When req.Previous is set the new pack
// is its successor: version+1 with previous_hash bound to it.
func Build(secret []byte, req BuildRequest) (*Pack, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	clock := req.Clock
	if clock == nil {
		clock = wallClock{}
	}

	hashes, err := ComputeHashes(req.Content)
	if err != nil {
		return nil, err
	}

	p := &Pack{
		Schema:      CurrentSchema,
		CaseID:      req.CaseID,
		GeneratedAt: clock.Now().UTC().Truncate(time.Second).Format(TimeFormat),
		Version:     1,
		Content:     req.Content,
		Hashes:      hashes,
	}

	if req.Previous != nil {
		prevHash, err := ChainHash(req.Previous)
		if err != nil {
			return nil, fmt.Errorf("hashing previous pack: %w", err)
		}
		p.Version = req.Previous.Version + 1
		p.PreviousHash = prevHash
	}

	sig, err := Sign(secret, signPayloadFor(p))
	if err != nil {
		return nil, fmt.Errorf("signing pack: %w", err)
	}
	p.Signature = sig
	p.VerifyURL = VerifyURL(req.VerifyBaseURL, p.CaseID, sig)

	return p, nil
}
