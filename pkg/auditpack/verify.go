package auditpack

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Status is the overall verification outcome.
type Status string

const (
	StatusValid    Status = "VALID"
	StatusTampered Status = "TAMPERED"
)

// Reason identifies one verification failure.
type Reason string

const (
	ReasonSchemaMismatch    Reason = "schema_mismatch"
	ReasonHashMismatch      Reason = "hash_mismatch"
	ReasonSignatureMissing  Reason = "signature_missing"
	ReasonSignatureMismatch Reason = "signature_mismatch"
	ReasonChainBroken       Reason = "chain_broken"
	ReasonVersionGap        Reason = "version_gap"
)

// HashMismatch reports a stored hash next to the recomputed one.
type HashMismatch struct {
	Stored   string `json:"stored"`
	Computed string `json:"computed"`
}

// VerificationResult is the outcome of Verify.
type VerificationResult struct {
	Status         Status                  `json:"status"`
	Reasons        []Reason                `json:"reasons"`
	HashMismatches map[string]HashMismatch `json:"hash_mismatches"`
}

// Valid reports whether no reasons were recorded.
func (r VerificationResult) Valid() bool {
	return r.Status == StatusValid
}

// HasReason reports whether reason was recorded.
func (r VerificationResult) HasReason(reason Reason) bool {
	for _, rr := range r.Reasons {
		if rr == reason {
			return true
		}
	}
	return false
}

func newResult() VerificationResult {
	return VerificationResult{
		Reasons:        []Reason{},
		HashMismatches: map[string]HashMismatch{},
	}
}

func (r *VerificationResult) add(reason Reason) {
	if !r.HasReason(reason) {
		r.Reasons = append(r.Reasons, reason)
	}
}

func (r *VerificationResult) finish() VerificationResult {
	if len(r.Reasons) == 0 {
		r.Status = StatusValid
	} else {
		r.Status = StatusTampered
	}
	return *r
}

// Verify recomputes the hashes and signature of p from its own stored
// fields. It never fails: every problem is reported as a reason.
func Verify(secret []byte, p *Pack) VerificationResult {
	result := newResult()
	if p == nil {
		result.add(ReasonSignatureMissing)
		return result.finish()
	}

	if !IsSupportedSchema(p.Schema) {
		result.add(ReasonSchemaMismatch)
	}

	computed, err := ComputeHashes(p.Content)
	if err != nil {
		computed = Hashes{}
	}
	if p.Hashes.DSLSHA256 != computed.DSLSHA256 {
		result.HashMismatches["dsl_sha256"] = HashMismatch{Stored: p.Hashes.DSLSHA256, Computed: computed.DSLSHA256}
	}
	if p.Hashes.DecisionSHA256 != computed.DecisionSHA256 {
		result.HashMismatches["decision_sha256"] = HashMismatch{Stored: p.Hashes.DecisionSHA256, Computed: computed.DecisionSHA256}
	}
	if p.fault != nil {
		typed, _ := Hash(p)
		result.HashMismatches["document_sha256"] = HashMismatch{Stored: p.rawDigest, Computed: typed}
	}
	if len(result.HashMismatches) > 0 {
		result.add(ReasonHashMismatch)
	}

	switch {
	case p.Signature == "":
		result.add(ReasonSignatureMissing)
	case len(secret) == 0:
		result.add(ReasonSignatureMismatch)
	default:
		expected, err := Sign(secret, signPayloadFor(p))
		if err != nil || !EqualSignatures(p.Signature, expected) {
			result.add(ReasonSignatureMismatch)
		}
	}

	return result.finish()
}

// VersionResult is the verification of one version inside a chain.
type VersionResult struct {
	Version int                `json:"version"`
	Result  VerificationResult `json:"result"`
}

// ChainResult is the outcome of VerifyChain.
type ChainResult struct {
	Status   Status          `json:"status"`
	Reasons  []Reason        `json:"reasons"`
	Versions []VersionResult `json:"versions"`
	// BrokenAt lists the versions whose link to their predecessor fails.
	BrokenAt []int `json:"broken_at,omitempty"`
}

// VerifyChain verifies every pack of a case history, ordered by version,
// and the previous_hash link between neighbours.
func VerifyChain(secret []byte, history []*Pack) ChainResult {
	agg := newResult()
	out := ChainResult{Versions: make([]VersionResult, 0, len(history))}

	// Versions verify independently; only the links need their neighbours.
	results := make([]VerificationResult, len(history))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range history {
		g.Go(func() error {
			results[i] = Verify(secret, p)
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range history {
		res := results[i]
		out.Versions = append(out.Versions, VersionResult{Version: p.Version, Result: res})
		for _, r := range res.Reasons {
			agg.add(r)
		}

		if i == 0 {
			if p.Version != 1 {
				agg.add(ReasonVersionGap)
				out.BrokenAt = append(out.BrokenAt, p.Version)
			}
			if p.PreviousHash != "" && p.Version == 1 {
				agg.add(ReasonChainBroken)
				out.BrokenAt = append(out.BrokenAt, p.Version)
			}
			continue
		}

		prev := history[i-1]
		if p.Version != prev.Version+1 {
			agg.add(ReasonVersionGap)
			out.BrokenAt = append(out.BrokenAt, p.Version)
			continue
		}
		if want, err := ChainHash(prev); err != nil || p.PreviousHash != want {
			agg.add(ReasonChainBroken)
			out.BrokenAt = append(out.BrokenAt, p.Version)
		}
	}

	final := agg.finish()
	out.Status = final.Status
	out.Reasons = final.Reasons
	return out
}
