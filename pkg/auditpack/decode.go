package auditpack

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ErrUnfaithfulEncoding means a pack document carries something the typed
// Pack cannot represent: unknown or recased keys, wrong value types or
// trailing data. Such a document always verifies as TAMPERED.
var ErrUnfaithfulEncoding = errors.New("auditpack: document does not round-trip through Pack")

// ParsePack decodes a pack document and checks that the typed pack encodes
// back to the same canonical JSON. On failure it still returns the best
// effort decoding, marked so that Verify reports hash_mismatch, together
// with an error wrapping ErrUnfaithfulEncoding.
func ParsePack(data []byte) (*Pack, error) {
	p, err := parseStrict(data)
	if err == nil {
		return p, nil
	}

	fault := fmt.Errorf("%w: %v", ErrUnfaithfulEncoding, err)
	lenient := &Pack{}
	_ = json.Unmarshal(data, lenient)
	lenient.fault = fault
	lenient.rawDigest = digest(data)
	return lenient, fault
}

func parseStrict(data []byte) (*Pack, error) {
	var p Pack
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after pack")
	}

	want, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("canonicalize document: %w", err)
	}
	got, err := Canonical(&p)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(want, got) {
		return nil, errors.New("keys or values differ from their typed encoding")
	}
	return &p, nil
}

// DecodeFault returns the error recorded by ParsePack, or nil when the pack
// was built in memory or decoded faithfully.
func (p *Pack) DecodeFault() error {
	return p.fault
}

// VerifyJSON parses data with ParsePack and verifies the result. It never
// fails; undecodable documents are TAMPERED.
func VerifyJSON(secret, data []byte) VerificationResult {
	p, _ := ParsePack(data)
	return Verify(secret, p)
}

func digest(data []byte) string {
	if c, err := jcs.Transform(data); err == nil {
		data = c
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
