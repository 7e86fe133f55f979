package auditpack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonical returns the RFC 8785 canonical JSON encoding of v: sorted keys,
// no insignificant whitespace, normalised numbers and strings.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("auditpack: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("auditpack: canonicalize: %w", err)
	}
	return out, nil
}

// Hash returns the hex SHA-256 digest of the canonical encoding of v.
func Hash(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Sign returns the hex HMAC-SHA256 of the canonical encoding of v.
func Sign(secret []byte, v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(b)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// EqualSignatures compares two hex signatures in constant time.
func EqualSignatures(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
