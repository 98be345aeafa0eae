// Package signature builds the integrity proofs providers expect on requests
// and callbacks. Everything here is a pure function of its inputs.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

type Algorithm int

const (
	// SHA256 hashes the canonical string as-is. The secret must already be part
	// of the canonical string (Fawry appends its secure key).
	SHA256 Algorithm = iota + 1
	HMACSHA256
	HMACSHA512
	// HMACSHA256Base64 is HMAC-SHA256 encoded as standard base64 (eSewa).
	HMACSHA256Base64
)

func (a Algorithm) String() string {
	switch a {
	case SHA256:
		return "sha256"
	case HMACSHA256:
		return "hmac-sha256"
	case HMACSHA512:
		return "hmac-sha512"
	case HMACSHA256Base64:
		return "hmac-sha256-base64"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

// Sign returns the digest of canonical. Hex digests are lowercase.
// An unknown algorithm yields an empty string, which never matches a real signature.
func Sign(canonical, secret string, alg Algorithm) string {
	switch alg {
	case SHA256:
		sum := sha256.Sum256([]byte(canonical))
		return hex.EncodeToString(sum[:])
	case HMACSHA256:
		return hex.EncodeToString(mac(sha256.New, canonical, secret))
	case HMACSHA512:
		return hex.EncodeToString(mac(sha512.New, canonical, secret))
	case HMACSHA256Base64:
		return base64.StdEncoding.EncodeToString(mac(sha256.New, canonical, secret))
	default:
		return ""
	}
}

// Verify recomputes the digest and compares it with got in constant time.
func Verify(canonical, secret string, alg Algorithm, got string) bool {
	want := Sign(canonical, secret, alg)
	if want == "" {
		return false
	}
	return Equal(want, got)
}

// Equal compares two digests in constant time. Hex digests are compared
// case-insensitively since some providers deliver uppercase hex.
func Equal(want, got string) bool {
	got = strings.TrimSpace(got)
	if got == "" || len(want) != len(got) {
		return false
	}
	if isHex(want) && isHex(got) {
		want, got = strings.ToLower(want), strings.ToLower(got)
	}
	return hmac.Equal([]byte(want), []byte(got))
}

func mac(h func() hash.Hash, canonical, secret string) []byte {
	m := hmac.New(h, []byte(secret))
	_, _ = m.Write([]byte(canonical))
	return m.Sum(nil)
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
