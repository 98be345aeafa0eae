package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignIsDeterministic(t *testing.T) {
	for _, alg := range []Algorithm{SHA256, HMACSHA256, HMACSHA512, HMACSHA256Base64} {
		t.Run(alg.String(), func(t *testing.T) {
			a := Sign("merchant.ref.100.00.SAR", "secret", alg)
			b := Sign("merchant.ref.100.00.SAR", "secret", alg)
			require.NotEmpty(t, a)
			assert.Equal(t, a, b)
		})
	}
}

func TestSignChangesOnSingleCharacterMutation(t *testing.T) {
	base := "/?payment=M1.ORD1.100.00.SAR"
	mutations := []string{
		"/?payment=M2.ORD1.100.00.SAR",
		"/?payment=M1.ORD2.100.00.SAR",
		"/?payment=M1.ORD1.100.01.SAR",
		"/?payment=M1.ORD1.100.00.SAS",
	}
	for _, alg := range []Algorithm{SHA256, HMACSHA256, HMACSHA512, HMACSHA256Base64} {
		want := Sign(base, "S", alg)
		for _, m := range mutations {
			assert.NotEqual(t, want, Sign(m, "S", alg), "%s collided for %q", alg, m)
		}
		if alg != SHA256 {
			assert.NotEqual(t, want, Sign(base, "T", alg), "%s ignored the secret", alg)
		}
	}
}

func TestHMACSHA256MatchesStdlib(t *testing.T) {
	m := hmac.New(sha256.New, []byte("S"))
	m.Write([]byte("/?payment=M1.ORD1.100.00.SAR"))
	want := hex.EncodeToString(m.Sum(nil))

	assert.Equal(t, want, Sign("/?payment=M1.ORD1.100.00.SAR", "S", HMACSHA256))
}

func TestPlainSHA256IgnoresSecret(t *testing.T) {
	sum := sha256.Sum256([]byte("abc"))
	assert.Equal(t, hex.EncodeToString(sum[:]), Sign("abc", "ignored", SHA256))
}

func TestVerify(t *testing.T) {
	sig := Sign("payload", "k", HMACSHA512)

	assert.True(t, Verify("payload", "k", HMACSHA512, sig))
	assert.True(t, Verify("payload", "k", HMACSHA512, "  "+sig))
	assert.False(t, Verify("payload2", "k", HMACSHA512, sig))
	assert.False(t, Verify("payload", "k", HMACSHA512, ""))
	assert.False(t, Verify("payload", "k", Algorithm(99), sig))
}

func TestEqualIsCaseInsensitiveForHex(t *testing.T) {
	assert.True(t, Equal("abcdef01", "ABCDEF01"))
	assert.False(t, Equal("abcdef01", "abcdef02"))
	// base64 is case sensitive
	assert.False(t, Equal("aGVsbG8=", "AGVSBG8="))
}
