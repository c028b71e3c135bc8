package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewSessionVerifier("api-key", "api-secret")
	raw, err := v.Issue("Acme.myshopify.com", "42", time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)

	shop, err := claims.Shop()
	require.NoError(t, err)
	assert.Equal(t, "acme.myshopify.com", shop)
}

func TestVerifyRejects(t *testing.T) {
	v := NewSessionVerifier("api-key", "api-secret")

	otherSecret, err := NewSessionVerifier("api-key", "other").Issue("a.myshopify.com", "1", time.Minute)
	require.NoError(t, err)
	otherAudience, err := NewSessionVerifier("other-app", "api-secret").Issue("a.myshopify.com", "1", time.Minute)
	require.NoError(t, err)
	expired, err := v.Issue("a.myshopify.com", "1", -time.Minute)
	require.NoError(t, err)
	noUser, err := v.Issue("a.myshopify.com", "", time.Minute)
	require.NoError(t, err)

	// none 算法必须被拒绝
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"aud": "api-key", "sub": "1", "dest": "https://a.myshopify.com",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"wrong secret":   otherSecret,
		"wrong audience": otherAudience,
		"expired":        expired,
		"no user":        noUser,
		"none alg":       unsigned,
		"garbage":        "not-a-token",
	} {
		_, err := v.Verify(raw)
		assert.Error(t, err, name)
	}
}
