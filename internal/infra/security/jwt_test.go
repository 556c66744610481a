//go:build !integration

package security

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("s3cret", "campaign-launcher")
	tok, err := m.Mint("user-42", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	sub, err := m.ParseFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "user-42", sub)
}

func TestTokenRejections(t *testing.T) {
	m := NewTokenManager("s3cret", "campaign-launcher")

	req := httptest.NewRequest("GET", "/", nil)
	_, err := m.ParseFromRequest(req)
	assert.ErrorIs(t, err, ErrMissingToken)

	other, _ := NewTokenManager("other", "campaign-launcher").Mint("user-42", time.Hour)
	_, err = m.Parse(other)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	expired, _ := m.Mint("user-42", -time.Minute)
	_, err = m.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	foreign, _ := NewTokenManager("s3cret", "someone-else").Mint("user-42", time.Hour)
	_, err = m.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong issuer")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-42"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	_, err = m.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")
}

func TestSubjectContext(t *testing.T) {
	assert.Empty(t, SubjectFrom(context.Background()))
	assert.Equal(t, "u1", SubjectFrom(WithSubject(context.Background(), "u1")))
}
